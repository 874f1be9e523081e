package events

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

var defaultTemplates = map[EventReason]string{
	ReasonDashboardCreated: `Dashboard {{ .Title | quote }} from key {{ .PayloadKey }} created in Grafana (uid {{ .Key | trunc 12 }})`,
	ReasonDashboardUpdated: `Dashboard {{ .Title | quote }} from key {{ .PayloadKey }} updated in Grafana (uid {{ .Key | trunc 12 }})`,
	ReasonDashboardDeleted: `Dashboard {{ default .Key .Title | quote }}{{ with .PayloadKey }} from key {{ . }}{{ end }} deleted from Grafana`,
	ReasonDashboardInvalid: `Data key {{ .PayloadKey }} does not hold a valid dashboard{{ with .Error }}: {{ . }}{{ end }}`,
	ReasonDashboardSyncFailed: `Failed to {{ default "sync" .Operation }} dashboard {{ default .Key .Title | quote }}` +
		`{{ if gt .Attempts 1 }} after {{ .Attempts }} attempts{{ end }}{{ with .Error }}: {{ . }}{{ end }}`,
}

// MessageTemplateEngine renders event messages from text/template templates
// with the sprig function map.
type MessageTemplateEngine struct {
	mu        sync.RWMutex
	templates map[EventReason]*template.Template
}

// NewMessageTemplateEngine creates a new message template engine with default templates.
func NewMessageTemplateEngine() *MessageTemplateEngine {
	engine := &MessageTemplateEngine{
		templates: make(map[EventReason]*template.Template),
	}
	for reason, text := range defaultTemplates {
		if err := engine.SetTemplate(reason, text); err != nil {
			panic(fmt.Sprintf("invalid default template for %s: %v", reason, err))
		}
	}
	return engine
}

// Render generates a message for the given event reason and data.
func (e *MessageTemplateEngine) Render(reason EventReason, data EventData) string {
	e.mu.RLock()
	tmpl, exists := e.templates[reason]
	e.mu.RUnlock()
	if !exists {
		return fmt.Sprintf("Event: %s for %s/%s", string(reason), data.Namespace, data.Name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("Event: %s for %s/%s (template error: %v)", string(reason), data.Namespace, data.Name, err)
	}
	return buf.String()
}

// SetTemplate replaces the template for a specific event reason.
func (e *MessageTemplateEngine) SetTemplate(reason EventReason, text string) error {
	tmpl, err := template.New(string(reason)).Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(text)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[reason] = tmpl
	return nil
}
