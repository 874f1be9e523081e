package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"dashsync/internal/source"
)

// DefaultFilePattern selects the payload keys that hold dashboards.
const DefaultFilePattern = "*.json"

var (
	// ErrNotAnObject is returned when the payload is valid JSON but not an object.
	ErrNotAnObject = errors.New("dashboard is not a JSON object")

	// ErrMissingTitle is returned when the dashboard has no non-empty title.
	ErrMissingTitle = errors.New("dashboard has no title")

	// ErrInvalidTags is returned when tags is present but not a list of strings.
	ErrInvalidTags = errors.New("dashboard tags must be a list of strings")
)

// Options configures an Extractor.
type Options struct {
	// FilePattern is a filepath.Match pattern for payload keys. Defaults to "*.json".
	FilePattern string

	// MarkerTag is added to every dashboard's tags when set.
	MarkerTag string
}

// Extractor turns dashboard sources into documents. It holds no state
// between calls and is safe for concurrent use.
type Extractor struct {
	pattern   string
	markerTag string
}

// NewExtractor validates opts and returns an Extractor.
func NewExtractor(opts Options) (*Extractor, error) {
	pattern := opts.FilePattern
	if pattern == "" {
		pattern = DefaultFilePattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
	}

	return &Extractor{
		pattern:   pattern,
		markerTag: opts.MarkerTag,
	}, nil
}

// Matches reports whether a payload key is considered a dashboard.
func (e *Extractor) Matches(payloadKey string) bool {
	ok, _ := filepath.Match(e.pattern, payloadKey)
	return ok
}

// Extract returns the documents found in src in payload-key order, along with
// a ParseError for every matching entry that could not be parsed. A bad entry
// never prevents the other entries of the same source from being extracted.
func (e *Extractor) Extract(src *source.DashboardSource) ([]*Document, []*ParseError) {
	var (
		docs   []*Document
		errs   []*ParseError
		srcKey = src.Key()
	)

	for _, payloadKey := range src.PayloadKeys() {
		if !e.Matches(payloadKey) {
			continue
		}

		key := IdentityKeyFor(src.Namespace, src.Name, payloadKey)
		doc, err := e.parse(key, []byte(src.Data[payloadKey]))
		if err != nil {
			errs = append(errs, &ParseError{
				Source:     srcKey,
				PayloadKey: payloadKey,
				Key:        key,
				Err:        err,
			})
			continue
		}

		doc.Source = srcKey
		doc.PayloadKey = payloadKey
		docs = append(docs, doc)
	}

	return docs, errs
}

func (e *Extractor) parse(key IdentityKey, raw []byte) (*Document, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var value interface{}
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, errors.New("invalid JSON: trailing data after dashboard")
	}

	model, ok := value.(map[string]interface{})
	if !ok {
		return nil, ErrNotAnObject
	}

	// Grafana import format wraps the model as {"dashboard": {...}}.
	if inner, ok := model["dashboard"].(map[string]interface{}); ok {
		if _, hasTitle := model["title"]; !hasTitle {
			model = inner
		}
	}

	title, _ := model["title"].(string)
	if strings.TrimSpace(title) == "" {
		return nil, ErrMissingTitle
	}

	tags, err := normalizeTags(model["tags"], e.markerTag)
	if err != nil {
		return nil, err
	}
	if tags != nil {
		model["tags"] = tags
	}

	model["uid"] = string(key)
	delete(model, "id")
	delete(model, "version")

	checksum, err := Checksum(model)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dashboard: %w", err)
	}

	return &Document{
		Key:      key,
		Title:    title,
		Content:  model,
		Checksum: checksum,
	}, nil
}

// normalizeTags validates tags and appends the marker tag if it is missing.
// It returns nil when there are no tags and no marker tag.
func normalizeTags(raw interface{}, markerTag string) ([]interface{}, error) {
	var tags []interface{}
	switch v := raw.(type) {
	case nil:
	case []interface{}:
		for _, t := range v {
			if _, ok := t.(string); !ok {
				return nil, ErrInvalidTags
			}
		}
		tags = v
	default:
		return nil, ErrInvalidTags
	}

	if markerTag == "" {
		return tags, nil
	}
	for _, t := range tags {
		if t.(string) == markerTag {
			return tags, nil
		}
	}
	return append(tags, markerTag), nil
}
