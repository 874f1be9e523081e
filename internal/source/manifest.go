package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	corev1 "k8s.io/api/core/v1"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"
)

// IsManifestFile reports whether path has a manifest extension.
func IsManifestFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

// ReadManifestFile decodes every ConfigMap in a YAML or JSON manifest file.
func ReadManifestFile(path string) ([]*corev1.ConfigMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cms, err := ReadManifests(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cms, nil
}

// ReadManifests decodes a stream of YAML documents (or a single JSON document)
// and returns the ConfigMaps it contains. Documents of other kinds are skipped;
// a List whose items are ConfigMaps is expanded.
func ReadManifests(r io.Reader) ([]*corev1.ConfigMap, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(r))

	var result []*corev1.ConfigMap
	for index := 0; ; index++ {
		doc, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", index, err)
		}
		if len(bytes.TrimSpace(doc)) == 0 {
			continue
		}

		cms, err := decodeDocument(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", index, err)
		}
		result = append(result, cms...)
	}
}

type typeMeta struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
}

func decodeDocument(doc []byte) ([]*corev1.ConfigMap, error) {
	var meta typeMeta
	if err := yaml.Unmarshal(doc, &meta); err != nil {
		return nil, err
	}

	switch meta.Kind {
	case "ConfigMap":
		cm := &corev1.ConfigMap{}
		if err := yaml.Unmarshal(doc, cm); err != nil {
			return nil, err
		}
		return []*corev1.ConfigMap{cm}, nil

	case "ConfigMapList", "List":
		var list corev1.ConfigMapList
		if err := yaml.Unmarshal(doc, &list); err != nil {
			return nil, err
		}
		result := make([]*corev1.ConfigMap, 0, len(list.Items))
		for i := range list.Items {
			item := &list.Items[i]
			if item.Kind != "" && item.Kind != "ConfigMap" {
				continue
			}
			result = append(result, item)
		}
		return result, nil

	default:
		return nil, nil
	}
}
