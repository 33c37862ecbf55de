package vision

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Model is one entry of the fan-out registry.
type Model struct {
	// Name is the stable identifier reported in modelsUsed.
	Name string `yaml:"name"`
	// ID is the provider-side model path.
	ID      string `yaml:"id"`
	Task    Task   `yaml:"task"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the model should be dispatched.
func (m Model) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

type registryFile struct {
	Models []Model `yaml:"models"`
}

// DefaultModels is the registry used when no file is configured.
func DefaultModels() []Model {
	return []Model{
		{Name: "skin_type_detection", ID: "dima806/skin_types_image_detection", Task: TaskSkinType},
		{Name: "vit_age_classifier", ID: "nateraw/vit-age-classifier", Task: TaskAge},
		{Name: "skin_condition_classifier", ID: "Tanishq77/skin-condition-classifier", Task: TaskCondition},
		{Name: "skintelligent_acne", ID: "imfarzanansari/skintelligent-acne", Task: TaskAcne},
	}
}

// LoadRegistry reads a YAML model registry. An empty path yields DefaultModels.
func LoadRegistry(path string) ([]Model, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultModels(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model registry: %w", err)
	}
	return ParseRegistry(raw)
}

// ParseRegistry decodes and validates registry YAML, dropping disabled models.
func ParseRegistry(raw []byte) ([]Model, error) {
	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse model registry: %w", err)
	}
	seen := make(map[string]bool, len(file.Models))
	out := make([]Model, 0, len(file.Models))
	for i, m := range file.Models {
		m.Name = strings.TrimSpace(m.Name)
		m.ID = strings.TrimSpace(m.ID)
		if m.Name == "" || m.ID == "" {
			return nil, fmt.Errorf("model registry entry %d: name and id are required", i)
		}
		if _, ok := adapters[m.Task]; !ok {
			return nil, fmt.Errorf("model registry entry %q: unknown task %q", m.Name, m.Task)
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("model registry entry %q: duplicate name", m.Name)
		}
		seen[m.Name] = true
		if m.IsEnabled() {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("model registry has no enabled models")
	}
	return out, nil
}
