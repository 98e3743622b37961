package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definitions is the yaml-facing schema definition set.
type Definitions struct {
	Labels        map[string]LabelDef `yaml:"labels"`
	Relationships map[string]RelDef   `yaml:"relationships"`
}

// LabelDef declares one node label.
type LabelDef struct {
	Properties map[string]PropDef `yaml:"properties"`
}

// RelDef declares one relationship type.
type RelDef struct {
	Endpoints  []Endpoint         `yaml:"endpoints"`
	Properties map[string]PropDef `yaml:"properties"`
}

// PropDef declares one typed property.
// Required properties must be present when a record is first created; the
// file-level entity types mark view_uri required so every stored document
// node carries its provenance citation.
type PropDef struct {
	Type     string `yaml:"type"`
	Required bool   `yaml:"required,omitempty"`
}

// Endpoint is one allowed (source label, target label) pair.
type Endpoint struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// ParseDefinitions decodes a yaml definition set.
func ParseDefinitions(data []byte) (*Definitions, error) {
	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("schema: parse definitions: %w", err)
	}
	if len(defs.Labels) == 0 {
		return nil, fmt.Errorf("schema: definition set declares no labels")
	}
	return &defs, nil
}

// LoadDefinitions reads a definition file from disk.
func LoadDefinitions(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read definitions: %w", err)
	}
	return ParseDefinitions(data)
}

// DefaultDefinitions returns the embedded documentation-ops schema.
func DefaultDefinitions() *Definitions {
	defs, err := ParseDefinitions(defaultSchema)
	if err != nil {
		// The embedded file is validated by tests; a parse failure here is
		// a build defect, not a runtime condition.
		panic(err)
	}
	return defs
}
