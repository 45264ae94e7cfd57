package models

import (
	"sort"

	"dario.cat/mergo"
	"github.com/cockroachdb/errors"
)

// Source kinds.
const (
	KindJSON = "json"
	KindHTML = "html"
)

// Column types.
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeFloat  = "float"
)

// Slicing policies.
const (
	SlicingKeyExclusion = "key"
	SlicingPositional   = "positional"
)

// Catalog represents the root of the sources file.
type Catalog struct {
	Version string                  `json:"version"`
	Sources map[string]SourceSchema `json:"sources"`
}

// SourceSchema describes one dataset: where it comes from, how raw items map
// onto columns and how much of it a single run may commit.
type SourceSchema struct {
	Name          string         `json:"name"`
	Kind          string         `json:"kind"`
	URL           string         `json:"url"`
	RecordsPath   string         `json:"recordsPath,omitempty"`
	TableSelector string         `json:"tableSelector,omitempty"`
	Cells         map[string]int `json:"cells,omitempty"`
	Table         string         `json:"table"`
	KeyFields     []string       `json:"keyFields"`
	Fields        []FieldConfig  `json:"fields"`
	BatchCap      int            `json:"batchCap"`
	Slicing       string         `json:"slicing,omitempty"`
	FullLoadAfter int            `json:"fullLoadAfter,omitempty"`
}

// FieldConfig maps a raw attribute onto a typed column.
type FieldConfig struct {
	Column string `json:"column"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// SlicingPolicy returns the configured policy, defaulting to key exclusion.
func (s *SourceSchema) SlicingPolicy() string {
	if s.Slicing == "" {
		return SlicingKeyExclusion
	}
	return s.Slicing
}

// Field looks up a field by column name.
func (s *SourceSchema) Field(column string) (FieldConfig, bool) {
	for _, f := range s.Fields {
		if f.Column == column {
			return f, true
		}
	}
	return FieldConfig{}, false
}

// Columns returns the declared column names in declaration order.
func (s *SourceSchema) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Column
	}
	return cols
}

// Names returns the dataset names in a stable order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the schema registered under name.
func (c *Catalog) Lookup(name string) (*SourceSchema, error) {
	schema, ok := c.Sources[name]
	if !ok {
		return nil, errors.Newf("dataset %q is not defined in the sources file", name)
	}
	if schema.Name == "" {
		schema.Name = name
	}
	return &schema, nil
}

// Override layers a local catalog on top of c. Datasets present in both are
// merged field by field, so an override only needs the fields it changes;
// zero values in the override leave the base untouched.
func (c *Catalog) Override(local Catalog) error {
	if local.Version != "" {
		c.Version = local.Version
	}
	if c.Sources == nil {
		c.Sources = make(map[string]SourceSchema, len(local.Sources))
	}
	for name, override := range local.Sources {
		merged := c.Sources[name]
		if err := mergo.Merge(&merged, override, mergo.WithOverride); err != nil {
			return errors.Wrapf(err, "merge overrides for dataset %s", name)
		}
		c.Sources[name] = merged
	}
	return nil
}
