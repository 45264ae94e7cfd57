package etl

import (
	"regexp"

	"github.com/aryanagg/si206-final/pkg/models"
)

// identifier restricts table and column names, which are interpolated into
// SQL statements.
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Validator struct {
	Config *models.SourceSchema
}

func NewValidator(config *models.SourceSchema) *Validator {
	return &Validator{Config: config}
}

// ValidateSchema checks a dataset definition before it is used to build a
// source or a store.
func (v *Validator) ValidateSchema() error {
	s := v.Config
	if s.Name == "" {
		return invalidConfig("dataset name is required")
	}
	if s.URL == "" {
		return invalidConfig("dataset %s: url is required", s.Name)
	}

	switch s.Kind {
	case models.KindJSON:
	case models.KindHTML:
		if s.TableSelector == "" {
			return invalidConfig("dataset %s: tableSelector is required for html sources", s.Name)
		}
		if len(s.Cells) == 0 {
			return invalidConfig("dataset %s: cells are required for html sources", s.Name)
		}
		for name, idx := range s.Cells {
			if idx < 0 {
				return invalidConfig("dataset %s: cell %s has negative index %d", s.Name, name, idx)
			}
		}
	default:
		return invalidConfig("dataset %s: unknown kind %q", s.Name, s.Kind)
	}

	if !identifier.MatchString(s.Table) || s.Table == watermarkTable {
		return invalidConfig("dataset %s: invalid table name %q", s.Name, s.Table)
	}
	if len(s.KeyFields) == 0 {
		return invalidConfig("dataset %s: at least one key field is required", s.Name)
	}

	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if !identifier.MatchString(f.Column) || f.Column == keyColumn {
			return invalidConfig("dataset %s: invalid column name %q", s.Name, f.Column)
		}
		if seen[f.Column] {
			return invalidConfig("dataset %s: duplicate column %q", s.Name, f.Column)
		}
		seen[f.Column] = true
		switch f.Type {
		case models.TypeString, models.TypeInt, models.TypeFloat:
		default:
			return invalidConfig("dataset %s: column %s has unknown type %q", s.Name, f.Column, f.Type)
		}
	}

	if s.BatchCap <= 0 {
		return invalidConfig("dataset %s: batchCap must be positive", s.Name)
	}
	switch s.SlicingPolicy() {
	case models.SlicingKeyExclusion, models.SlicingPositional:
	default:
		return invalidConfig("dataset %s: unknown slicing policy %q", s.Name, s.Slicing)
	}
	if s.FullLoadAfter < 0 {
		return invalidConfig("dataset %s: fullLoadAfter must not be negative", s.Name)
	}
	return nil
}
