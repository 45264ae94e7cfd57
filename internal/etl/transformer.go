package etl

import (
	"strings"

	"github.com/aryanagg/si206-final/pkg/logger"
	"github.com/aryanagg/si206-final/pkg/models"
	"github.com/aryanagg/si206-final/pkg/utils"
	"github.com/cockroachdb/errors"
)

// keySeparator joins the parts of a composite natural key, giving keys such
// as "Alberta, Canada".
const keySeparator = ", "

type Transformer struct {
	Config *models.SourceSchema
}

func NewTransformer(config *models.SourceSchema) *Transformer {
	return &Transformer{Config: config}
}

// Transform turns raw provider items into records, keeping provider order.
// Items without a natural key are dropped with a warning.
func (t *Transformer) Transform(raw []map[string]interface{}) []models.Record {
	out := make([]models.Record, 0, len(raw))
	for i, item := range raw {
		rec, err := t.TransformItem(item)
		if err != nil {
			logger.Warn("skipping item", "dataset", t.Config.Name, "position", i, "err", err)
			continue
		}
		out = append(out, rec)
	}
	return out
}

// TransformItem builds one record. Numeric fields that are missing or
// unparsable are stored as 0.
func (t *Transformer) TransformItem(item map[string]interface{}) (models.Record, error) {
	key := t.naturalKey(item)
	if key == "" {
		return models.Record{}, errors.Newf("missing natural key %v", t.Config.KeyFields)
	}

	values := make(map[string]interface{}, len(t.Config.Fields))
	for _, f := range t.Config.Fields {
		raw := item[f.Source]
		switch f.Type {
		case models.TypeInt:
			n, ok := utils.ToInt(raw)
			if !ok {
				t.warnCoerced(key, f, raw)
			}
			values[f.Column] = n
		case models.TypeFloat:
			n, ok := utils.ToFloat(raw)
			if !ok {
				t.warnCoerced(key, f, raw)
			}
			values[f.Column] = n
		default:
			values[f.Column] = utils.ToString(raw)
		}
	}

	return models.Record{Key: key, Values: values}, nil
}

func (t *Transformer) naturalKey(item map[string]interface{}) string {
	parts := make([]string, 0, len(t.Config.KeyFields))
	for _, field := range t.Config.KeyFields {
		if s := utils.ToString(item[field]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, keySeparator)
}

func (t *Transformer) warnCoerced(key string, f models.FieldConfig, raw interface{}) {
	logger.Warn("coerced field to 0",
		"dataset", t.Config.Name,
		"key", key,
		"column", f.Column,
		"raw", raw,
		"err", ErrMalformedRecord,
	)
}
