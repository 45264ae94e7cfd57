package etl

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aryanagg/si206-final/pkg/logger"
	"github.com/aryanagg/si206-final/pkg/models"
	"github.com/go-resty/resty/v2"
)

// NewSource builds the reader matching the dataset kind.
func NewSource(client *resty.Client, config *models.SourceSchema) (Source, error) {
	switch config.Kind {
	case models.KindJSON:
		return NewJSONSource(client, config), nil
	case models.KindHTML:
		return NewHTMLSource(client, config), nil
	default:
		return nil, invalidConfig("dataset %s: unknown kind %q", config.Name, config.Kind)
	}
}

// JSONSource reads a JSON API whose records are an array, either at the top
// level or under RecordsPath.
type JSONSource struct {
	Client      *resty.Client
	Config      *models.SourceSchema
	Transformer *Transformer
}

func NewJSONSource(client *resty.Client, config *models.SourceSchema) *JSONSource {
	return &JSONSource{
		Client:      client,
		Config:      config,
		Transformer: NewTransformer(config),
	}
}

func (s *JSONSource) Fetch(ctx context.Context) ([]models.Record, error) {
	body, err := get(ctx, s.Client, s.Config, "application/json")
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, sourceUnavailable(err, "decode %s response", s.Config.Name)
	}

	items, err := s.records(doc)
	if err != nil {
		return nil, err
	}
	return s.Transformer.Transform(items), nil
}

func (s *JSONSource) records(doc interface{}) ([]map[string]interface{}, error) {
	node := doc
	if s.Config.RecordsPath != "" {
		for _, step := range strings.Split(s.Config.RecordsPath, ".") {
			obj, ok := node.(map[string]interface{})
			if !ok {
				return nil, sourceUnavailable(nil, "%s: records path %q not found", s.Config.Name, s.Config.RecordsPath)
			}
			if node, ok = obj[step]; !ok {
				return nil, sourceUnavailable(nil, "%s: records path %q not found", s.Config.Name, s.Config.RecordsPath)
			}
		}
	}

	// A null array means the provider has nothing for us right now.
	if node == nil {
		return nil, nil
	}
	arr, ok := node.([]interface{})
	if !ok {
		return nil, sourceUnavailable(nil, "%s: expected an array of records, got %T", s.Config.Name, node)
	}

	items := make([]map[string]interface{}, 0, len(arr))
	for i, el := range arr {
		obj, ok := el.(map[string]interface{})
		if !ok {
			logger.Warn("skipping non-object item", "dataset", s.Config.Name, "position", i)
			continue
		}
		items = append(items, obj)
	}
	return items, nil
}

// HTMLSource scrapes the first table matching TableSelector. Rows without
// <td> cells (headers) are skipped and Cells maps names to cell indexes.
type HTMLSource struct {
	Client      *resty.Client
	Config      *models.SourceSchema
	Transformer *Transformer
}

func NewHTMLSource(client *resty.Client, config *models.SourceSchema) *HTMLSource {
	return &HTMLSource{
		Client:      client,
		Config:      config,
		Transformer: NewTransformer(config),
	}
}

func (s *HTMLSource) Fetch(ctx context.Context) ([]models.Record, error) {
	body, err := get(ctx, s.Client, s.Config, "text/html")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, sourceUnavailable(err, "parse %s page", s.Config.Name)
	}

	table := doc.Find(s.Config.TableSelector).First()
	if table.Length() == 0 {
		return nil, sourceUnavailable(nil, "%s: no element matches %q", s.Config.Name, s.Config.TableSelector)
	}

	var items []map[string]interface{}
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}
		item := make(map[string]interface{}, len(s.Config.Cells))
		for name, idx := range s.Config.Cells {
			if idx < cells.Length() {
				item[name] = strings.TrimSpace(cells.Eq(idx).Text())
			}
		}
		items = append(items, item)
	})

	return s.Transformer.Transform(items), nil
}

func get(ctx context.Context, client *resty.Client, config *models.SourceSchema, accept string) ([]byte, error) {
	res, err := client.R().
		SetContext(ctx).
		SetHeader("Accept", accept).
		Get(config.URL)
	if err != nil {
		return nil, sourceUnavailable(err, "fetch %s", config.Name)
	}
	if !res.IsSuccess() {
		return nil, sourceUnavailable(nil, "fetch %s: unexpected status %s", config.Name, res.Status())
	}

	logger.Info("fetched source",
		"dataset", config.Name,
		"status", res.StatusCode(),
		"bytes", len(res.Body()),
		"elapsed", res.Time(),
	)
	return res.Body(), nil
}
