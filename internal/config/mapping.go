package config

import (
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/aryanagg/si206-final/pkg/logger"
	"github.com/aryanagg/si206-final/pkg/models"
	"github.com/cockroachdb/errors"
	"github.com/titanous/json5"
)

// overrider is implemented by config types that merge a local override
// themselves instead of relying on a whole-value mergo merge.
type overrider[T any] interface {
	Override(local T) error
}

// ReadConfig reads a JSON5 file and merges an optional sibling override,
// where sources.json5 is overridden by sources.local.json5. It returns
// os.ErrNotExist when neither file exists.
func ReadConfig[T any](name string) (T, error) {
	var out T
	allNotFound := true

	ext := filepath.Ext(name)
	localPath := strings.TrimSuffix(name, ext) + ".local" + ext

	defaultFile, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(defaultFile) > 0 {
		if err := json5.Unmarshal(defaultFile, &out); err != nil {
			return out, errors.Wrapf(err, "failed to parse '%s'", name)
		}
		allNotFound = false
	}

	localFile, err := os.ReadFile(localPath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(localFile) > 0 {
		var override T
		if err := json5.Unmarshal(localFile, &override); err != nil {
			return out, errors.Wrapf(err, "failed to parse '%s'", localPath)
		}
		if o, ok := any(&out).(overrider[T]); ok {
			err = o.Override(override)
		} else {
			err = mergo.Merge(&out, override, mergo.WithOverride)
		}
		if err != nil {
			return out, errors.Wrapf(err, "failed to apply '%s'", localPath)
		}
		logger.Info("merged config with local overrides", "local", localPath)
		allNotFound = false
	}

	if allNotFound {
		return out, os.ErrNotExist
	}
	return out, nil
}

// LoadMapping reads the sources file describing every dataset.
func LoadMapping(filePath string) (*models.Catalog, error) {
	catalog, err := ReadConfig[models.Catalog](filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sources file '%s'", filePath)
	}
	if len(catalog.Sources) == 0 {
		return nil, errors.Newf("sources file '%s' defines no datasets", filePath)
	}

	for name, schema := range catalog.Sources {
		if schema.Name == "" {
			schema.Name = name
			catalog.Sources[name] = schema
		}
	}
	return &catalog, nil
}
