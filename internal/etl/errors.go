package etl

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrSourceUnavailable marks transport, status and decode failures
	// talking to a provider.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrPersistence marks store failures. A run that returns it has changed
	// nothing in the store.
	ErrPersistence = errors.New("persistence error")
	// ErrMalformedRecord describes a raw item whose fields had to be coerced.
	// It is only ever logged.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrInvalidConfig marks schema and option problems found before a run.
	ErrInvalidConfig = errors.New("invalid configuration")
)

func sourceUnavailable(err error, format string, args ...interface{}) error {
	if err == nil {
		err = errors.Newf(format, args...)
	} else {
		err = errors.Wrapf(err, format, args...)
	}
	return errors.Mark(err, ErrSourceUnavailable)
}

func persistenceError(err error, format string, args ...interface{}) error {
	if err == nil {
		err = errors.Newf(format, args...)
	} else {
		err = errors.Wrapf(err, format, args...)
	}
	return errors.Mark(err, ErrPersistence)
}

func invalidConfig(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidConfig)
}
