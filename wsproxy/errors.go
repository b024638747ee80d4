package wsproxy

import (
	"github.com/pkg/errors"
)

var (
	// ErrMissingRegistry is returned by New when no registry is configured.
	ErrMissingRegistry = errors.New("wsproxy: missing registry")
)

// connError is a failure confined to a single connection.  Handlers return it
// for errors that must not bring the proxy down.
type connError struct {
	error
}

func (e connError) Cause() error {
	return e.error
}

func (e connError) Unwrap() error {
	return e.error
}

func connFailure(err error, message string) error {
	return connError{errors.Wrap(err, message)}
}

func isConnError(err error) bool {
	var ce connError
	return errors.As(err, &ce)
}
