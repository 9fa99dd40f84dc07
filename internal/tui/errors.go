package tui

import "github.com/pkg/errors"

// wrapErr prefixes err with the action that produced it.
func wrapErr(action string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, action)
}
