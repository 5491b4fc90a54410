package garo

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField reports a payload without a field the device is
	// expected to send. Fields are never silently defaulted.
	ErrMissingField = errors.New("missing field")

	// ErrUnknownProduct reports a product id that is not in the model table.
	ErrUnknownProduct = errors.New("unknown product id")

	// ErrBothProfilesFailed reports that the device answered neither on the
	// current nor on the legacy API profile.
	ErrBothProfilesFailed = errors.New("device unreachable, both api profiles failed")
)

// StatusError reports a non-2xx HTTP response from the charger.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code from charger: %v", e.Code)
}
