package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
	ErrRateLimited  = errors.New("rate limited")
)

var (
	errMalformedID         = errors.New("id must be a positive integer")
	errAddDemonLimited     = errors.New("please don't spam the button")
	errSubmissionIPLimited = errors.New("you're submitting too many records too fast")
	errSubmissionLimited   = errors.New("too many records are being submitted right now")
)

// Wrap attaches a sentinel kind to err so callers can match it with errors.Is.
func Wrap(kind, err error) error {
	if err == nil {
		return kind
	}
	return fmt.Errorf("%w: %v", kind, err)
}
