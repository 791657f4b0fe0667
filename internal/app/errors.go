package service

import (
	"errors"
	"fmt"

	"github.com/pointercrate/demonlist/internal/domain/model"
)

// Sentinel error kinds for the service. Submission rejections all wrap
// ErrInvalidSubmission.
var (
	ErrNotStarted          = errors.New("service not started")
	ErrDuplicateSubmission = errors.New("a record with this video was already submitted")
	ErrInvalidSubmission   = errors.New("invalid record submission")

	ErrProgressOutOfRange = fmt.Errorf("%w: progress must be between 0 and 100", ErrInvalidSubmission)
	ErrSubmitLegacy       = fmt.Errorf("%w: records on legacy demons are not accepted", ErrInvalidSubmission)
	ErrNon100Extended     = fmt.Errorf("%w: records on extended list demons must be 100%%", ErrInvalidSubmission)
	ErrBelowRequirement   = fmt.Errorf("%w: progress is below the demon's requirement", ErrInvalidSubmission)
)

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrProgressOutOfRange):
		return "progress"
	case errors.Is(err, ErrSubmitLegacy):
		return "legacy"
	case errors.Is(err, ErrNon100Extended):
		return "extended"
	case errors.Is(err, ErrBelowRequirement):
		return "requirement"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidSubmission):
		return "invalid"
	default:
		return "error"
	}
}
