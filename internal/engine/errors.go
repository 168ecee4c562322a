package engine

import (
	"fmt"

	"github.com/marchcraft/upscaled/internal/model"
)

// ValidationError rejects a request before any backend is touched. It maps
// to a 4xx response with no backend field populated.
type ValidationError struct {
	Field    string
	Reason   string
	TooLarge bool // oversized payload, answered with 413 instead of 400
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AllBackendsFailedError is the terminal failure: every candidate, including
// the classical fallback, failed.
type AllBackendsFailedError struct {
	Attempts []model.Attempt
}

func (e *AllBackendsFailedError) Error() string {
	return fmt.Sprintf("all %d backends failed", len(e.Attempts))
}
