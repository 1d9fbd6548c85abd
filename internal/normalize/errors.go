// Package normalize converts raw extracted text into canonical typed values.
// Every function is pure and total: failures come back as *Error values that
// echo the offending input, never as panics.
package normalize

import (
	"errors"
	"fmt"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// Error is a normalization failure for a single field.
type Error struct {
	Field  string
	Reason model.ReasonCode
	Input  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("normalize: %s: cannot parse %q", e.Field, e.Input)
}

// ReasonOf returns the reason code carried by err, or "" if err is not a
// normalization failure.
func ReasonOf(err error) model.ReasonCode {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Reason
	}
	return ""
}

func fail(field string, reason model.ReasonCode, input string) *Error {
	return &Error{Field: field, Reason: reason, Input: input}
}
