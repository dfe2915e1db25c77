package pipeline

import (
	"errors"
	"fmt"
)

// ValidationError reports a structurally invalid spec or experiment row:
// duplicate or dangling action references, cycles, undeclared experiment
// keys. Structural validation errors are raised before any store mutation.
type ValidationError struct {
	// Action names the offending action, when one can be identified.
	Action  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("action %q: %s", e.Action, e.Message)
	}
	return e.Message
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
