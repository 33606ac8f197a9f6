package tracking

import (
	"fmt"
	"strings"
)

// MissingParamError signals a payload missing a field its event type
// requires. Nothing is recorded when this is returned.
type MissingParamError struct {
	Params []string
}

func (e *MissingParamError) Error() string {
	if len(e.Params) == 1 {
		return "missing required parameter: " + e.Params[0]
	}
	return "missing required parameters: " + strings.Join(e.Params, " and ")
}

// InvalidSessionError signals an event referencing a token with no backing
// session. Distinct from validation errors so clients know to re-resolve
// rather than fix the payload.
type InvalidSessionError struct {
	SessionID string
}

func (e *InvalidSessionError) Error() string {
	return fmt.Sprintf("invalid session: %s", e.SessionID)
}
