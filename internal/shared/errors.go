package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates a document transition from the wrong status.
	ErrInvalidState = errors.New("invalid status transition")
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrBoutiqueScope indicates a request without a resolved boutique.
	ErrBoutiqueScope = errors.New("boutique scope required")
)

// UserSafeMessage maps an internal error onto a message safe to show users.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "Resource not found"
	case errors.Is(err, ErrInvalidState):
		return "Operation not allowed in the current status"
	case errors.Is(err, ErrValidation):
		return "Invalid input"
	default:
		return "An unexpected error occurred"
	}
}
