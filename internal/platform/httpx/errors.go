package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	var insufficient *shared.InsufficientStockError
	switch {
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrPartNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &insufficient):
		Problem(w, http.StatusConflict, "Insufficient Stock", insufficient.Error())
	case errors.Is(err, shared.ErrInsufficientStock):
		Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Submission", err.Error())
	case errors.Is(err, shared.ErrInvalidState):
		Problem(w, http.StatusConflict, "Invalid Status Transition", err.Error())
	case errors.As(err, &validationErrs),
		errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrInvalidQuantity),
		errors.Is(err, shared.ErrInvalidMovementType):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrBoutiqueScope):
		Problem(w, http.StatusForbidden, "Boutique Scope Required", err.Error())
	default:
		// Internal detail stays in the logs; clients get the generic message.
		Problem(w, http.StatusInternalServerError, "Internal Error", shared.UserSafeMessage(err))
	}
}
