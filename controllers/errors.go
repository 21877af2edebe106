package controllers

import (
	"errors"
	"net/http"

	"github.com/agromallas/mallas-app/apperrors"
)

// httpStatusFor maps the core error taxonomy onto HTTP status codes. Anything
// unrecognized is a 500.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInsufficientArea),
		errors.Is(err, apperrors.ErrInsufficientQuantity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrInvalidState),
		errors.Is(err, apperrors.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrUnknownPiece):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
