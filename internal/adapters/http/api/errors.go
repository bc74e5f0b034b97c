package api

import (
	"errors"
	"fmt"
	"net/http"

	service "github.com/joshphelan/nba-player-similarity/internal/app"
	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// NewKind returns an error of kind tagged with the failing operation.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// Wrap tags err with the failing operation.
func Wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// WrapKind tags err with the failing operation and classifies it as kind.
func WrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// statusOf maps an error to its HTTP status and payload code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, errs.ErrUnknownScope),
		errors.Is(err, errs.ErrUnknownPlayer),
		errors.Is(err, errs.ErrUnknownIdentifier):
		return http.StatusNotFound, errs.Kind(err)
	case errs.IsQueryError(err):
		return http.StatusBadRequest, errs.Kind(err)
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_started"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
