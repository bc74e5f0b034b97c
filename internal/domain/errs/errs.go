// Package errs holds the sentinel error kinds shared by the pipeline and the query layer.
//
// Every layer wraps these with fmt.Errorf("op: %w", ...) so callers can match
// them with errors.Is regardless of how deep the failure happened.
package errs

import "errors"

// Batch errors. The step that returns one aborts without persisting anything.
var (
	ErrDataIntegrity   = errors.New("data integrity violation")
	ErrDegenerateScope = errors.New("degenerate scope")
)

// Query errors. They are deterministic and never retried.
var (
	ErrUnknownIdentifier = errors.New("unknown identifier")
	ErrUnknownPlayer     = errors.New("unknown player")
	ErrEmptyIndex        = errors.New("index has fewer than two members")
	ErrSamePlayer        = errors.New("cannot compare a player with itself")
	ErrInvalidLimit      = errors.New("invalid neighbor limit")
	ErrUnknownScope      = errors.New("unknown scope")
)

// IsQueryError reports whether err is one of the recoverable query kinds.
func IsQueryError(err error) bool {
	switch {
	case errors.Is(err, ErrUnknownIdentifier),
		errors.Is(err, ErrUnknownPlayer),
		errors.Is(err, ErrEmptyIndex),
		errors.Is(err, ErrSamePlayer),
		errors.Is(err, ErrInvalidLimit),
		errors.Is(err, ErrUnknownScope):
		return true
	}
	return false
}

// Kind returns a short stable label for err, used in metrics and API payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDataIntegrity):
		return "data_integrity"
	case errors.Is(err, ErrDegenerateScope):
		return "degenerate_scope"
	case errors.Is(err, ErrUnknownIdentifier):
		return "unknown_identifier"
	case errors.Is(err, ErrUnknownPlayer):
		return "unknown_player"
	case errors.Is(err, ErrEmptyIndex):
		return "empty_index"
	case errors.Is(err, ErrSamePlayer):
		return "same_player"
	case errors.Is(err, ErrInvalidLimit):
		return "invalid_limit"
	case errors.Is(err, ErrUnknownScope):
		return "unknown_scope"
	default:
		return "internal"
	}
}
