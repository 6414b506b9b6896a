package models

import "github.com/pkg/errors"

// Business-rule and validation errors surfaced to clients. Everything else
// that reaches a client acknowledgment collapses into a generic failure; see
// ErrorMessage.
var (
	ErrPollNotFound        = errors.New("poll not found")
	ErrPollNotOpen         = errors.New("poll not open")
	ErrInvalidOption       = errors.New("invalid option")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNicknameTaken       = errors.New("nickname taken")
	ErrNotHost             = errors.New("not the poll host")
	ErrValidation          = errors.New("invalid request")
)

const (
	ErrCodeInvalidRequest   = "ERR_INVALID_REQUEST"
	ErrCodeInvalidOperation = "ERR_INVALID_OPERATION"
)

// IsClientError reports whether err is safe to show to a client verbatim.
func IsClientError(err error) bool {
	for _, known := range []error{
		ErrPollNotFound,
		ErrPollNotOpen,
		ErrInvalidOption,
		ErrInvalidTransition,
		ErrParticipantNotFound,
		ErrNicknameTaken,
		ErrNotHost,
		ErrValidation,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}

// ErrorMessage maps err to the short message placed in acknowledgments.
// Internal detail never crosses this boundary.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrPollNotFound):
		return "room not found"
	case errors.Is(err, ErrPollNotOpen):
		return "poll is not open for voting"
	case errors.Is(err, ErrInvalidOption):
		return "invalid option"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid state transition"
	case errors.Is(err, ErrParticipantNotFound):
		return "participant not found"
	case errors.Is(err, ErrNicknameTaken):
		return "nickname already in use"
	case errors.Is(err, ErrNotHost):
		return "only the host may do that"
	case errors.Is(err, ErrValidation):
		return "invalid request"
	default:
		return "something went wrong, please try again"
	}
}
