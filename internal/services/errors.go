package services

import (
	"errors"

	"github.com/Abrham-amplitude/solana-ticket/internal/keys"
)

var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrSubmissionFailed    = errors.New("submission failed")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrInvalidTicket       = errors.New("invalid ticket")
	ErrNotFound            = errors.New("not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrStorage             = errors.New("storage error")
	ErrHistoryConsumed     = errors.New("history sequence already consumed")
)

// Kind returns the stable machine name of err's category.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, keys.ErrInvalidKeyMaterial):
		return "invalid_key_material"
	case errors.Is(err, keys.ErrDecode):
		return "decode_error"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInvalidTicket):
		return "invalid_ticket"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConfirmationTimeout):
		return "confirmation_timeout"
	case errors.Is(err, ErrSubmissionFailed):
		return "submission_failed"
	case errors.Is(err, ErrHistoryConsumed):
		return "history_consumed"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	}
	return "internal"
}
