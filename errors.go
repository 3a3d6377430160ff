package collab

import (
	"errors"
	"fmt"
)

// Common errors for collaboration engine operations.
var (
	ErrPermissionDenied     = errors.New("permission denied")
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("invalid payload")
	ErrTransientStore       = errors.New("store temporarily unavailable")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// BlockLockedError reports an edit attempt on a block locked by another
// participant. It carries the holder so the client can show who has it.
type BlockLockedError struct {
	BlockID string
	HeldBy  string
}

func (e *BlockLockedError) Error() string {
	return fmt.Sprintf("block %s is locked by %s", e.BlockID, e.HeldBy)
}

// ErrorCode maps an engine error to the wire code used on the error event.
func ErrorCode(err error) string {
	var locked *BlockLockedError
	switch {
	case errors.As(err, &locked):
		return "BLOCK_LOCKED"
	case errors.Is(err, ErrPermissionDenied):
		return "PERMISSION_DENIED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrTransientStore):
		return "STORE_UNAVAILABLE"
	case errors.Is(err, ErrAuthenticationFailed):
		return "AUTHENTICATION_FAILED"
	default:
		return "INTERNAL"
	}
}
