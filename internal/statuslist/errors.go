package statuslist

import (
	"fmt"

	"vcsync.org/internal/apperr"
)

var (
	ErrNotFound          = fmt.Errorf("%w: status list not found", apperr.ErrNotFound)
	ErrInvalidCredential = fmt.Errorf("%w: invalid status list credential", apperr.ErrInvalidInput)
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidCredential, msg)
}
