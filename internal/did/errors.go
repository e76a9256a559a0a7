package did

import (
	"errors"
	"fmt"

	"vcsync.org/internal/apperr"
)

var (
	ErrInvalidDID  = fmt.Errorf("%w: DID must look like did:<method>:<identifier>", apperr.ErrInvalidInput)
	ErrDIDNotFound = fmt.Errorf("%w: DID not found", apperr.ErrNotFound)
	ErrDIDTaken    = fmt.Errorf("%w: DID is already registered", apperr.ErrConflict)
	ErrDIDRevoked  = fmt.Errorf("%w: DID is revoked", apperr.ErrInvalidInput)
	ErrKeyNotFound = fmt.Errorf("%w: public key not found", apperr.ErrNotFound)
	ErrInvalidKey  = fmt.Errorf("%w: key_id, key_type and key material are required", apperr.ErrInvalidInput)
)

// Resolution failures. These are reported on the DID record, never returned by Submit.
var (
	ErrUnsupportedMethod = errors.New("unsupported DID method")
	ErrNetwork           = errors.New("DID document fetch failed")
	ErrMalformedDocument = errors.New("malformed DID document")
)
