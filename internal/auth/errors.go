package auth

import (
	"fmt"

	"vcsync.org/internal/apperr"
)

var (
	ErrPendingNotFound   = fmt.Errorf("%w: registration request not found", apperr.ErrNotFound)
	ErrRegistrationUsed  = fmt.Errorf("%w: invalid or expired registration request", apperr.ErrNotFound)
	ErrPendingExists     = fmt.Errorf("%w: a registration request for this organization is already pending", apperr.ErrConflict)
	ErrAlreadyConsumed   = fmt.Errorf("%w: already consumed", apperr.ErrConflict)
	ErrOTPExpired        = fmt.Errorf("%w: registration request expired", apperr.ErrInvalidInput)
	ErrInvalidOTP        = fmt.Errorf("%w: invalid OTP", apperr.ErrInvalidInput)
	ErrTooManyAttempts   = fmt.Errorf("%w: too many attempts; request a new OTP", apperr.ErrTooManyAttempts)
	ErrWeakPassword      = fmt.Errorf("%w: password must be at least %d characters", apperr.ErrInvalidInput, MinPasswordLength)
	ErrDeprecatedOrgID   = fmt.Errorf("%w: org_id is no longer supported; use organization", apperr.ErrInvalidInput)
	ErrInvalidGender     = fmt.Errorf("%w: gender must be one of M, F, O", apperr.ErrInvalidInput)
	ErrEmailNotFound     = fmt.Errorf("%w: no account with this email", apperr.ErrNotFound)
	ErrLoginCodeNotFound = fmt.Errorf("%w: login code not found", apperr.ErrNotFound)
	ErrInvalidCode       = fmt.Errorf("%w: invalid code", apperr.ErrInvalidInput)
	ErrCodeUsed          = fmt.Errorf("%w: code already used", apperr.ErrInvalidInput)
	ErrCodeExpired       = fmt.Errorf("%w: code expired", apperr.ErrInvalidInput)

	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: invalid token", apperr.ErrUnauthorized)
	ErrUnauthenticated    = fmt.Errorf("%w: authentication required", apperr.ErrUnauthorized)
)
