package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"vcsync.org/internal/apperr"
)

const (
	// MinPasswordLength applies to admin registration and worker enrollment.
	MinPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

// bcryptCost is lowered in tests.
var bcryptCost = bcrypt.DefaultCost

var errPasswordTooLong = fmt.Errorf("%w: password must be at most %d bytes", apperr.ErrInvalidInput, maxPasswordBytes)

// ValidatePassword enforces the password policy.
func ValidatePassword(password string) error {
	switch {
	case len(password) < MinPasswordLength:
		return ErrWeakPassword
	case len(password) > maxPasswordBytes:
		return errPasswordTooLong
	}
	return nil
}

// HashPassword returns the bcrypt hash stored on pending registrations and accounts.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports ErrInvalidCredentials on any mismatch, including an empty hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return err
	}
	return nil
}
