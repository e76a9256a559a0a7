package ids

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math/big"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

var tenDigits = big.NewInt(10)

// Digits returns an n-digit numeric code drawn from crypto/rand. Leading zeros are kept.
func Digits(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("ids: digit count must be positive")
	}
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, tenDigits)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// Opaque returns a random hex token of size bytes (40 hex characters for 20 bytes).
func Opaque(size int) (string, error) {
	if size <= 0 {
		return "", errors.New("ids: token size must be positive")
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
