// Package sessionid mints sortable identifiers for sync sessions, in TypeID
// form: "ses_" followed by a UUIDv7 in 26 characters of Crockford base32.
package sessionid

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Prefix marks every session id.
const Prefix = "ses_"

// Crockford's base32, lower case
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

const encodedLen = 26

// New returns a fresh session id.
func New() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return Prefix + encode(id), nil
}

// NewFromReader is New with an explicit randomness source.
func NewFromReader(r io.Reader) (string, error) {
	id, err := uuid.NewV7FromReader(r)
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return Prefix + encode(id), nil
}

// MustNew is New for callers that cannot recover from a broken entropy
// source.
func MustNew() string {
	id, err := New()
	if err != nil {
		panic(err)
	}
	return id
}

// encode writes the 128 bits as 26 five-bit groups, with two zero bits
// padded on the left.
func encode(id uuid.UUID) string {
	var out [encodedLen]byte
	var acc uint64
	bits := 2 // leading padding
	pos := 0
	for _, b := range id {
		acc = acc<<8 | uint64(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out[pos] = alphabet[(acc>>uint(bits))&0x1f]
			pos++
		}
	}
	return string(out[:])
}

// Validate checks that id is a well formed session id.
func Validate(id string) error {
	rest, ok := strings.CutPrefix(id, Prefix)
	if !ok {
		return fmt.Errorf("session id must start with %q", Prefix)
	}
	if len(rest) != encodedLen {
		return fmt.Errorf("session id must have %d characters after the prefix, got %d", encodedLen, len(rest))
	}
	if rest[0] > '7' {
		return fmt.Errorf("session id first character must be 0-7, got %c", rest[0])
	}
	for i, char := range rest {
		if !strings.ContainsRune(alphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i+len(Prefix))
		}
	}
	return nil
}
