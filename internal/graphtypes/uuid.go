package graphtypes

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// UUID is a 128-bit identifier, formatted as the canonical RFC 4122 string
// when printed. The retrieved example pack carries no UUID dependency, so
// generation is implemented directly against crypto/rand rather than pulling
// in an out-of-pack library for eight lines of bit-twiddling (see DESIGN.md).
type UUID [16]byte

// Nil is the zero-value UUID, used as a sentinel for "no id".
var Nil UUID

// NewUUID generates a random version-4 UUID.
func NewUUID() UUID {
	var u UUID
	if _, err := rand.Read(u[:]); err != nil {
		// crypto/rand.Read on *os.File-backed sources only fails if the
		// system entropy source is unavailable, which we treat as fatal
		// rather than silently returning a zero id.
		panic(fmt.Sprintf("graphtypes: reading random bytes: %v", err))
	}
	u[6] = (u[6] & 0x0f) | 0x40 // version 4
	u[8] = (u[8] & 0x3f) | 0x80 // RFC 4122 variant
	return u
}

// String returns the canonical 8-4-4-4-12 hex representation.
func (u UUID) String() string {
	var buf [36]byte
	hex.Encode(buf[0:8], u[0:4])
	buf[8] = '-'
	hex.Encode(buf[9:13], u[4:6])
	buf[13] = '-'
	hex.Encode(buf[14:18], u[6:8])
	buf[18] = '-'
	hex.Encode(buf[19:23], u[8:10])
	buf[23] = '-'
	hex.Encode(buf[24:36], u[10:16])
	return string(buf[:])
}

// IsNil reports whether u is the zero UUID.
func (u UUID) IsNil() bool {
	return u == Nil
}

// ParseUUID parses the canonical hyphenated hex form.
func ParseUUID(s string) (UUID, error) {
	var u UUID
	if len(s) != 36 || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return u, errors.New("graphtypes: invalid uuid format")
	}
	hexParts := [][2]int{{0, 8}, {9, 13}, {14, 18}, {19, 23}, {24, 36}}
	dst := u[:0]
	for _, p := range hexParts {
		b, err := hex.DecodeString(s[p[0]:p[1]])
		if err != nil {
			return UUID{}, fmt.Errorf("graphtypes: invalid uuid format: %w", err)
		}
		dst = append(dst, b...)
	}
	copy(u[:], dst)
	return u, nil
}

// MarshalText implements encoding.TextMarshaler so UUID round-trips through
// JSON as a plain string.
func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UUID) UnmarshalText(b []byte) error {
	parsed, err := ParseUUID(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
