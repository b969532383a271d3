// Package tableid generates prefixed, time-sortable table identifiers:
// a UUIDv7 rendered as 26 characters of Crockford base32 under a "tbl_"
// prefix, e.g. "tbl_01h455vb4pex5vsknk084sn02q".
package tableid

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

const (
	prefix   = "tbl_"
	idLen    = 26
	alphabet = "0123456789abcdefghjkmnpqrstvwxyz"
)

// New returns a fresh table ID. IDs created later sort later, which keeps
// table listings in creation order for free.
func New() string {
	return prefix + encodeBase32(newUUIDv7())
}

// Validate reports whether the ID has the right prefix, length and
// alphabet.
func Validate(id string) error {
	body, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return fmt.Errorf("table ID must start with %q", prefix)
	}
	if len(body) != idLen {
		return fmt.Errorf("table ID body must be %d characters, got %d", idLen, len(body))
	}
	// The top three bits of a 128-bit value are zero in base32, so the
	// first character never exceeds '7'.
	if body[0] > '7' {
		return fmt.Errorf("table ID first character must be 0-7, got %c", body[0])
	}
	for i := 0; i < len(body); i++ {
		if !strings.ContainsRune(alphabet, rune(body[i])) {
			return fmt.Errorf("invalid character %c at position %d", body[i], i)
		}
	}
	return nil
}

// newUUIDv7 builds a 128-bit UUIDv7: 48 bits of millisecond timestamp,
// then random bits with the version and variant fields stamped in.
func newUUIDv7() [16]byte {
	var uuid [16]byte

	now := time.Now().UnixMilli()
	uuid[0] = byte(now >> 40)
	uuid[1] = byte(now >> 32)
	uuid[2] = byte(now >> 24)
	uuid[3] = byte(now >> 16)
	uuid[4] = byte(now >> 8)
	uuid[5] = byte(now)

	if _, err := rand.Read(uuid[6:]); err != nil {
		panic("tableid: reading random bytes: " + err.Error())
	}

	uuid[6] = (uuid[6] & 0x0f) | 0x70 // version 7
	uuid[8] = (uuid[8] & 0x3f) | 0x80 // variant 10

	return uuid
}

// encodeBase32 packs the 128 bits into 26 base32 characters, five bits at
// a time, most significant first.
func encodeBase32(data [16]byte) string {
	var out [idLen]byte
	for i := 0; i < idLen; i++ {
		bitOffset := i * 5
		byteIndex := bitOffset / 8
		bitIndex := bitOffset % 8

		var value uint8
		if bitIndex <= 3 {
			value = (data[byteIndex] >> (3 - bitIndex)) & 0x1f
		} else {
			value = (data[byteIndex] << (bitIndex - 3)) & 0x1f
			if byteIndex+1 < 16 {
				value |= data[byteIndex+1] >> (11 - bitIndex)
			}
		}
		out[i] = alphabet[value]
	}
	return string(out[:])
}
