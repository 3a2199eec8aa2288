package utils

import (
	"crypto/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewConnID returns a unique identifier for a client connection.
func NewConnID() string {
	return uuid.NewString()
}

// Alphabet for room codes. Ambiguous characters (0/O, 1/I) are excluded
// because codes get read aloud and typed by hand.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewRoomCode returns an upper-case alphanumeric token of the given length.
func NewRoomCode(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		// Fallback to timestamp digits if crypto/rand is unavailable.
		ts := strconv.FormatInt(time.Now().UnixNano(), 36)
		for i := range buf {
			buf[i] = codeAlphabet[int(ts[i%len(ts)])%len(codeAlphabet)]
		}
		return string(buf)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}
