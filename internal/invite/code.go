package invite

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

// Alphabet drops 0/O, 1/I/L: codes are read aloud at gates and typed on
// phones. 32 symbols, so one random byte masked to 5 bits is uniform.
const Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// CodeLength gives 32^6 (about 1.07e9) codes.
const CodeLength = 6

// Generate returns a fresh random code. Uniqueness is the caller's job.
func Generate() (string, error) {
	return generateFrom(rand.Reader)
}

func generateFrom(r io.Reader) (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = Alphabet[b&31]
	}
	return string(buf), nil
}

// Normalize upper-cases and trims user input so "ab3x9k " finds AB3X9K.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// WellFormed reports whether code could have come from Generate.
func WellFormed(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
