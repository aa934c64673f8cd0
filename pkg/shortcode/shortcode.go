// Package shortcode generates the 8 character public codes printed on staff
// badges and patient cards.
package shortcode

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	Length   = 8
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// New returns a random code of uppercase letters and digits.
func New() string {
	var b strings.Builder
	b.Grow(Length)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < Length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("shortcode: crypto/rand unavailable: " + err.Error())
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String()
}

// NewFrom draws a code from intn, which returns a value in [0, n). Seeded
// sources give reproducible codes.
func NewFrom(intn func(n int) int) string {
	b := make([]byte, Length)
	for i := range b {
		b[i] = alphabet[intn(len(alphabet))]
	}
	return string(b)
}

// Valid reports whether s has the shape of a generated code.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(alphabet, rune(s[i])) {
			return false
		}
	}
	return true
}
