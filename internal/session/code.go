package session

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	codePrefix = "GDT"
	codeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// GenerateCode produces a human-typeable pairing code of the form
// GDT-XXXX-XXXX. The character set drops ambiguous glyphs (O/I/0/1). Collision
// checking against live sessions is the store's job; callers regenerate on
// conflict.
func GenerateCode() string {
	chars := []byte(codeChars)
	part1 := make([]byte, 4)
	part2 := make([]byte, 4)

	for i := 0; i < 4; i++ {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		part1[i] = chars[n.Int64()]
	}
	for i := 0; i < 4; i++ {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		part2[i] = chars[n.Int64()]
	}

	return fmt.Sprintf("%s-%s-%s", codePrefix, string(part1), string(part2))
}
