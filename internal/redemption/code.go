package redemption

import (
	"crypto/rand"
	"strings"
)

// codeAlphabet omits ambiguous characters (0/O, 1/I) so the code survives
// being read aloud at a counter.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeGroups = 3
const codeGroupLen = 4

// generateCode returns a human-presentable redemption code like
// "K7QP-2MXE-9RAF". 12 characters over a 32-symbol alphabet give 2^60
// possibilities; a unique index on the column backs up the negligible
// collision odds.
func generateCode() (string, error) {
	buf := make([]byte, codeGroups*codeGroupLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	for i, c := range buf {
		if i > 0 && i%codeGroupLen == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
	}
	return b.String(), nil
}
