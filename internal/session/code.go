package session

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
)

// codeAlphabet avoids characters that read ambiguously on a projected screen
// (no I, O, 0, 1). Its length is exactly 32 so a random byte masks down to a
// uniform index.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type codeGenerator struct {
	length      int
	maxAttempts int
}

// next returns a join code plus its paired scan token. taken reports whether
// a candidate code is already held by a non-terminal session; collisions are
// retried up to maxAttempts before giving up with ErrCodeSpaceExhausted.
func (g codeGenerator) next(taken func(string) bool) (code, scanToken string, err error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		candidate, err := g.randomCode()
		if err != nil {
			return "", "", err
		}
		if taken(candidate) {
			continue
		}
		return candidate, uuid.NewString(), nil
	}
	return "", "", ErrCodeSpaceExhausted
}

func (g codeGenerator) randomCode() (string, error) {
	buf := make([]byte, g.length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	for i, c := range buf {
		if i == g.length/2 {
			b.WriteByte('-')
		}
		b.WriteByte(codeAlphabet[c&31])
	}
	return b.String(), nil
}

// NormalizeCode maps user input onto the canonical XXX-XXX form. Comparison
// is case-insensitive and the dash is optional on entry.
func NormalizeCode(raw string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	cleaned = strings.NewReplacer("-", "", " ", "").Replace(cleaned)
	if len(cleaned) < 2 {
		return cleaned
	}
	return cleaned[:len(cleaned)/2] + "-" + cleaned[len(cleaned)/2:]
}
