package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandomCodeFormat(t *testing.T) {
	g := codeGenerator{length: 6, maxAttempts: 10}

	for i := 0; i < 100; i++ {
		code, err := g.randomCode()
		require.NoError(t, err)
		require.Len(t, code, 7)
		require.Equal(t, byte('-'), code[3])
		for _, c := range strings.ReplaceAll(code, "-", "") {
			require.Contains(t, codeAlphabet, string(c))
		}
	}
}

func TestNextRetriesCollisions(t *testing.T) {
	g := codeGenerator{length: 6, maxAttempts: 10}

	attempts := 0
	code, scanToken, err := g.next(func(string) bool {
		attempts++
		return attempts <= 3
	})
	require.NoError(t, err)
	require.NotEmpty(t, code)
	require.NotEmpty(t, scanToken)
	require.Equal(t, 4, attempts)
}

func TestNextExhaustsRetryBound(t *testing.T) {
	g := codeGenerator{length: 6, maxAttempts: 5}

	attempts := 0
	_, _, err := g.next(func(string) bool {
		attempts++
		return true
	})
	require.ErrorIs(t, err, ErrCodeSpaceExhausted)
	require.Equal(t, 5, attempts)
}

func TestNormalizeCode(t *testing.T) {
	require.Equal(t, "ABC-234", NormalizeCode("abc234"))
	require.Equal(t, "ABC-234", NormalizeCode("ABC-234"))
	require.Equal(t, "ABC-234", NormalizeCode("  abc-234  "))
	require.Equal(t, "ABC-234", NormalizeCode("abc 234"))
}
