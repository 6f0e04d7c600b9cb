package controlapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTokenIsRightLengthAndAlphabet(t *testing.T) {
	tok, err := GenerateToken()
	require.NoError(t, err)
	assert.Len(t, tok, tokenLength)
	for _, c := range tok {
		assert.Contains(t, base62Chars, string(c))
	}
}

func TestDeriveCheckIsDeterministic(t *testing.T) {
	a, err := deriveCheck("same-token")
	require.NoError(t, err)
	b, err := deriveCheck("same-token")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDeriveCheckRejectsEmptyToken(t *testing.T) {
	_, err := deriveCheck("")
	assert.Error(t, err)
}

func TestTokensEqual(t *testing.T) {
	a, _ := deriveCheck("token-a")
	b, _ := deriveCheck("token-b")
	aAgain, _ := deriveCheck("token-a")
	assert.True(t, tokensEqual(a, aAgain))
	assert.False(t, tokensEqual(a, b))
}

func TestSealOpenTokenRoundTrip(t *testing.T) {
	key, err := generateMasterKey()
	require.NoError(t, err)

	sealed, err := sealToken(key, "my-secret-token")
	require.NoError(t, err)

	opened, err := openToken(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, "my-secret-token", opened)
}

func TestOpenTokenFailsWithWrongKey(t *testing.T) {
	key1, _ := generateMasterKey()
	key2, _ := generateMasterKey()
	sealed, err := sealToken(key1, "secret")
	require.NoError(t, err)

	_, err = openToken(key2, sealed)
	assert.Error(t, err)
}
