package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key := make([]byte, 32)
	sealed, err := Seal("secret", key, []byte("ad"))
	require.NoError(t, err)

	plain, err := Open(sealed, key, []byte("ad"))
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)

	_, err = Open(sealed, key, []byte("other"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = Seal("x", []byte("short"), nil)
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = Open("AAAA", key, nil)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestTokenCipher(t *testing.T) {
	c, err := NewTokenCipher("master-key")
	require.NoError(t, err)

	sealed, err := c.SealToken(1, 10, "IGQVJ-token")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "IGQVJ")

	token, err := c.OpenToken(1, 10, sealed)
	require.NoError(t, err)
	assert.Equal(t, "IGQVJ-token", token)

	_, err = c.OpenToken(2, 10, sealed)
	assert.Error(t, err, "another workspace's key must not open it")

	_, err = c.OpenToken(1, 11, sealed)
	assert.Error(t, err, "the token is bound to its account")

	other, err := NewTokenCipher("different")
	require.NoError(t, err)
	_, err = other.OpenToken(1, 10, sealed)
	assert.Error(t, err)

	_, err = c.OpenToken(1, 10, "")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = NewTokenCipher("")
	assert.ErrorIs(t, err, ErrMasterKeyNotSet)
}
