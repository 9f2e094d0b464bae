package backup

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSalt(t *testing.T) {
	salt1, err := GenerateSalt()
	require.NoError(t, err)
	assert.Len(t, salt1, saltSize)

	salt2, err := GenerateSalt()
	require.NoError(t, err)
	assert.NotEqual(t, salt1, salt2, "two salts should not be equal")
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("1234567890abcdef")

	key1 := DeriveKey("mypassphrase", salt)
	key2 := DeriveKey("mypassphrase", salt)
	assert.Equal(t, key1, key2, "same passphrase+salt should produce same key")
	assert.Len(t, key1, keySize)

	assert.NotEqual(t, key1, DeriveKey("other", salt))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	original := []byte(`{"version":1,"collections":{"shopping_items":[]}}`)

	encrypted, err := Encrypt(original, "test-passphrase-123")
	require.NoError(t, err)
	assert.False(t, bytes.Contains(encrypted, original))

	decrypted, err := Decrypt(encrypted, "test-passphrase-123")
	require.NoError(t, err)
	assert.Equal(t, original, decrypted)
}

func TestEncryptUsesFreshSalt(t *testing.T) {
	a, err := Encrypt([]byte("same"), "pw")
	require.NoError(t, err)
	b, err := Encrypt([]byte("same"), "pw")
	require.NoError(t, err)

	assert.NotEqual(t, a[:saltSize], b[:saltSize])
}

func TestEncryptEmptyPlaintext(t *testing.T) {
	encrypted, err := Encrypt(nil, "pw")
	require.NoError(t, err)

	decrypted, err := Decrypt(encrypted, "pw")
	require.NoError(t, err)
	assert.Empty(t, decrypted)
}

func TestEncryptRequiresPassphrase(t *testing.T) {
	_, err := Encrypt([]byte("data"), "")
	assert.Error(t, err)
}

func TestDecryptFailures(t *testing.T) {
	encrypted, err := Encrypt([]byte("secret data"), "correct-password")
	require.NoError(t, err)

	_, err = Decrypt(encrypted, "wrong-password")
	assert.ErrorIs(t, err, ErrDecrypt)

	tampered := bytes.Clone(encrypted)
	tampered[saltSize+nonceSize+1] ^= 0xFF
	_, err = Decrypt(tampered, "correct-password")
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = Decrypt([]byte("too short"), "correct-password")
	assert.ErrorIs(t, err, ErrDecrypt)
}
