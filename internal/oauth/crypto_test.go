package oauth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptStringRoundTrips(t *testing.T) {
	key, err := loadOrCreateKey(t.TempDir())
	require.NoError(t, err)

	ciphertext, err := encryptString(key, "a-token-secret")
	require.NoError(t, err)
	require.NotEqual(t, "a-token-secret", ciphertext)

	plain, err := decryptString(key, ciphertext)
	require.NoError(t, err)
	require.Equal(t, "a-token-secret", plain)
}

func TestDecryptStringFailsWithWrongKey(t *testing.T) {
	key1, err := loadOrCreateKey(t.TempDir())
	require.NoError(t, err)
	key2, err := loadOrCreateKey(t.TempDir())
	require.NoError(t, err)

	ciphertext, err := encryptString(key1, "secret")
	require.NoError(t, err)

	_, err = decryptString(key2, ciphertext)
	require.Error(t, err)
}

func TestDecryptStringRejectsTruncatedCiphertext(t *testing.T) {
	key, err := loadOrCreateKey(t.TempDir())
	require.NoError(t, err)
	_, err = decryptString(key, "dG9vc2hvcnQ=") // base64("tooshort"), < 24 bytes
	require.Error(t, err)
}

func TestLoadOrCreateKeyPersistsAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	key1, err := loadOrCreateKey(dir)
	require.NoError(t, err)
	key2, err := loadOrCreateKey(dir)
	require.NoError(t, err)
	require.Equal(t, *key1, *key2)
}
