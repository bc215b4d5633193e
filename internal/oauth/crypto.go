package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
)

const keyFileName = ".oauth_key"

// loadOrCreateKey returns the 32-byte secretbox key stored at
// dir/.oauth_key, generating and persisting one (owner-only permissions)
// on first use.
func loadOrCreateKey(dir string) (*[32]byte, error) {
	path := filepath.Join(dir, keyFileName)
	if raw, err := os.ReadFile(path); err == nil {
		if len(raw) != 32 {
			return nil, fmt.Errorf("oauth key file %s has unexpected length %d", path, len(raw))
		}
		var key [32]byte
		copy(key[:], raw)
		return &key, nil
	}

	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("generate oauth key: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create oauth dir: %w", err)
	}
	if err := os.WriteFile(path, key[:], 0o600); err != nil {
		return nil, fmt.Errorf("persist oauth key: %w", err)
	}
	return &key, nil
}

// encryptString seals plaintext with a fresh random nonce, returning
// base64(nonce || ciphertext).
func encryptString(key *[32]byte, plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// decryptString reverses encryptString.
func decryptString(key *[32]byte, encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) < 24 {
		return "", errors.New("ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, key)
	if !ok {
		return "", errors.New("decryption failed: key mismatch or corrupted data")
	}
	return string(plain), nil
}
