package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := []byte("device-key")
	plaintext := []byte("narrated story audio bytes")

	ciphertext, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	got, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	ciphertext, err := Encrypt([]byte("secret"), []byte("key-a"))
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, []byte("key-b"))
	assert.Error(t, err)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	key := []byte("device-key")
	ciphertext, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xff
	_, err = Decrypt(ciphertext, key)
	assert.Error(t, err)
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	_, err := Decrypt([]byte("tiny"), []byte("key"))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestFileRoundTrip(t *testing.T) {
	key := []byte("device-key")
	path := filepath.Join(t.TempDir(), "story_srv-1.bin")
	data := []byte("narrated story audio bytes")

	require.NoError(t, EncryptToFile(path, data, key))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "narrated", "audio must not rest in plaintext")

	got, err := DecryptFile(path, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
