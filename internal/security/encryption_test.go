package security

import (
	"crypto/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor_EncryptDecrypt(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	encryptor, err := NewEncryptor(key)
	require.NoError(t, err)

	testCases := []struct {
		name      string
		plaintext string
	}{
		{name: "patient name", plaintext: "Jane Doe"},
		{name: "empty string", plaintext: ""},
		{name: "unicode text", plaintext: "Ramón Pérez Núñez"},
		{name: "sentinel", plaintext: "Not available"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ciphertext, err := encryptor.Encrypt(tc.plaintext)
			require.NoError(t, err)

			if tc.plaintext == "" {
				assert.Equal(t, "", ciphertext)
				return
			}
			assert.NotEqual(t, tc.plaintext, ciphertext)

			decrypted, err := encryptor.Decrypt(ciphertext)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, decrypted)
		})
	}
}

func TestEncryptor_InvalidKey(t *testing.T) {
	for _, size := range []int{0, 16, 31, 64} {
		_, err := NewEncryptor(make([]byte, size))
		assert.Error(t, err, "key size %d", size)
	}
}

func TestNewEncryptorFromPassphrase(t *testing.T) {
	_, err := NewEncryptorFromPassphrase("")
	assert.Error(t, err)

	a, err := NewEncryptorFromPassphrase("correct horse battery staple")
	require.NoError(t, err)
	b, err := NewEncryptorFromPassphrase("correct horse battery staple")
	require.NoError(t, err)

	ciphertext, err := a.Encrypt("Dr. Rao")
	require.NoError(t, err)
	plaintext, err := b.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Rao", plaintext)

	other, err := NewEncryptorFromPassphrase("another passphrase")
	require.NoError(t, err)
	_, err = other.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestEncryptor_DecryptRejectsGarbage(t *testing.T) {
	encryptor, err := NewEncryptorFromPassphrase("k")
	require.NoError(t, err)

	_, err = encryptor.Decrypt("not base64!!")
	assert.Error(t, err)

	_, err = encryptor.Decrypt("AAAA")
	assert.Error(t, err)
}

func TestEncryptor_NonceIsFresh(t *testing.T) {
	encryptor, err := NewEncryptorFromPassphrase("k")
	require.NoError(t, err)

	first, err := encryptor.Encrypt("same")
	require.NoError(t, err)
	second, err := encryptor.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestEncryptor_RoundTripProperty(t *testing.T) {
	encryptor, err := NewEncryptorFromPassphrase("property")
	require.NoError(t, err)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("decrypt inverts encrypt", prop.ForAll(
		func(s string) bool {
			ciphertext, err := encryptor.Encrypt(s)
			if err != nil {
				return false
			}
			plaintext, err := encryptor.Decrypt(ciphertext)
			return err == nil && plaintext == s
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
