package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	require.NotNil(t, kp)
	require.NotNil(t, kp.Public)
	assert.Equal(t, KeyBits, kp.Public.N.BitLen())

	// Two generations must not collide.
	kp2, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.NotEqual(t, kp.Public.N, kp2.Public.N)
}

func TestExportImportRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	exported, err := kp.ExportPublicKey()
	require.NoError(t, err)
	assert.NotEmpty(t, exported)

	// Export is deterministic for a given key.
	again, err := kp.ExportPublicKey()
	require.NoError(t, err)
	assert.Equal(t, exported, again)

	pub, err := ImportPublicKey(exported)
	require.NoError(t, err)
	assert.Equal(t, kp.Public.N, pub.N)
	assert.Equal(t, kp.Public.E, pub.E)
}

func TestImportPublicKeyMalformed(t *testing.T) {
	cases := []struct {
		name    string
		encoded string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"base64 but not DER", base64.StdEncoding.EncodeToString([]byte("junk"))},
		{"empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ImportPublicKey(tc.encoded)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedKey)
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	ciphertext, err := Encrypt("hi", kp.Public)
	require.NoError(t, err)
	assert.NotEqual(t, "hi", ciphertext)

	plaintext, err := kp.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hi", plaintext)
}

func TestEncryptProducesFreshCiphertext(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	first, err := Encrypt("same text", kp.Public)
	require.NoError(t, err)
	second, err := Encrypt("same text", kp.Public)
	require.NoError(t, err)

	// OAEP is randomized; identical plaintexts must not produce
	// identical ciphertexts.
	assert.NotEqual(t, first, second)
}

func TestEncryptOversizedPlaintext(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	// 2048-bit OAEP/SHA-256 caps a single block well below 256 bytes.
	_, err = Encrypt(strings.Repeat("x", 300), kp.Public)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncryptionFailed)
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	ciphertext, err := Encrypt("secret", kp.Public)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xFF
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = kp.Decrypt(tampered)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptWithWrongKey(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	ciphertext, err := Encrypt("for alice only", alice.Public)
	require.NoError(t, err)

	_, err = bob.Decrypt(ciphertext)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptGarbageInput(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	_, err = kp.Decrypt("not even base64 !!!")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}
