package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrEncryptionFailed indicates a plaintext that could not be sealed for the
// recipient, typically because it exceeds the OAEP capacity of a single RSA
// block. Recoverable: callers fall back to plaintext delivery.
var ErrEncryptionFailed = errors.New("encryption failed")

// Encrypt seals plaintext for the holder of the paired private key using
// RSA-OAEP with a SHA-256 digest. The ciphertext is returned base64-encoded
// so it can ride inside a JSON message body.
func Encrypt(plaintext string, pub *rsa.PublicKey) (string, error) {
	if pub == nil {
		return "", fmt.Errorf("%w: nil public key", ErrEncryptionFailed)
	}

	sealed, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, []byte(plaintext), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}
