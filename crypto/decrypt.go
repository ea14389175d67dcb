package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrDecryptionFailed indicates ciphertext that could not be opened with the
// session private key: tampered data, a mismatched key, or corrupt input.
// Recoverable: the message pipeline substitutes a display marker and keeps
// the envelope.
var ErrDecryptionFailed = errors.New("decryption failed")

// Decrypt opens a base64 RSA-OAEP ciphertext with the session private key.
func (kp *KeyPair) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	opened, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, kp.private, raw, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":        "Decrypt",
			"ciphertext_size": len(raw),
		}).Warn("Ciphertext could not be opened with session key")
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(opened), nil
}
