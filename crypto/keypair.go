package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// KeyBits is the RSA modulus size used for session keys.
const KeyBits = 2048

var (
	// ErrCryptoUnavailable indicates the platform could not supply a
	// cryptographically secure key generator. Fatal to session start.
	ErrCryptoUnavailable = errors.New("secure key generation unavailable")
	// ErrMalformedKey indicates a public key string that could not be
	// decoded or parsed. Recoverable: callers fall back to plaintext.
	ErrMalformedKey = errors.New("malformed public key")
)

// KeyPair holds the session's asymmetric identity keys. The private half is
// unexported and only reachable through Decrypt.
type KeyPair struct {
	Public  *rsa.PublicKey
	private *rsa.PrivateKey
}

// GenerateKeyPair creates a fresh RSA key pair for the current session.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "GenerateKeyPair",
			"error":    err,
		}).Error("Key generation failed")
		return nil, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "GenerateKeyPair",
		"bits":     KeyBits,
	}).Debug("Generated session key pair")

	return &KeyPair{Public: &priv.PublicKey, private: priv}, nil
}

// ExportPublicKey serializes the public half to a transport-safe string:
// PKIX (SPKI) DER wrapped in standard base64. Deterministic for a given key.
func (kp *KeyPair) ExportPublicKey() (string, error) {
	return ExportPublicKey(kp.Public)
}

// ExportPublicKey serializes any RSA public key to the wire encoding.
func ExportPublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("export public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ImportPublicKey is the inverse of ExportPublicKey. Any decode or parse
// failure, including a valid SPKI blob that is not an RSA key, reports
// ErrMalformedKey.
func ImportPublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrMalformedKey)
	}
	return pub, nil
}
