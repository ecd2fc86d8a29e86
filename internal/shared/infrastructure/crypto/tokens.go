package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

const (
	keyLength      = 32
	kdfIterations  = 100_000
	gcmNonceLength = 12
)

// TokenCodec encrypts and decrypts OAuth tokens at rest.
// The connection ID is bound as AAD so a ciphertext stored for one
// connection cannot be replayed against another.
type TokenCodec interface {
	EncryptToken(plaintext, connectionID string) (string, error)
	DecryptToken(ciphertext, connectionID string) (string, error)
}

// AESTokenCodec implements TokenCodec with AES-256-GCM.
type AESTokenCodec struct {
	aead cipher.AEAD
}

// NewAESTokenCodec derives a 32-byte key from the master key and salt with
// PBKDF2-SHA256 and prepares the AEAD. The master key and salt are injected
// from configuration; the codec is initialized once per process.
func NewAESTokenCodec(masterKey string, salt []byte) (*AESTokenCodec, error) {
	if masterKey == "" {
		return nil, errors.New("master key is empty")
	}
	if len(salt) == 0 {
		return nil, errors.New("key salt is empty")
	}

	key, err := pbkdf2.Key(sha256.New, masterKey, salt, kdfIterations, keyLength)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &AESTokenCodec{aead: aead}, nil
}

// EncryptToken encrypts a token and returns base64(nonce || ciphertext).
func (c *AESTokenCodec) EncryptToken(plaintext, connectionID string) (string, error) {
	nonce := make([]byte, gcmNonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), []byte(connectionID))
	return base64.StdEncoding.EncodeToString(append(nonce, sealed...)), nil
}

// DecryptToken decrypts base64(nonce || ciphertext) produced by EncryptToken.
// Fails if the connection ID does not match the one used at encryption time.
func (c *AESTokenCodec) DecryptToken(ciphertext, connectionID string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	if len(raw) < gcmNonceLength {
		return "", errors.New("ciphertext too short")
	}

	nonce := raw[:gcmNonceLength]
	data := raw[gcmNonceLength:]

	plaintext, err := c.aead.Open(nil, nonce, data, []byte(connectionID))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// GenerateSalt returns a fresh base64-encoded 16-byte salt for configuration.
func GenerateSalt() (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// MaskToken truncates a token for logging.
func MaskToken(token string) string {
	const visible = 8
	if len(token) <= visible {
		return "***"
	}
	return token[:visible] + "..."
}
