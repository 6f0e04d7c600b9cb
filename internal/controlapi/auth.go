package controlapi

import (
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Token generation/derivation mirrors the teacher's internal/server/api/auth
// package (auth.go): a random base62 key, stretched with PBKDF2 for
// constant-time comparison instead of comparing the bearer token directly.
const (
	tokenLength      = 16
	base62Chars      = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	pbkdf2Iterations = 100000
	pbkdf2Salt       = "joybridge-control-key-v1"
)

// GenerateToken creates a random 16-char base62 bearer token for the control
// API. LoadOrCreateToken persists it sealed to disk; cmd/joybridge logs only
// that a new token was generated and where, never the token itself.
func GenerateToken() (string, error) {
	randomBytes := make([]byte, tokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	token := make([]byte, tokenLength)
	for i, b := range randomBytes {
		token[i] = base62Chars[int(b)%62]
	}
	return string(token), nil
}

// deriveCheck stretches a bearer token to a fixed-size verifier via
// PBKDF2-SHA256, so the authentication check below compares derived bytes
// rather than the raw secret.
func deriveCheck(token string) ([]byte, error) {
	if token == "" {
		return nil, errors.New("controlapi: token cannot be empty")
	}
	return pbkdf2.Key(sha256.New, token, []byte(pbkdf2Salt), pbkdf2Iterations, sha256.Size)
}

// tokensEqual reports whether candidate authenticates against want (both
// already run through deriveCheck), in constant time.
func tokensEqual(want, candidate []byte) bool {
	return subtle.ConstantTimeCompare(want, candidate) == 1
}

// generateMasterKey creates the chacha20poly1305 key used to seal the
// bearer token file at rest. It is independent of the token itself — the
// teacher's internal/server/api/auth/conn.go derives its AEAD key from a
// handshake secret, never from the plaintext the AEAD protects, and this
// mirrors that separation.
func generateMasterKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// sealToken encrypts token at rest under masterKey, so the persisted key
// file is not a bare plaintext secret on disk.
func sealToken(masterKey []byte, token string) ([]byte, error) {
	aead, err := chacha20poly1305.New(masterKey)
	if err != nil {
		return nil, fmt.Errorf("controlapi: init aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, []byte(token), nil), nil
}

// openToken reverses sealToken.
func openToken(masterKey, sealed []byte) (string, error) {
	aead, err := chacha20poly1305.New(masterKey)
	if err != nil {
		return "", fmt.Errorf("controlapi: init aead: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", errors.New("controlapi: sealed token truncated")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("controlapi: open sealed token: %w", err)
	}
	return string(plain), nil
}
