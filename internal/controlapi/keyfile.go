package controlapi

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	tokenFileName     = "joybridge.token.sealed"
	masterKeyFileName = "joybridge.masterkey"
)

// LoadOrCreateToken reads the sealed bearer token from dir, generating a
// fresh token and master key on first run, mirroring the teacher's
// server.go key-file bootstrap (generate once, persist, reuse across
// restarts). created reports whether a new token was minted.
func LoadOrCreateToken(dir string) (token string, created bool, err error) {
	tokenPath := filepath.Join(dir, tokenFileName)
	keyPath := filepath.Join(dir, masterKeyFileName)

	masterKey, err := os.ReadFile(keyPath)
	if err == nil {
		sealed, rerr := os.ReadFile(tokenPath)
		if rerr == nil {
			tok, oerr := openToken(masterKey, sealed)
			if oerr == nil {
				return tok, false, nil
			}
		}
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", false, fmt.Errorf("controlapi: create config dir: %w", err)
	}

	newKey, err := generateMasterKey()
	if err != nil {
		return "", false, fmt.Errorf("controlapi: generate master key: %w", err)
	}
	newToken, err := GenerateToken()
	if err != nil {
		return "", false, fmt.Errorf("controlapi: generate token: %w", err)
	}
	sealed, err := sealToken(newKey, newToken)
	if err != nil {
		return "", false, fmt.Errorf("controlapi: seal token: %w", err)
	}

	if err := os.WriteFile(keyPath, newKey, 0o600); err != nil {
		return "", false, fmt.Errorf("controlapi: write master key: %w", err)
	}
	if err := os.WriteFile(tokenPath, sealed, 0o600); err != nil {
		return "", false, fmt.Errorf("controlapi: write sealed token: %w", err)
	}
	return newToken, true, nil
}
