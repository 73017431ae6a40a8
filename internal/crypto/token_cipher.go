// Package crypto seals social account access tokens at rest.
package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"golang.org/x/crypto/hkdf"
)

var ErrMasterKeyNotSet = errors.New("master key not set")

const tokenKeySalt = "social-account-token/v1"

// TokenCipher seals access tokens with a per-workspace key derived from the master key.
// Each token is bound to its account id, so a sealed value copied onto another row will not open.
type TokenCipher struct {
	masterKey []byte

	mu   sync.RWMutex
	keys map[int64][]byte // workspace id -> derived key
}

func NewTokenCipher(masterKey string) (*TokenCipher, error) {
	if masterKey == "" {
		return nil, ErrMasterKeyNotSet
	}
	return &TokenCipher{
		masterKey: []byte(masterKey),
		keys:      make(map[int64][]byte),
	}, nil
}

func (c *TokenCipher) SealToken(workspaceID, accountID int64, token string) (string, error) {
	key, err := c.workspaceKey(workspaceID)
	if err != nil {
		return "", err
	}
	return Seal(token, key, accountBinding(accountID))
}

func (c *TokenCipher) OpenToken(workspaceID, accountID int64, sealed string) (string, error) {
	if sealed == "" {
		return "", ErrInvalidCiphertext
	}
	key, err := c.workspaceKey(workspaceID)
	if err != nil {
		return "", err
	}
	return Open(sealed, key, accountBinding(accountID))
}

func (c *TokenCipher) workspaceKey(workspaceID int64) ([]byte, error) {
	c.mu.RLock()
	key, ok := c.keys[workspaceID]
	c.mu.RUnlock()
	if ok {
		return key, nil
	}

	key = make([]byte, 32)
	info := []byte("workspace:" + strconv.FormatInt(workspaceID, 10))
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.masterKey, []byte(tokenKeySalt), info), key); err != nil {
		return nil, fmt.Errorf("failed to derive workspace key: %w", err)
	}

	c.mu.Lock()
	c.keys[workspaceID] = key
	c.mu.Unlock()
	return key, nil
}

func accountBinding(accountID int64) []byte {
	return []byte("account:" + strconv.FormatInt(accountID, 10))
}
