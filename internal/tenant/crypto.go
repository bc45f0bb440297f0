package tenant

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/wedosoft/project-a/internal/apperr"
	"github.com/wedosoft/project-a/internal/storage"
)

// MasterKeySetting is the system-setting key holding the base64 master key.
const MasterKeySetting = "master_encryption_key"

// Crypto encrypts and decrypts tenant setting values with AES-256-GCM under
// the process master key.
type Crypto struct {
	aead cipher.AEAD
}

// NewCrypto builds a Crypto from a raw 32-byte key.
func NewCrypto(key []byte) (*Crypto, error) {
	if len(key) != 32 {
		return nil, apperr.New(apperr.KindConfiguration, "tenant",
			fmt.Sprintf("master key must be 32 bytes, got %d", len(key)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Crypto{aead: aead}, nil
}

// LoadOrCreateCrypto loads the master key from the system settings,
// generating and persisting one on first run.
func LoadOrCreateCrypto(ctx context.Context, store storage.Store) (*Crypto, error) {
	encoded, err := store.GetSystemSetting(ctx, MasterKeySetting)
	if errors.Is(err, storage.ErrNotFound) {
		key := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, err
		}
		encoded = base64.StdEncoding.EncodeToString(key)
		if err := store.SetSystemSetting(ctx, MasterKeySetting, encoded); err != nil {
			return nil, err
		}
		return NewCrypto(key)
	}
	if err != nil {
		return nil, err
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "tenant", "master key is not valid base64", err)
	}
	return NewCrypto(key)
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext).
func (c *Crypto) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *Crypto) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", apperr.Wrap(apperr.KindConfiguration, "tenant", "encrypted value is not valid base64", err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", apperr.New(apperr.KindConfiguration, "tenant", "encrypted value too short")
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", apperr.Wrap(apperr.KindConfiguration, "tenant", "decryption failed", err)
	}
	return string(plain), nil
}
