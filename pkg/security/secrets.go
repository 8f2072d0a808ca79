package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/BinJu/train/pkg/types"
	"github.com/google/uuid"
)

// SecretsManager seals secret and account data at rest
type SecretsManager struct {
	aead cipher.AEAD
}

// NewSecretsManager creates a new secrets manager with the given encryption key
// The key should be 32 bytes for AES-256-GCM
func NewSecretsManager(key []byte) (*SecretsManager, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &SecretsManager{aead: gcm}, nil
}

// NewSecretsManagerFromPassword creates a secrets manager using a password
// The password is hashed with SHA-256 to derive the encryption key
func NewSecretsManagerFromPassword(password string) (*SecretsManager, error) {
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	hash := sha256.Sum256([]byte(password))
	return NewSecretsManager(hash[:])
}

// Seal encrypts plaintext and prepends the nonce
func (sm *SecretsManager) Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("cannot encrypt empty data")
	}
	nonce := make([]byte, sm.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return sm.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal
func (sm *SecretsManager) Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, fmt.Errorf("cannot decrypt empty data")
	}
	nonceSize := sm.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := sm.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func (sm *SecretsManager) sealMap(data map[string]string) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return sm.Seal(raw)
}

func (sm *SecretsManager) openMap(sealed []byte) (map[string]string, error) {
	raw, err := sm.Open(sealed)
	if err != nil {
		return nil, err
	}
	var data map[string]string
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode sealed data: %w", err)
	}
	return data, nil
}

// NewSecret builds a secret record with its key-value data sealed
func (sm *SecretsManager) NewSecret(name string, data map[string]string) (*types.Secret, error) {
	if name == "" {
		return nil, fmt.Errorf("secret name cannot be empty")
	}
	sealed, err := sm.sealMap(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}
	now := time.Now()
	return &types.Secret{
		ID:        uuid.New().String(),
		Name:      name,
		Data:      sealed,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SecretData returns the plaintext key-value data of a secret
func (sm *SecretsManager) SecretData(secret *types.Secret) (map[string]string, error) {
	if secret == nil {
		return nil, fmt.Errorf("secret cannot be nil")
	}
	return sm.openMap(secret.Data)
}

// NewAccount builds an account pool of total units sharing the sealed data
func (sm *SecretsManager) NewAccount(name string, total int, data map[string]string) (*types.Account, error) {
	if name == "" {
		return nil, fmt.Errorf("account name cannot be empty")
	}
	if total < 1 {
		return nil, fmt.Errorf("account total must be positive, got %d", total)
	}
	sealed, err := sm.sealMap(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt account: %w", err)
	}
	now := time.Now()
	return &types.Account{
		ID:        uuid.New().String(),
		Name:      name,
		Total:     total,
		InStock:   total,
		Data:      sealed,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// AccountData returns the plaintext key-value data of an account
func (sm *SecretsManager) AccountData(account *types.Account) (map[string]string, error) {
	if account == nil {
		return nil, fmt.Errorf("account cannot be nil")
	}
	return sm.openMap(account.Data)
}
