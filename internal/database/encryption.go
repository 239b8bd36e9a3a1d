package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"chatsend/internal/constants"
	"chatsend/internal/models"

	"golang.org/x/crypto/pbkdf2"
)

// MinEncryptionSecretLength is the shortest secret accepted for at-rest encryption.
const MinEncryptionSecretLength = constants.MinEncryptionSecretLength

// bodyPrefix marks a column value as sealed so plaintext rows written before
// encryption was enabled still read back.
const bodyPrefix = "enc:"

// encryptor seals message bodies and drafts before they reach disk. A nil gcm
// means at-rest encryption is off and values pass through unchanged.
type encryptor struct {
	gcm cipher.AEAD
}

func newEncryptor(enabled bool, secret string) (*encryptor, error) {
	if !enabled {
		return &encryptor{}, nil
	}

	key, err := deriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

func (e *encryptor) enabled() bool {
	return e != nil && e.gcm != nil
}

func (e *encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || !e.enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, models.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	result := append(nonce, sealed...)
	return bodyPrefix + base64.StdEncoding.EncodeToString(result), nil
}

func (e *encryptor) Decrypt(stored string) (string, error) {
	if len(stored) < len(bodyPrefix) || stored[:len(bodyPrefix)] != bodyPrefix {
		return stored, nil
	}
	if !e.enabled() {
		return "", fmt.Errorf("value is encrypted but at-rest encryption is disabled")
	}

	data, err := base64.StdEncoding.DecodeString(stored[len(bodyPrefix):])
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	if len(data) < models.NonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:models.NonceSize], data[models.NonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

func (e *encryptor) encryptPtr(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	sealed, err := e.Encrypt(*value)
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}

func deriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("an encryption secret is required when at-rest encryption is enabled")
	}

	if len(secret) < MinEncryptionSecretLength {
		return nil, fmt.Errorf("encryption secret must be at least %d characters long", MinEncryptionSecretLength)
	}

	salt := []byte(constants.EncryptionSalt)

	return pbkdf2.Key([]byte(secret), salt, models.Iterations, models.KeySize, sha256.New), nil
}
