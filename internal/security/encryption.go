package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const gcmNonceSize = 12 // 96 bits, standard for GCM

// EncryptToken encrypts a Discord bot token (or any short secret string)
// with AES-256-GCM, returning base64(nonce || ciphertext). Used for the
// audit-only encrypted copy in source.Pool.EncryptedFingerprints — the
// bridge never decrypts its own live tokens, only re-encrypts them for an
// operator-facing audit trail.
func EncryptToken(plaintext string, key []byte) (string, error) {
	if len(key) != 32 {
		return "", errors.New("security: encryption key must be 32 bytes (256 bits)")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("security: creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("security: creating GCM: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("security: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptToken reverses EncryptToken, given the same 32-byte key. Kept
// alongside EncryptToken for symmetry and for operator tooling that needs
// to read the audit trail back, even though the bridge's own runtime path
// only ever encrypts.
func DecryptToken(encrypted string, key []byte) (string, error) {
	if len(key) != 32 {
		return "", errors.New("security: decryption key must be 32 bytes (256 bits)")
	}

	combined, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("security: decoding base64: %w", err)
	}
	if len(combined) < gcmNonceSize {
		return "", errors.New("security: encrypted data shorter than nonce")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("security: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("security: creating GCM: %w", err)
	}

	nonce, ciphertext := combined[:gcmNonceSize], combined[gcmNonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("security: decrypting: %w", err)
	}
	return string(plaintext), nil
}

