package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	dErrors "paperroom/pkg/domain-errors"
)

// Vault encrypts and decrypts connection strings and credential bundles
// before they are persisted. The key material is a single process-wide
// secret; a fresh salt is drawn per encryption so no two ciphertexts share
// a derived key.
type Vault struct {
	secret []byte
}

const (
	vaultVersion   = "v1"
	saltSize       = 16
	kdfIterations  = 100_000
	derivedKeySize = 32 // AES-256
)

// NewVault builds a vault from the process-wide secret.
func NewVault(secret string) (*Vault, error) {
	if len(secret) < 16 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "vault secret must be at least 16 bytes")
	}
	return &Vault{secret: []byte(secret)}, nil
}

// Encrypt seals plaintext with AES-256-GCM. The payload format is
// "v1:<b64 salt>:<b64 nonce||ciphertext||tag>".
func (v *Vault) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	aead, err := v.aead(salt)
	if err != nil {
		return "", err
	}

	// AES-GCM requires a unique nonce per encryption under the same key.
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	payload := append(nonce, sealed...)

	return strings.Join([]string{
		vaultVersion,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(payload),
	}, ":"), nil
}

// Decrypt opens a previously encrypted payload. It fails closed: any parse
// error or authentication tag mismatch returns an error and no plaintext.
func (v *Vault) Decrypt(encrypted string) (string, error) {
	parts := strings.Split(encrypted, ":")
	if len(parts) != 3 || parts[0] != vaultVersion {
		return "", dErrors.New(dErrors.CodeInvalidInput, "malformed encrypted payload")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil || len(salt) != saltSize {
		return "", dErrors.New(dErrors.CodeInvalidInput, "malformed encrypted payload")
	}
	payload, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "malformed encrypted payload")
	}

	aead, err := v.aead(salt)
	if err != nil {
		return "", err
	}
	if len(payload) < aead.NonceSize() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "encrypted payload too short")
	}

	nonce := payload[:aead.NonceSize()]
	ciphertext := payload[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "decryption failed")
	}
	return string(plaintext), nil
}

// aead derives a per-salt AES-256 key and wraps it in GCM.
func (v *Vault) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(v.secret, salt, kdfIterations, derivedKeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}
