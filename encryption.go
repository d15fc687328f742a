package pallium

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// encryptionNonceSize is the nonce size for AES-GCM.
	encryptionNonceSize = 12
	// EncryptionSaltSize is the salt size for key derivation.
	EncryptionSaltSize = 32
	// EncryptionKeySize is the AES-256 key size.
	EncryptionKeySize = 32
	// PBKDF2Iterations is the iteration count for key derivation.
	PBKDF2Iterations = 100000
)

// EncryptionConfig configures snapshot encryption at rest.
type EncryptionConfig struct {
	// Enabled turns on encryption for snapshot payloads.
	Enabled bool
	// Key is the encryption key (must be 32 bytes for AES-256).
	// If empty, KeyPassword is used to derive a key.
	Key []byte
	// KeyPassword is used to derive the encryption key via PBKDF2.
	KeyPassword string
}

// Encryptor encrypts and decrypts snapshot payloads with AES-256-GCM.
// Encrypted payloads embed the key-derivation salt, so a payload written by
// one process can be opened by another that knows the password.
type Encryptor struct {
	gcm  cipher.AEAD
	salt []byte
}

// NewEncryptor creates an encryptor from a key or password. It returns
// (nil, nil) when encryption is disabled.
func NewEncryptor(cfg EncryptionConfig) (*Encryptor, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	salt := make([]byte, EncryptionSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	var key []byte
	switch {
	case len(cfg.Key) > 0:
		if len(cfg.Key) != EncryptionKeySize {
			return nil, errors.New("encryption key must be 32 bytes for AES-256")
		}
		key = cfg.Key
	case cfg.KeyPassword != "":
		key = pbkdf2.Key([]byte(cfg.KeyPassword), salt, PBKDF2Iterations, EncryptionKeySize, sha256.New)
	default:
		return nil, errors.New("encryption enabled but no key or password provided")
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &Encryptor{gcm: gcm, salt: salt}, nil
}

// NewEncryptorWithSalt creates an encryptor for an existing salt, deriving
// the key from the password. Used when decrypting payloads from another
// process.
func NewEncryptorWithSalt(password string, salt []byte) (*Encryptor, error) {
	if len(salt) != EncryptionSaltSize {
		return nil, errors.New("invalid salt size")
	}
	key := pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, EncryptionKeySize, sha256.New)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &Encryptor{gcm: gcm, salt: salt}, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals data. The output layout is salt || nonce || ciphertext.
func (e *Encryptor) Encrypt(data []byte) ([]byte, error) {
	nonce := make([]byte, encryptionNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(e.salt)+len(nonce)+len(data)+e.gcm.Overhead())
	out = append(out, e.salt...)
	out = append(out, nonce...)
	return e.gcm.Seal(out, nonce, data, nil), nil
}

// Decrypt opens a payload produced by Encrypt with the same key.
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	if len(data) < EncryptionSaltSize+encryptionNonceSize {
		return nil, errors.New("encrypted payload too short")
	}
	nonce := data[EncryptionSaltSize : EncryptionSaltSize+encryptionNonceSize]
	ciphertext := data[EncryptionSaltSize+encryptionNonceSize:]

	plain, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt snapshot: %w", err)
	}
	return plain, nil
}

// DecryptWithPassword opens a payload using the salt embedded in it.
func DecryptWithPassword(password string, data []byte) ([]byte, error) {
	if len(data) < EncryptionSaltSize+encryptionNonceSize {
		return nil, errors.New("encrypted payload too short")
	}
	enc, err := NewEncryptorWithSalt(password, data[:EncryptionSaltSize])
	if err != nil {
		return nil, err
	}
	return enc.Decrypt(data)
}

// Salt returns the key-derivation salt embedded in encrypted payloads.
func (e *Encryptor) Salt() []byte {
	return e.salt
}
