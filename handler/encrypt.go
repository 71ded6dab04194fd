package handler

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/sessionmesh/core"
	"github.com/hupe1980/sessionmesh/logging"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Cipher transforms session payloads. The session id is passed so
// implementations can bind a ciphertext to the session it belongs to.
type Cipher interface {
	Encrypt(id, plaintext string) (string, error)
	Decrypt(id, ciphertext string) (string, error)
}

// ErrCiphertext is returned when a stored payload cannot be decrypted.
var ErrCiphertext = errors.New("malformed or tampered ciphertext")

// AEADCipher encrypts with XChaCha20-Poly1305 and the session id as
// associated data; output is unpadded base64 of nonce||ciphertext.
type AEADCipher struct {
	aead cipher.AEAD
}

var _ Cipher = (*AEADCipher)(nil)

// NewAEADCipher creates an AEADCipher from a 32 byte key.
func NewAEADCipher(key []byte) (*AEADCipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create session cipher: %w", err)
	}
	return &AEADCipher{aead: aead}, nil
}

// KeyFromSecret derives a 32 byte key from an arbitrary secret with HKDF-SHA256.
func KeyFromSecret(secret, salt string) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, []byte(secret), []byte(salt), []byte("sessionmesh session encryption"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext.
func (c *AEADCipher) Encrypt(id, plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(id))
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt for the same id.
func (c *AEADCipher) Decrypt(id, ciphertext string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", ErrCiphertext
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, []byte(id))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	return string(plain), nil
}

// EncryptingHandler encrypts payloads on their way down the chain and
// decrypts them on the way back up. Create, Delete and Clean pass through.
type EncryptingHandler struct {
	Passthrough
	cipher Cipher
	logger logging.Logger
}

var _ core.Handler = (*EncryptingHandler)(nil)

// NewEncryptingHandler creates an EncryptingHandler.
func NewEncryptingHandler(c Cipher, logger logging.Logger) *EncryptingHandler {
	return &EncryptingHandler{cipher: c, logger: logging.OrNoOp(logger)}
}

// Read decrypts the payload returned by the rest of the chain. A payload
// that fails to decrypt is reported as a missing session.
func (h *EncryptingHandler) Read(id string, next core.ReadNext) string {
	stored := next.Read(id)
	if stored == "" {
		return ""
	}
	plain, err := h.cipher.Decrypt(id, stored)
	if err != nil {
		h.logger.Warn("discarding undecryptable session", "id", id, "error", err)
		return ""
	}
	return plain
}

// Write encrypts data and delegates the ciphertext.
func (h *EncryptingHandler) Write(id, data string, next core.WriteNext) bool {
	sealed, err := h.cipher.Encrypt(id, data)
	if err != nil {
		h.logger.Error("failed to encrypt session", "id", id, "error", err)
		return false
	}
	return next.Write(id, sealed)
}
