package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Sealer encrypts credential payloads at rest with AES-256-GCM. The key
// is derived from the per-install agent secret and the device
// fingerprint, so a copied database file is useless on another machine.
type Sealer struct {
	key []byte
}

// argon2id parameters for the sealing key derivation. Interactive-tier
// settings; derivation happens once per process.
const (
	sealTime    = 1
	sealMemory  = 64 * 1024
	sealThreads = 4
	sealKeyLen  = 32
)

// NewSealer derives the sealing key from the agent secret and device
// fingerprint.
func NewSealer(secret []byte, fingerprint string) (*Sealer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("sealer requires a non-empty secret")
	}
	salt := sha256.Sum256([]byte(fingerprint))
	key := argon2.IDKey(secret, salt[:], sealTime, sealMemory, sealThreads, sealKeyLen)
	return &Sealer{key: key}, nil
}

// Seal encrypts the payload, prefixing the random nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a payload produced by Seal. Returns ErrSealCorrupt for
// anything that does not authenticate under the current key.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, ErrSealCorrupt
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrSealCorrupt
	}
	return plaintext, nil
}

func (s *Sealer) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return gcm, nil
}
