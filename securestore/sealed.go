package securestore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/attestify/keybox-provisioner/interfaces"
)

// Argon2id parameters for deriving the sealing key from the device secret.
const (
	sealKeyTime    = 1
	sealKeyMemory  = 64 * 1024
	sealKeyThreads = 4
)

// sealSalt fixes the derivation domain; the secret itself is per-device.
var sealSalt = []byte("keybox-provisioner-sealed-record-v1")

// SealedStore wraps another RecordStore and encrypts every record with
// XChaCha20-Poly1305 under a key derived from a device secret. The record
// name is bound as associated data, so ciphertext moved between records
// fails to unseal. Stored layout is nonce || ciphertext.
type SealedStore struct {
	inner interfaces.RecordStore
	aead  cipher.AEAD
	log   *slog.Logger
}

// NewSealedStore derives a sealing key from secret and wraps inner.
func NewSealedStore(inner interfaces.RecordStore, secret []byte, log *slog.Logger) (*SealedStore, error) {
	if len(secret) == 0 {
		return nil, errors.New("sealing secret must not be empty")
	}

	key := argon2.IDKey(secret, sealSalt, sealKeyTime, sealKeyMemory, sealKeyThreads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sealing cipher: %w", err)
	}

	return &SealedStore{inner: inner, aead: aead, log: log}, nil
}

func (s *SealedStore) WriteRecord(ctx context.Context, name string, data []byte) error {
	if err := validateRecordName(name); err != nil {
		return err
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, data, []byte(name))
	return s.inner.WriteRecord(ctx, name, sealed)
}

func (s *SealedStore) ReadRecord(ctx context.Context, name string) ([]byte, error) {
	if err := validateRecordName(name); err != nil {
		return nil, err
	}

	sealed, err := s.inner.ReadRecord(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(sealed) < s.aead.NonceSize() {
		return nil, fmt.Errorf("%w: sealed record %s too short", interfaces.ErrStorageInvariant, name)
	}

	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("%w: unsealing %s: %v", interfaces.ErrStorageInvariant, name, err)
	}
	return plain, nil
}

func (s *SealedStore) DeleteRecord(ctx context.Context, name string) error {
	return s.inner.DeleteRecord(ctx, name)
}
