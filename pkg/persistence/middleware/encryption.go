package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// EncryptedField is the envelope field holding the sealed checkpoint.
const EncryptedField = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next ports.CheckpointStore
	// keys holds the active cipher first, then the fallbacks.
	keys []cipher.AEAD
}

// NewEncryptionMiddleware creates a middleware that seals checkpoints with AES-GCM.
// The stored envelope keeps only routing metadata (run, graph, status, step);
// frontier, payloads and state travel inside the ciphertext, which is bound
// to the run ID so an envelope copied under another ID does not open.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	keys := make([]cipher.AEAD, 0, 1+len(config.FallbackKeys))
	for _, k := range append([][]byte{config.ActiveKey}, config.FallbackKeys...) {
		aead, err := newGCM(k)
		if err != nil {
			panic(fmt.Sprintf("invalid encryption key: %v", err))
		}
		keys = append(keys, aead)
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &encryptionMiddleware{next: next, keys: keys}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, cp *domain.Checkpoint) error {
	plainText, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	sealed, err := seal(m.keys[0], plainText, []byte(cp.RunID))
	if err != nil {
		return fmt.Errorf("failed to encrypt checkpoint: %w", err)
	}

	envelope := &domain.Checkpoint{
		RunID:     cp.RunID,
		GraphID:   cp.GraphID,
		Status:    cp.Status,
		Step:      cp.Step,
		UpdatedAt: cp.UpdatedAt,
		State: domain.State{
			EncryptedField: base64.StdEncoding.EncodeToString(sealed),
		},
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	envelope, err := m.next.Load(ctx, runID)
	if err != nil {
		return nil, err
	}

	// Fail closed: a plain checkpoint under an encrypting store is an error.
	encoded, ok := envelope.State[EncryptedField].(string)
	if !ok {
		return nil, errors.New("checkpoint is missing encrypted data envelope")
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := open(m.keys, sealed, []byte(runID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt checkpoint of run %q: %w", runID, err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(plainText, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted checkpoint: %w", err)
	}
	return &cp, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// seal returns nonce||ciphertext.
func seal(aead cipher.AEAD, plaintext, additional []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, additional), nil
}

// open tries every key in order, which lets rotated keys still read old data.
func open(keys []cipher.AEAD, sealed, additional []byte) ([]byte, error) {
	for _, aead := range keys {
		n := aead.NonceSize()
		if len(sealed) < n {
			return nil, errors.New("ciphertext too short")
		}
		if plain, err := aead.Open(nil, sealed[:n], sealed[n:], additional); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("no key opens the ciphertext")
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
