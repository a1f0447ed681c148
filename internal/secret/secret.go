// Package secret derives master keys from passwords and seals opaque payloads
// with authenticated encryption.
package secret

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KDFArgon2id is the only key derivation scheme this package produces.
	KDFArgon2id = "argon2id"

	// KeySize is the length of a derived MasterKey in bytes.
	KeySize = chacha20poly1305.KeySize
	// SaltSize is the length of a freshly generated KDF salt.
	SaltSize = 16
	// NonceSize is the length of a Sealed nonce (XChaCha20-Poly1305).
	NonceSize = chacha20poly1305.NonceSizeX
	// TagSize is the length of the Poly1305 authentication tag.
	TagSize = chacha20poly1305.Overhead

	// MaxKDFTime and MaxKDFMemory (KiB) bound what Validate accepts, so a
	// tampered header cannot make key derivation hang or exhaust memory.
	MaxKDFTime   = 64
	MaxKDFMemory = 4 * 1024 * 1024
)

var (
	// ErrAuthentication is returned by Open when the key is wrong or any part
	// of the sealed payload has been modified.
	ErrAuthentication = errors.New("message authentication failed")

	// ErrKeyDestroyed is returned when a zeroed MasterKey is used.
	ErrKeyDestroyed = errors.New("master key has been destroyed")
)

// KDFParams describes how a MasterKey is derived from a password. The values
// are persisted with the store so they can be changed without breaking
// existing files.
type KDFParams struct {
	Name    string `json:"name"`
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"` // KiB
	Threads uint8  `json:"threads"`
}

// DefaultKDFParams returns the Argon2id parameters used for new stores.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Name:    KDFArgon2id,
		Time:    3,
		Memory:  64 * 1024,
		Threads: 4,
	}
}

// Validate rejects unknown schemes, parameters argon2 would panic on and
// costs above MaxKDFTime or MaxKDFMemory.
func (p KDFParams) Validate() error {
	if p.Name != KDFArgon2id {
		return fmt.Errorf("unsupported kdf %q", p.Name)
	}
	if p.Time < 1 || p.Time > MaxKDFTime {
		return fmt.Errorf("kdf time must be between 1 and %d", MaxKDFTime)
	}
	if p.Memory > MaxKDFMemory {
		return fmt.Errorf("kdf memory must be at most %d KiB", MaxKDFMemory)
	}
	if p.Threads < 1 {
		return fmt.Errorf("kdf threads must be at least 1")
	}
	if p.Memory < 8*uint32(p.Threads) {
		return fmt.Errorf("kdf memory must be at least %d KiB", 8*uint32(p.Threads))
	}
	return nil
}

// MasterKey holds derived key material in memory. It is never serialized and
// formats as a placeholder so it cannot leak through logs.
type MasterKey struct {
	mu  sync.RWMutex
	key []byte
}

// DeriveKey stretches password with salt into a MasterKey.
func DeriveKey(password, salt []byte, params KDFParams) (*MasterKey, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(salt) == 0 {
		return nil, errors.New("empty kdf salt")
	}
	key := argon2.IDKey(password, salt, params.Time, params.Memory, params.Threads, KeySize)
	return &MasterKey{key: key}, nil
}

// NewSalt returns SaltSize cryptographically random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// Zero overwrites the key material. The key is unusable afterwards.
func (k *MasterKey) Zero() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	Wipe(k.key)
	k.key = nil
}

// Alive reports whether the key has not been zeroed.
func (k *MasterKey) Alive() bool {
	if k == nil {
		return false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.key != nil
}

func (k *MasterKey) String() string { return "[MASTER KEY]" }

// GoString keeps %#v from dumping the key bytes.
func (k *MasterKey) GoString() string { return k.String() }

// Sealed is the output of Seal. All three parts are required to Open it.
type Sealed struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	Tag        []byte `json:"tag"`
}

// IsZero reports whether s carries no payload.
func (s *Sealed) IsZero() bool {
	return s == nil || (len(s.Nonce) == 0 && len(s.Ciphertext) == 0 && len(s.Tag) == 0)
}

// Clone returns a deep copy of s.
func (s *Sealed) Clone() *Sealed {
	if s == nil {
		return nil
	}
	return &Sealed{
		Nonce:      append([]byte(nil), s.Nonce...),
		Ciphertext: append([]byte(nil), s.Ciphertext...),
		Tag:        append([]byte(nil), s.Tag...),
	}
}

// Seal encrypts plaintext under key with a fresh random nonce. additional is
// authenticated but not encrypted and must be passed unchanged to Open.
func Seal(key *MasterKey, plaintext, additional []byte) (Sealed, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Sealed{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	if key == nil {
		return Sealed{}, ErrKeyDestroyed
	}
	key.mu.RLock()
	defer key.mu.RUnlock()
	if key.key == nil {
		return Sealed{}, ErrKeyDestroyed
	}
	aead, err := chacha20poly1305.NewX(key.key)
	if err != nil {
		return Sealed{}, fmt.Errorf("failed to create cipher: %w", err)
	}

	out := aead.Seal(nil, nonce, plaintext, additional)
	split := len(out) - TagSize
	return Sealed{
		Nonce:      nonce,
		Ciphertext: out[:split:split],
		Tag:        out[split:],
	}, nil
}

// Open authenticates and decrypts s. Any failure other than a destroyed key is
// reported as ErrAuthentication; no partial plaintext is ever returned.
func Open(key *MasterKey, s Sealed, additional []byte) ([]byte, error) {
	if key == nil {
		return nil, ErrKeyDestroyed
	}
	key.mu.RLock()
	defer key.mu.RUnlock()
	if key.key == nil {
		return nil, ErrKeyDestroyed
	}
	if len(s.Nonce) != NonceSize || len(s.Tag) != TagSize {
		return nil, ErrAuthentication
	}
	aead, err := chacha20poly1305.NewX(key.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	box := make([]byte, 0, len(s.Ciphertext)+len(s.Tag))
	box = append(box, s.Ciphertext...)
	box = append(box, s.Tag...)
	plaintext, err := aead.Open(nil, s.Nonce, box, additional)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
