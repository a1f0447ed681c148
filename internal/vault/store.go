// Package vault keeps the profile registry encrypted on disk under a key
// derived from the master password.
package vault

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/internal/logging"
	"github.com/eugeniofciuvasile/ssh-vault/internal/secret"
)

// FormatVersion is the envelope version written by this package.
const FormatVersion = 1

// header is authenticated as associated data of the registry payload, so a
// downgraded KDF or swapped salt fails decryption.
type header struct {
	Version int              `json:"version"`
	KDF     secret.KDFParams `json:"kdf"`
	Salt    []byte           `json:"salt"`
}

type envelope struct {
	header
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	Tag        []byte `json:"tag"`
}

func (h header) associatedData() ([]byte, error) {
	return json.Marshal(h)
}

// DefaultPath returns the store location under the user config directory.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "ssh-vault", "servers.json"), nil
}

// Store owns the store file and the master key. It is safe to call
// SealSecret and OpenSecret from worker goroutines while the foreground
// goroutine persists or locks.
type Store struct {
	path string

	mu     sync.RWMutex
	params secret.KDFParams
	salt   []byte
	key    *secret.MasterKey

	migration *MigrationReport
}

// Open reads and decrypts the store at path.
func Open(path, password string) (*Store, *config.Registry, error) {
	env, err := readEnvelope(path)
	if err != nil {
		return nil, nil, err
	}

	key, err := secret.DeriveKey([]byte(password), env.Salt, env.KDF)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnsupportedVersion, err)
	}
	reg, err := decryptRegistry(key, env)
	if err != nil {
		key.Zero()
		return nil, nil, err
	}

	logging.Infof("[Store] Opened %s (%d profiles)", path, reg.Len())
	return &Store{
		path:   path,
		params: env.KDF,
		salt:   env.Salt,
		key:    key,
	}, reg, nil
}

// Create initializes a new store at path holding an empty registry.
func Create(path, password string, params secret.KDFParams) (*Store, *config.Registry, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, nil, &StoreError{Op: "stat", Path: path, Err: err}
	}

	s, err := newStore(path, password, params)
	if err != nil {
		return nil, nil, err
	}
	reg := config.NewRegistry()
	if err := s.Persist(reg); err != nil {
		s.Lock()
		return nil, nil, err
	}
	logging.Infof("[Store] Created %s", path)
	return s, reg, nil
}

func newStore(path, password string, params secret.KDFParams) (*Store, error) {
	salt, err := secret.NewSalt()
	if err != nil {
		return nil, err
	}
	key, err := secret.DeriveKey([]byte(password), salt, params)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, params: params, salt: salt, key: key}, nil
}

// Path returns the store file location.
func (s *Store) Path() string {
	return s.path
}

// Migration reports how a legacy store was converted. It is nil unless the
// store was created by MigrateLegacy.
func (s *Store) Migration() *MigrationReport {
	return s.migration
}

// Locked reports whether Lock has been called.
func (s *Store) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.key.Alive()
}

// Persist encrypts reg with a fresh nonce and atomically replaces the store
// file.
func (s *Store) Persist(reg *config.Registry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.key.Alive() {
		return ErrLocked
	}
	return s.write(s.key, header{Version: FormatVersion, KDF: s.params, Salt: s.salt}, reg)
}

func (s *Store) write(key *secret.MasterKey, h header, reg *config.Registry) error {
	plaintext, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	defer secret.Wipe(plaintext)

	ad, err := h.associatedData()
	if err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	sealed, err := secret.Seal(key, plaintext, ad)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(envelope{
		header:     h,
		Nonce:      sealed.Nonce,
		Ciphertext: sealed.Ciphertext,
		Tag:        sealed.Tag,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return &StoreError{Op: "mkdir", Path: filepath.Dir(s.path), Err: err}
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return &StoreError{Op: "write", Path: s.path, Err: err}
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		return &StoreError{Op: "chmod", Path: s.path, Err: err}
	}
	logging.Debugf("[Store] Persisted %d profiles to %s", reg.Len(), s.path)
	return nil
}

// SealSecret encrypts a profile secret with the master key.
func (s *Store) SealSecret(plaintext []byte) (*secret.Sealed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.key.Alive() {
		return nil, ErrLocked
	}
	sealed, err := secret.Seal(s.key, plaintext, nil)
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}

// OpenSecret decrypts a profile secret. The caller should wipe the result
// once it has been used.
func (s *Store) OpenSecret(sealed *secret.Sealed) ([]byte, error) {
	if sealed.IsZero() {
		return nil, errors.New("no secret stored")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.key.Alive() {
		return nil, ErrLocked
	}
	plaintext, err := secret.Open(s.key, *sealed, nil)
	if err != nil {
		if errors.Is(err, secret.ErrKeyDestroyed) {
			return nil, ErrLocked
		}
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

// Lock zeroes the master key. It is safe to call more than once.
func (s *Store) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key.Alive() {
		logging.Infof("[Store] Locked")
	}
	s.key.Zero()
}

// Unlock re-derives the master key after Lock, checking password against the
// file on disk. The on-disk registry is not returned; the caller keeps its
// in-memory copy.
func (s *Store) Unlock(password string) error {
	env, err := readEnvelope(s.path)
	if err != nil {
		return err
	}
	key, err := secret.DeriveKey([]byte(password), env.Salt, env.KDF)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedVersion, err)
	}
	if _, err := decryptRegistry(key, env); err != nil {
		key.Zero()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.key.Zero()
	s.key = key
	s.params = env.KDF
	s.salt = env.Salt
	return nil
}

// Rekey derives a new key from newPassword and a new salt, re-seals every
// profile secret in reg under it and persists. On error neither reg nor the
// store changes.
func (s *Store) Rekey(reg *config.Registry, newPassword string, params secret.KDFParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.key.Alive() {
		return ErrLocked
	}

	salt, err := secret.NewSalt()
	if err != nil {
		return err
	}
	newKey, err := secret.DeriveKey([]byte(newPassword), salt, params)
	if err != nil {
		return err
	}

	next, err := s.resealed(reg, newKey)
	if err != nil {
		newKey.Zero()
		return err
	}
	if err := s.write(newKey, header{Version: FormatVersion, KDF: params, Salt: salt}, next); err != nil {
		newKey.Zero()
		return err
	}

	*reg = *next
	s.key.Zero()
	s.key = newKey
	s.salt = salt
	s.params = params
	logging.Infof("[Store] Master password changed")
	return nil
}

// resealed returns a copy of reg with every secret moved from the current
// key to newKey. Callers hold s.mu.
func (s *Store) resealed(reg *config.Registry, newKey *secret.MasterKey) (*config.Registry, error) {
	data, err := json.Marshal(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to copy registry: %w", err)
	}
	next := config.NewRegistry()
	if err := json.Unmarshal(data, next); err != nil {
		return nil, fmt.Errorf("failed to copy registry: %w", err)
	}

	reseal := func(old *secret.Sealed) (*secret.Sealed, error) {
		if old.IsZero() {
			return old, nil
		}
		plaintext, err := secret.Open(s.key, *old, nil)
		if err != nil {
			return nil, ErrWrongPassword
		}
		defer secret.Wipe(plaintext)
		sealed, err := secret.Seal(newKey, plaintext, nil)
		if err != nil {
			return nil, err
		}
		return &sealed, nil
	}

	for _, p := range next.Profiles() {
		err := next.Edit(p.ID, func(edited *config.ServerProfile) error {
			var err error
			if edited.Secret, err = reseal(edited.Secret); err != nil {
				return fmt.Errorf("failed to re-encrypt secret of %s: %w", p.ID, err)
			}
			if edited.Passphrase, err = reseal(edited.Passphrase); err != nil {
				return fmt.Errorf("failed to re-encrypt passphrase of %s: %w", p.ID, err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return next, nil
}

func readEnvelope(path string) (*envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotInitialized, path)
		}
		return nil, &StoreError{Op: "read", Path: path, Err: err}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return nil, fmt.Errorf("%w: %s", ErrLegacyPlaintext, path)
	}

	if _, ok := parseLegacyEncrypted(trimmed); ok {
		return nil, fmt.Errorf("%w: %s", ErrLegacyEncrypted, path)
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Version != FormatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, env.Version)
	}
	if env.KDF.Name != secret.KDFArgon2id {
		return nil, fmt.Errorf("%w: kdf %q", ErrUnsupportedVersion, env.KDF.Name)
	}
	if len(env.Salt) == 0 {
		return nil, fmt.Errorf("%w: missing salt", ErrCorrupt)
	}
	if err := env.KDF.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &env, nil
}

func decryptRegistry(key *secret.MasterKey, env *envelope) (*config.Registry, error) {
	ad, err := env.header.associatedData()
	if err != nil {
		return nil, fmt.Errorf("failed to encode header: %w", err)
	}
	plaintext, err := secret.Open(key, secret.Sealed{
		Nonce:      env.Nonce,
		Ciphertext: env.Ciphertext,
		Tag:        env.Tag,
	}, ad)
	if err != nil {
		return nil, ErrWrongPassword
	}
	defer secret.Wipe(plaintext)

	reg := config.NewRegistry()
	if err := json.Unmarshal(plaintext, reg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return reg, nil
}
