package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrWrongPassword covers every decrypt-time failure: a wrong master
	// password and a tampered or truncated payload look the same.
	ErrWrongPassword = errors.New("wrong master password or corrupted store")

	ErrLocked             = errors.New("store is locked")
	ErrNotInitialized     = errors.New("store does not exist")
	ErrAlreadyExists      = errors.New("store already exists")
	ErrUnsupportedVersion = errors.New("unsupported store format")
	ErrCorrupt            = errors.New("store file is malformed")
	ErrLegacyPlaintext    = errors.New("store is an unencrypted legacy file")
	ErrLegacyEncrypted    = errors.New("store uses the legacy encrypted format")
)

// StoreError wraps an I/O failure on the store file.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
