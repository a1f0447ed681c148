package config

import "github.com/eugeniofciuvasile/ssh-vault/internal/secret"

// SecretSealer encrypts a profile secret with the store's master key.
// *vault.Store implements it.
type SecretSealer interface {
	SealSecret(plaintext []byte) (*secret.Sealed, error)
}
