package cli

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/internal/logging"
	"github.com/eugeniofciuvasile/ssh-vault/internal/vault"
)

const (
	// PasswordEnv supplies the master password for scripted use.
	PasswordEnv = "SSH_VAULT_PASSWORD"
	// NewPasswordEnv supplies the new master password for `passwd`.
	NewPasswordEnv = "SSH_VAULT_NEW_PASSWORD"
)

var errPasswordMismatch = errors.New("passwords do not match")

// passwordPrompt reads one password. env names the variable that may
// supply it instead of the terminal.
type passwordPrompt func(prompt, env string) (string, error)

func (a *app) terminalPrompt(prompt, env string) (string, error) {
	if pw, ok := os.LookupEnv(env); ok {
		return pw, nil
	}
	fd := int(a.stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; set %s to supply the password", env)
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// newPassword asks for a password twice unless it comes from env.
func (a *app) newPassword(prompt, env string) (string, error) {
	pw, err := a.prompt(prompt, env)
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", errors.New("empty password is not allowed")
	}
	if _, ok := os.LookupEnv(env); ok {
		return pw, nil
	}
	confirm, err := a.prompt("Confirm password: ", env)
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare([]byte(pw), []byte(confirm)) != 1 {
		return "", errPasswordMismatch
	}
	return pw, nil
}

// openVault unlocks the store, creating it on first run and migrating a
// legacy plaintext file. Callers must Lock the returned store.
func (a *app) openVault() (*vault.Store, *config.Registry, error) {
	path := a.settings.StorePath
	params := a.settings.KDFParams()

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "No store at %s, creating a new one.\n", path)
		pw, err := a.newPassword("New master password: ", PasswordEnv)
		if err != nil {
			return nil, nil, err
		}
		return vault.Create(path, pw, params)
	}

	pw, err := a.prompt("Master password: ", PasswordEnv)
	if err != nil {
		return nil, nil, err
	}
	store, reg, err := vault.OpenOrMigrate(path, pw, params)
	if err != nil {
		logging.Errorf("[CLI] Unable to open %s: %v", path, err)
		return nil, nil, err
	}
	if report := store.Migration(); report != nil {
		fmt.Fprintf(os.Stderr, "Converted legacy store %s: %s\n", path, report)
	}
	return store, reg, nil
}
