package config

import (
	"fmt"

	keyring "github.com/zalando/go-keyring"

	"github.com/eugeniofciuvasile/ssh-vault/internal/logging"
	"github.com/eugeniofciuvasile/ssh-vault/internal/secret"
)

// PasswordLookup finds a previously saved secret for an imported host. The
// key argument is the lookup key tried, in order, by ImportEntries.
type PasswordLookup func(key string) (string, bool)

// KeyringLookup reads secrets that ssh-x-term style tools left in the OS
// keyring under service.
func KeyringLookup(service string) PasswordLookup {
	return func(key string) (string, bool) {
		password, err := keyring.Get(service, key)
		if err != nil || password == "" {
			return "", false
		}
		return password, true
	}
}

// ImportEntries merges entries into reg like Registry.ImportFrom. When lookup
// is set, every added profile is checked for a saved secret: agent profiles
// with a saved password become password profiles and key file profiles get
// their saved passphrase. Found secrets are sealed before they touch the
// registry.
func ImportEntries(reg *Registry, entries []HostEntry, sealer SecretSealer, lookup PasswordLookup) (ImportReport, error) {
	report := reg.ImportFrom(entries)
	if lookup == nil || sealer == nil {
		return report, nil
	}

	byAlias := make(map[string]HostEntry, len(entries))
	for _, e := range entries {
		if _, seen := byAlias[e.Alias]; !seen {
			byAlias[e.Alias] = e
		}
	}

	for _, id := range report.Added {
		e := byAlias[id]
		profile, _ := reg.Get(id)

		var candidates []string
		if profile.Auth.Kind == AuthKeyFile {
			candidates = []string{"passphrase:" + id}
		} else {
			candidates = []string{id, e.Host, fmt.Sprintf("%s@%s", e.User, e.Host)}
		}

		found, ok := lookupFirst(lookup, candidates)
		if !ok {
			continue
		}
		plaintext := []byte(found)
		sealed, err := sealer.SealSecret(plaintext)
		secret.Wipe(plaintext)
		if err != nil {
			return report, fmt.Errorf("failed to seal recovered secret for %s: %w", id, err)
		}

		err = reg.Edit(id, func(p *ServerProfile) error {
			if p.Auth.Kind == AuthKeyFile {
				p.Passphrase = sealed
			} else {
				p.Auth = AuthMethod{Kind: AuthPassword}
				p.Secret = sealed
			}
			return nil
		})
		if err != nil {
			return report, err
		}
		logging.Infof("[ImportEntries] Recovered saved secret for %s", id)
	}
	return report, nil
}

func lookupFirst(lookup PasswordLookup, keys []string) (string, bool) {
	for _, key := range keys {
		if key == "" || key == "@" {
			continue
		}
		if v, ok := lookup(key); ok {
			return v, true
		}
	}
	return "", false
}
