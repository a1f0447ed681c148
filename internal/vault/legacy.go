package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/internal/logging"
	"github.com/eugeniofciuvasile/ssh-vault/internal/secret"
)

// legacyServer is one element of the unencrypted JSON array older versions
// wrote. auth_type is either the string "Agent" or an object with a single
// "Password" or "Key" member.
type legacyServer struct {
	Name     string          `json:"name"`
	User     string          `json:"user"`
	Host     string          `json:"host"`
	Port     int             `json:"port"`
	AuthType json.RawMessage `json:"auth_type,omitempty"`
	Group    string          `json:"group,omitempty"`
}

type legacyAuth struct {
	Password *string `json:"Password"`
	Key      *string `json:"Key"`
}

// legacyEncrypted is the envelope of the old encrypted format: a
// PBKDF2-HMAC-SHA256 key and AES-256-GCM with the tag appended to the
// ciphertext. The payload is the same server list the plaintext format holds.
type legacyEncrypted struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

const (
	legacyIterations = 100_000
	legacyKeySize    = 32
)

// RenamedEntry is a legacy server whose name was already taken.
type RenamedEntry struct {
	From string
	To   string
}

// SkippedEntry is a legacy server that could not be turned into a profile.
type SkippedEntry struct {
	Name string
	Err  error
}

// MigrationReport describes what MigrateLegacy did with the old entries.
// Backup is empty when the copy of the old file was removed.
type MigrationReport struct {
	Migrated int
	Renamed  []RenamedEntry
	Skipped  []SkippedEntry
	Backup   string
}

func (r *MigrationReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migrated %d legacy server(s)", r.Migrated)
	for _, e := range r.Renamed {
		fmt.Fprintf(&b, "; %s renamed to %s", e.From, e.To)
	}
	if len(r.Skipped) > 0 {
		names := make([]string, len(r.Skipped))
		for i, e := range r.Skipped {
			names[i] = e.Name
		}
		fmt.Fprintf(&b, "; skipped %s", strings.Join(names, ", "))
	}
	if r.Backup != "" {
		fmt.Fprintf(&b, "; old file kept at %s", r.Backup)
	}
	return b.String()
}

// MigrateLegacy converts a legacy store at path, plaintext or encrypted with
// the old scheme, into an encrypted one protected by password. The old
// encrypted format is opened with the same password. A copy of the old file
// is kept at path+".legacy" until the new store has been written, and for
// good when some entry could not be migrated. Servers sharing a name get a
// numeric suffix. Passwords found in the old file are sealed immediately.
// Store.Migration reports the outcome.
func MigrateLegacy(path, password string, params secret.KDFParams) (*Store, *config.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotInitialized, path)
		}
		return nil, nil, &StoreError{Op: "read", Path: path, Err: err}
	}
	defer secret.Wipe(data)

	servers, err := decodeLegacy(data, password)
	if err != nil {
		return nil, nil, err
	}

	backup := path + ".legacy"
	if err := os.WriteFile(backup, data, 0600); err != nil {
		return nil, nil, &StoreError{Op: "backup", Path: backup, Err: err}
	}

	s, err := newStore(path, password, params)
	if err != nil {
		return nil, nil, err
	}

	reg := config.NewRegistry()
	report := &MigrationReport{Backup: backup}
	for _, ls := range servers {
		profile, plaintext, err := legacyProfile(ls)
		if err == nil {
			if id := uniqueID(reg, profile.ID); id != profile.ID {
				report.Renamed = append(report.Renamed, RenamedEntry{From: profile.ID, To: id})
				profile.ID = id
			}
			if plaintext != nil {
				profile.Secret, err = s.SealSecret(plaintext)
				secret.Wipe(plaintext)
			}
		}
		if err == nil {
			err = reg.Add(profile)
		}
		if err != nil {
			logging.Errorf("[MigrateLegacy] Skipping %q: %v", ls.Name, err)
			report.Skipped = append(report.Skipped, SkippedEntry{Name: ls.Name, Err: err})
		}
	}
	report.Migrated = reg.Len()

	if err := s.Persist(reg); err != nil {
		s.Lock()
		return nil, nil, err
	}
	if len(report.Skipped) == 0 {
		if err := os.Remove(backup); err != nil {
			logging.Errorf("[MigrateLegacy] Failed to remove backup %s: %v", backup, err)
		} else {
			report.Backup = ""
		}
	}
	s.migration = report
	logging.Infof("[MigrateLegacy] %s: %s", path, report)
	return s, reg, nil
}

// decodeLegacy returns the server list of a plaintext or old-encrypted file.
func decodeLegacy(data []byte, password string) ([]legacyServer, error) {
	payload := bytes.TrimSpace(data)
	if len(payload) == 0 || payload[0] != '[' {
		env, ok := parseLegacyEncrypted(payload)
		if !ok {
			return nil, fmt.Errorf("%w: not a legacy store", ErrCorrupt)
		}
		plaintext, err := env.open(password)
		if err != nil {
			return nil, err
		}
		defer secret.Wipe(plaintext)
		payload = plaintext
	}

	var servers []legacyServer
	if err := json.Unmarshal(payload, &servers); err != nil {
		return nil, fmt.Errorf("%w: not a legacy server list: %v", ErrCorrupt, err)
	}
	return servers, nil
}

// parseLegacyEncrypted accepts an object holding exactly the salt, nonce and
// ciphertext members.
func parseLegacyEncrypted(data []byte) (*legacyEncrypted, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || len(fields) != 3 {
		return nil, false
	}
	for _, name := range []string{"salt", "nonce", "ciphertext"} {
		if _, ok := fields[name]; !ok {
			return nil, false
		}
	}
	var env legacyEncrypted
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false
	}
	if len(env.Salt) == 0 || len(env.Nonce) == 0 || len(env.Ciphertext) == 0 {
		return nil, false
	}
	return &env, true
}

func (e *legacyEncrypted) open(password string) ([]byte, error) {
	key := pbkdf2.Key([]byte(password), e.Salt, legacyIterations, legacyKeySize, sha256.New)
	defer secret.Wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	if len(e.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: legacy nonce of %d bytes", ErrCorrupt, len(e.Nonce))
	}
	plaintext, err := gcm.Open(nil, e.Nonce, e.Ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

// uniqueID returns id, or id with the first free "-N" suffix when a profile
// already uses it.
func uniqueID(reg *config.Registry, id string) string {
	if _, taken := reg.Get(id); !taken {
		return id
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", id, n)
		if _, taken := reg.Get(candidate); !taken {
			return candidate
		}
	}
}

// OpenOrMigrate opens the store at path, converting a legacy store first
// when it finds one. A missing store still fails with ErrNotInitialized so
// the caller can confirm the password before Create.
func OpenOrMigrate(path, password string, params secret.KDFParams) (*Store, *config.Registry, error) {
	s, reg, err := Open(path, password)
	if errors.Is(err, ErrLegacyPlaintext) || errors.Is(err, ErrLegacyEncrypted) {
		logging.Infof("[Store] %s is a legacy store, migrating", path)
		return MigrateLegacy(path, password, params)
	}
	return s, reg, err
}

// legacyProfile maps an old entry to a profile. A non-nil plaintext is a
// password that still has to be sealed.
func legacyProfile(ls legacyServer) (config.ServerProfile, []byte, error) {
	group := ls.Group
	if group == "" {
		group = config.DefaultGroup
	}
	profile := config.ServerProfile{
		ID:       ls.Name,
		Host:     ls.Host,
		Port:     ls.Port,
		Username: ls.User,
		Group:    group,
		Auth:     config.AuthMethod{Kind: config.AuthAgent},
	}
	if profile.Port == 0 {
		profile.Port = config.DefaultPort
	}

	if len(ls.AuthType) == 0 || string(ls.AuthType) == "null" {
		return profile, nil, nil
	}

	var name string
	if err := json.Unmarshal(ls.AuthType, &name); err == nil {
		if name != "Agent" {
			return profile, nil, fmt.Errorf("unknown auth type %q", name)
		}
		return profile, nil, nil
	}

	var auth legacyAuth
	if err := json.Unmarshal(ls.AuthType, &auth); err != nil {
		return profile, nil, fmt.Errorf("unreadable auth type: %w", err)
	}
	switch {
	case auth.Password != nil:
		profile.Auth = config.AuthMethod{Kind: config.AuthPassword}
		return profile, []byte(*auth.Password), nil
	case auth.Key != nil:
		profile.Auth = config.AuthMethod{Kind: config.AuthKeyFile, KeyPath: *auth.Key}
		return profile, nil, nil
	}
	return profile, nil, errors.New("empty auth type")
}
