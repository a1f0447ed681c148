package vault

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/internal/secret"
)

func testParams() secret.KDFParams {
	return secret.KDFParams{Name: secret.KDFArgon2id, Time: 1, Memory: 64, Threads: 1}
}

func storePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "ssh-vault", "servers.json")
}

func createWithDB1(t *testing.T, path string) (*Store, *config.Registry) {
	t.Helper()
	s, reg, err := Create(path, "correct-horse", testParams())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	sealed, err := s.SealSecret([]byte("s3cret"))
	if err != nil {
		t.Fatalf("SealSecret failed: %v", err)
	}
	err = reg.Add(config.ServerProfile{
		ID:       "db1",
		Host:     "10.0.0.5",
		Port:     22,
		Username: "admin",
		Group:    config.DefaultGroup,
		Auth:     config.AuthMethod{Kind: config.AuthPassword},
		Secret:   sealed,
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Persist(reg); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	return s, reg
}

func TestStoreScenario(t *testing.T) {
	path := storePath(t)
	s, reg := createWithDB1(t, path)
	s.Lock()

	reopened, back, err := Open(path, "correct-horse")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reopened.Lock()

	if back.Len() != 1 {
		t.Fatalf("Expected 1 profile, got %d", back.Len())
	}
	if !reflect.DeepEqual(reg.Profiles(), back.Profiles()) {
		t.Errorf("Reopened registry differs:\n%+v\n%+v", reg.Profiles(), back.Profiles())
	}

	db1, _ := back.Get("db1")
	plaintext, err := reopened.OpenSecret(db1.Secret)
	if err != nil {
		t.Fatalf("OpenSecret failed: %v", err)
	}
	if string(plaintext) != "s3cret" {
		t.Errorf("Expected secret s3cret, got %q", plaintext)
	}

	if _, _, err := Open(path, "wrong-pass"); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Expected ErrWrongPassword, got %v", err)
	}
}

func TestStoreFileHasNoPlaintext(t *testing.T) {
	path := storePath(t)
	s, _ := createWithDB1(t, path)
	defer s.Lock()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read store: %v", err)
	}
	for _, needle := range []string{`"db1"`, "10.0.0.5", "admin", "s3cret"} {
		if bytes.Contains(data, []byte(needle)) {
			t.Errorf("Store file contains plaintext %q", needle)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected mode 0600, got %o", perm)
	}
}

func TestStoreFirstRun(t *testing.T) {
	path := storePath(t)
	if _, _, err := Open(path, "anything"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Expected ErrNotInitialized, got %v", err)
	}

	s, reg, err := Create(path, "pw", testParams())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	s.Lock()
	if reg.Len() != 0 {
		t.Errorf("Expected empty registry, got %d profiles", reg.Len())
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Create must write the file immediately: %v", err)
	}

	if _, _, err := Create(path, "pw", testParams()); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}
}

func rewriteEnvelope(t *testing.T, path string, mutate func(*envelope)) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read store: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}
	mutate(&env)
	data, err = json.Marshal(env)
	if err != nil {
		t.Fatalf("Failed to encode envelope: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("Failed to write store: %v", err)
	}
}

func TestStoreTamperDetection(t *testing.T) {
	path := storePath(t)
	s, _ := createWithDB1(t, path)
	s.Lock()

	original, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read store: %v", err)
	}

	var env envelope
	if err := json.Unmarshal(original, &env); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}

	cases := map[string]func(*envelope, int){
		"ciphertext": func(e *envelope, i int) { e.Ciphertext[i/8] ^= 1 << (i % 8) },
		"tag":        func(e *envelope, i int) { e.Tag[i/8] ^= 1 << (i % 8) },
		"nonce":      func(e *envelope, i int) { e.Nonce[i/8] ^= 1 << (i % 8) },
	}
	sizes := map[string]int{
		"ciphertext": len(env.Ciphertext) * 8,
		"tag":        len(env.Tag) * 8,
		"nonce":      len(env.Nonce) * 8,
	}

	for name, flip := range cases {
		t.Run(name, func(t *testing.T) {
			// Every bit of tag and nonce, a sample of ciphertext bits.
			step := 1
			if name == "ciphertext" {
				step = 13
			}
			for i := 0; i < sizes[name]; i += step {
				if err := os.WriteFile(path, original, 0600); err != nil {
					t.Fatalf("Failed to restore store: %v", err)
				}
				rewriteEnvelope(t, path, func(e *envelope) { flip(e, i) })
				if _, _, err := Open(path, "correct-horse"); !errors.Is(err, ErrWrongPassword) {
					t.Fatalf("bit %d: expected ErrWrongPassword, got %v", i, err)
				}
			}
		})
	}

	t.Run("kdf downgrade", func(t *testing.T) {
		if err := os.WriteFile(path, original, 0600); err != nil {
			t.Fatalf("Failed to restore store: %v", err)
		}
		rewriteEnvelope(t, path, func(e *envelope) { e.KDF.Time++ })
		if _, _, err := Open(path, "correct-horse"); !errors.Is(err, ErrWrongPassword) {
			t.Fatalf("Expected ErrWrongPassword, got %v", err)
		}
	})
}

func TestStoreRejectsUnknownFormats(t *testing.T) {
	path := storePath(t)
	s, _ := createWithDB1(t, path)
	s.Lock()
	original, _ := os.ReadFile(path)

	tests := []struct {
		name   string
		mutate func(*envelope)
		want   error
	}{
		{"future version", func(e *envelope) { e.Version = 2 }, ErrUnsupportedVersion},
		{"unknown kdf", func(e *envelope) { e.KDF.Name = "scrypt" }, ErrUnsupportedVersion},
		{"missing salt", func(e *envelope) { e.Salt = nil }, ErrCorrupt},
		{"oversized kdf memory", func(e *envelope) { e.KDF.Memory = 1 << 31 }, ErrCorrupt},
		{"oversized kdf time", func(e *envelope) { e.KDF.Time = 1 << 30 }, ErrCorrupt},
		{"zero kdf threads", func(e *envelope) { e.KDF.Threads = 0 }, ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.WriteFile(path, original, 0600); err != nil {
				t.Fatalf("Failed to restore store: %v", err)
			}
			rewriteEnvelope(t, path, tt.mutate)
			if _, _, err := Open(path, "correct-horse"); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("Failed to write store: %v", err)
	}
	if _, _, err := Open(path, "correct-horse"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt, got %v", err)
	}
}

func TestStoreUnlockRejectsOversizedKDF(t *testing.T) {
	path := storePath(t)
	s, _ := createWithDB1(t, path)
	s.Lock()

	rewriteEnvelope(t, path, func(e *envelope) { e.KDF.Memory = 1 << 31 })
	if err := s.Unlock("correct-horse"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt, got %v", err)
	}
	if !s.Locked() {
		t.Error("Store must stay locked")
	}
}

func TestStoreLock(t *testing.T) {
	path := storePath(t)
	s, reg := createWithDB1(t, path)
	db1, _ := reg.Get("db1")

	s.Lock()
	s.Lock()
	if !s.Locked() {
		t.Fatal("Expected store to report locked")
	}
	if _, err := s.OpenSecret(db1.Secret); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked from OpenSecret, got %v", err)
	}
	if _, err := s.SealSecret([]byte("x")); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked from SealSecret, got %v", err)
	}
	if err := s.Persist(reg); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked from Persist, got %v", err)
	}

	if err := s.Unlock("wrong-pass"); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Expected ErrWrongPassword, got %v", err)
	}
	if err := s.Unlock("correct-horse"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	defer s.Lock()
	plaintext, err := s.OpenSecret(db1.Secret)
	if err != nil || string(plaintext) != "s3cret" {
		t.Errorf("Expected s3cret after unlock, got %q, %v", plaintext, err)
	}
}

func TestStoreRekey(t *testing.T) {
	path := storePath(t)
	s, reg := createWithDB1(t, path)

	before, _ := reg.Get("db1")
	if err := s.Rekey(reg, "battery-staple", testParams()); err != nil {
		t.Fatalf("Rekey failed: %v", err)
	}
	after, _ := reg.Get("db1")
	if reflect.DeepEqual(before.Secret, after.Secret) {
		t.Error("Secret was not re-sealed")
	}
	plaintext, err := s.OpenSecret(after.Secret)
	if err != nil || string(plaintext) != "s3cret" {
		t.Errorf("Expected s3cret under new key, got %q, %v", plaintext, err)
	}
	if _, err := s.OpenSecret(before.Secret); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Old ciphertext must not open under new key, got %v", err)
	}
	s.Lock()

	if _, _, err := Open(path, "correct-horse"); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Old password should fail after rekey, got %v", err)
	}
	reopened, back, err := Open(path, "battery-staple")
	if err != nil {
		t.Fatalf("Open with new password failed: %v", err)
	}
	defer reopened.Lock()
	db1, _ := back.Get("db1")
	plaintext, err = reopened.OpenSecret(db1.Secret)
	if err != nil || string(plaintext) != "s3cret" {
		t.Errorf("Expected s3cret after reopen, got %q, %v", plaintext, err)
	}
}

func TestStoreRekeyLocked(t *testing.T) {
	path := storePath(t)
	s, reg := createWithDB1(t, path)
	s.Lock()
	if err := s.Rekey(reg, "new", testParams()); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked, got %v", err)
	}
}

func TestStoreErrorUnwrap(t *testing.T) {
	inner := os.ErrPermission
	err := error(&StoreError{Op: "write", Path: "/x", Err: inner})
	if !errors.Is(err, os.ErrPermission) {
		t.Error("StoreError should unwrap to its cause")
	}
	var se *StoreError
	if !errors.As(err, &se) || se.Op != "write" {
		t.Errorf("errors.As failed: %v", err)
	}
}
