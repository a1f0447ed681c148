package components

import (
	"slices"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/internal/secret"
)

func fillForm(f *ConnectionForm, values map[int]string) {
	for i, v := range values {
		f.inputs[i].SetValue(v)
	}
}

func submit(f *ConnectionForm) {
	f.focus(submitIndex)
	f.Update(tea.KeyMsg{Type: tea.KeyEnter})
}

func TestConnectionFormNewPasswordProfile(t *testing.T) {
	f := newConnectionForm(nil, nil)
	fillForm(f, map[int]string{
		fieldID:       "web",
		fieldHost:     "web.example.com",
		fieldUser:     "deploy",
		fieldPassword: "pw",
	})
	submit(f)

	if !f.IsSubmitted() {
		t.Fatalf("Expected form to submit, got error %q", f.errorMessage)
	}
	d := f.Draft()
	if d.OriginalID != "" {
		t.Errorf("New profile must not carry an original id, got %q", d.OriginalID)
	}
	p := d.Profile
	if p.ID != "web" || p.Port != config.DefaultPort || p.Group != config.DefaultGroup {
		t.Errorf("Unexpected profile %+v", p)
	}
	if p.Auth.Kind != config.AuthPassword || d.Password != "pw" {
		t.Errorf("Expected password auth with typed password, got %v / %q", p.Auth, d.Password)
	}
	if p.Secret != nil {
		t.Error("The form must never produce sealed secrets")
	}
}

func TestConnectionFormValidation(t *testing.T) {
	base := map[int]string{fieldID: "web", fieldHost: "h", fieldUser: "u", fieldPassword: "pw"}

	tests := []struct {
		name    string
		change  map[int]string
		kind    config.AuthKind
		wantErr string
	}{
		{"missing id", map[int]string{fieldID: ""}, config.AuthPassword, "Identifier is required"},
		{"missing host", map[int]string{fieldHost: " "}, config.AuthPassword, "Host is required"},
		{"bad port", map[int]string{fieldPort: "70000"}, config.AuthPassword, "Port must be a number between 1 and 65535"},
		{"no password", map[int]string{fieldPassword: ""}, config.AuthPassword, "Password is required for password authentication"},
		{"no key path", nil, config.AuthKeyFile, "SSH key path is required for key authentication"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newConnectionForm(nil, nil)
			fillForm(f, base)
			fillForm(f, tt.change)
			f.kind = tt.kind
			submit(f)
			if f.IsSubmitted() {
				t.Fatal("Expected validation to fail")
			}
			if f.errorMessage != tt.wantErr {
				t.Errorf("Expected %q, got %q", tt.wantErr, f.errorMessage)
			}
		})
	}
}

func TestConnectionFormEditKeepsStoredSecret(t *testing.T) {
	profile := config.ServerProfile{
		ID: "db1", Host: "10.0.0.5", Port: 2222, Username: "admin", Group: "prod",
		Auth:   config.AuthMethod{Kind: config.AuthPassword},
		Secret: &secret.Sealed{},
	}
	f := newConnectionForm(&profile, nil)
	if got := f.inputs[fieldPort].Value(); got != "2222" {
		t.Errorf("Expected port prefilled, got %q", got)
	}
	f.inputs[fieldID].SetValue("db-primary")
	submit(f)

	if !f.IsSubmitted() {
		t.Fatalf("Editing without retyping the password must work, got %q", f.errorMessage)
	}
	d := f.Draft()
	if d.OriginalID != "db1" || d.Profile.ID != "db-primary" {
		t.Errorf("Expected rename db1 -> db-primary, got %q -> %q", d.OriginalID, d.Profile.ID)
	}
	if d.Password != "" {
		t.Errorf("Expected empty password meaning unchanged, got %q", d.Password)
	}
}

func TestConnectionFormCyclesAuthKinds(t *testing.T) {
	f := newConnectionForm(nil, nil)
	ctrlP := tea.KeyMsg{Type: tea.KeyCtrlP}

	f.Update(ctrlP)
	if f.kind != config.AuthKeyFile || !f.visible(fieldKeyPath) || f.visible(fieldPassword) {
		t.Fatalf("Expected keyfile fields, kind=%v", f.kind)
	}
	f.Update(ctrlP)
	if f.kind != config.AuthAgent || f.visible(fieldKeyPath) || f.visible(fieldPassphrase) {
		t.Fatalf("Expected agent without key fields, kind=%v", f.kind)
	}

	f.inputs[fieldFallback].SetValue("password")
	if !f.visible(fieldPassword) {
		t.Error("A password fallback must show the password field")
	}

	f.Update(ctrlP)
	if f.kind != config.AuthPassword {
		t.Errorf("Expected to wrap around to password, got %v", f.kind)
	}
}

func TestConnectionFormKeyDropdown(t *testing.T) {
	f := newConnectionForm(nil, []string{"~/.ssh/id_a", "~/.ssh/id_b"})
	f.kind = config.AuthKeyFile
	f.focus(fieldKeyPath)
	if !f.dropdownOpen {
		t.Fatal("Expected dropdown to open on the key field")
	}

	f.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("b")})
	if n := len(f.keyList.Items()); n != 1 {
		t.Fatalf("Expected typing to narrow the dropdown to 1 key, got %d", n)
	}
	f.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if got := f.inputs[fieldKeyPath].Value(); got != "~/.ssh/id_b" {
		t.Errorf("Expected id_b to be picked, got %q", got)
	}
	if f.dropdownOpen {
		t.Error("Expected dropdown to close after picking")
	}
}

func TestParseFallback(t *testing.T) {
	methods, err := parseFallback("agent, keyfile, keyfile:~/.ssh/other, password", "~/.ssh/id")
	if err != nil {
		t.Fatalf("parseFallback failed: %v", err)
	}
	want := []config.AuthMethod{
		{Kind: config.AuthAgent},
		{Kind: config.AuthKeyFile, KeyPath: "~/.ssh/id"},
		{Kind: config.AuthKeyFile, KeyPath: "~/.ssh/other"},
		{Kind: config.AuthPassword},
	}
	if !slices.Equal(methods, want) {
		t.Errorf("Expected %v, got %v", want, methods)
	}
	if got := formatFallback(methods); got != "agent, keyfile:~/.ssh/id, keyfile:~/.ssh/other, password" {
		t.Errorf("Unexpected format %q", got)
	}

	if _, err := parseFallback("telnet", ""); err == nil {
		t.Error("Expected unknown method to fail")
	}
	if _, err := parseFallback("keyfile", ""); err == nil {
		t.Error("Expected keyfile without any path to fail")
	}
	if methods, err := parseFallback("", ""); err != nil || methods != nil {
		t.Errorf("Expected empty fallback, got %v, %v", methods, err)
	}
}
