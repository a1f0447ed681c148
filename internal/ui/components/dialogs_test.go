package components

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/eugeniofciuvasile/ssh-vault/internal/ssh"
)

func typeInto(m tea.Model, s string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func TestUnlockFormCreateRequiresMatchingPasswords(t *testing.T) {
	f := NewUnlockForm("/tmp/servers.json", true)
	typeInto(f, "one")
	f.Update(tea.KeyMsg{Type: tea.KeyEnter})
	typeInto(f, "two")
	f.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if f.IsSubmitted() || f.errorMsg != "Passwords do not match" {
		t.Fatalf("Expected mismatch error, got submitted=%v err=%q", f.IsSubmitted(), f.errorMsg)
	}

	typeInto(f, "one")
	f.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !f.IsSubmitted() || f.Password() != "one" {
		t.Fatalf("Expected submit with matching passwords, got %v %q", f.IsSubmitted(), f.Password())
	}
	if !strings.Contains(f.View(), "Create ssh-vault") {
		t.Error("Expected create title")
	}
}

func TestUnlockFormFailAllowsRetry(t *testing.T) {
	f := NewUnlockForm("/tmp/servers.json", false)
	f.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if f.IsSubmitted() {
		t.Fatal("Empty password must not submit")
	}

	typeInto(f, "guess")
	f.Update(tea.KeyMsg{Type: tea.KeyEnter})
	f.SetBusy(true)
	if !f.IsSubmitted() || !f.Busy() {
		t.Fatal("Expected submitted and busy")
	}

	f.Fail("Wrong password")
	if f.IsSubmitted() || f.Busy() || f.Password() != "" {
		t.Errorf("Fail must reset the form, got submitted=%v busy=%v pw=%q", f.IsSubmitted(), f.Busy(), f.Password())
	}
	if !strings.Contains(f.View(), "Wrong password") {
		t.Error("Expected error in view")
	}

	f.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !f.IsCanceled() {
		t.Error("Esc must cancel")
	}
}

func TestPromptForm(t *testing.T) {
	p := NewPromptForm("Rename Group", "New name for prod", "")
	p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if p.IsSubmitted() {
		t.Fatal("Empty value must not submit")
	}
	typeInto(p, " production ")
	p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !p.IsSubmitted() || p.Value() != "production" {
		t.Errorf("Expected trimmed value, got %v %q", p.IsSubmitted(), p.Value())
	}
}

func TestDeleteConfirmation(t *testing.T) {
	d := NewDeleteConfirmation("Delete Server", "Are you sure?", "db1")
	d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if d.IsConfirmed() || d.IsCanceled() {
		t.Fatal("Other keys must be ignored")
	}
	if !strings.Contains(d.View(), "db1") {
		t.Error("Expected subject in view")
	}
	d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	if !d.IsConfirmed() || d.Subject() != "db1" {
		t.Error("Expected confirmation")
	}

	d = NewDeleteConfirmation("Remove Group", "Servers are kept.", "prod")
	d.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !d.IsCanceled() || d.View() != "" {
		t.Error("Expected Esc to cancel")
	}
}

func TestConnectingView(t *testing.T) {
	c := NewConnectingView("db1 (admin@10.0.0.5:22)")
	if c.State() != ssh.StateIdle {
		t.Errorf("Expected idle before any transition, got %v", c.State())
	}
	for _, s := range []ssh.State{ssh.StateResolving, ssh.StateAuthenticating, ssh.StateResolving} {
		c.Observe(s)
	}
	view := c.View()
	if !strings.Contains(view, "resolving") || !strings.Contains(view, "Trying method 2") {
		t.Errorf("Unexpected view:\n%s", view)
	}
	c.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !c.IsCanceled() {
		t.Error("Esc must cancel")
	}
}
