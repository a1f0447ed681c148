package config

import (
	"strings"
	"testing"
)

func TestImportedAuthDetection(t *testing.T) {
	configContent := `# No IdentityFile, agent auth
Host agent-server
    HostName 10.10.8.25
    User admin
    Port 22

# Key authentication (has IdentityFile)
Host key-server
    HostName example.com
    User keyuser
    IdentityFile ~/.ssh/id_rsa
`

	entries, err := ParseSSHConfig(strings.NewReader(configContent))
	if err != nil {
		t.Fatalf("Failed to parse SSH config: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}

	agent := ProfileFromHostEntry(*findEntry(entries, "agent-server"))
	if agent.Auth.Kind != AuthAgent {
		t.Errorf("agent-server should use agent auth, got %s", agent.Auth)
	}
	if agent.Group != ImportedGroup {
		t.Errorf("Expected group %q, got %q", ImportedGroup, agent.Group)
	}

	key := ProfileFromHostEntry(*findEntry(entries, "key-server"))
	if key.Auth.Kind != AuthKeyFile {
		t.Errorf("key-server should use key file auth, got %s", key.Auth)
	}
	if key.Auth.KeyPath != "~/.ssh/id_rsa" {
		t.Errorf("Expected key path '~/.ssh/id_rsa', got '%s'", key.Auth.KeyPath)
	}
	if key.Secret != nil || key.Passphrase != nil {
		t.Error("Imported profiles must not carry secrets")
	}
}

func TestAuthKindText(t *testing.T) {
	for _, kind := range []AuthKind{AuthPassword, AuthKeyFile, AuthAgent} {
		text, err := kind.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d) failed: %v", kind, err)
		}
		var back AuthKind
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%s) failed: %v", text, err)
		}
		if back != kind {
			t.Errorf("Expected %s, got %s", kind, back)
		}
	}

	if _, err := ParseAuthKind("kerberos"); err == nil {
		t.Error("Expected error for unknown auth method")
	}
	if k, err := ParseAuthKind("Key"); err != nil || k != AuthKeyFile {
		t.Errorf("Expected 'Key' to parse as keyfile, got %s, %v", k, err)
	}
}
