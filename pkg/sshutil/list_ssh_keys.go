package sshutil

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Files in ~/.ssh that are never private keys.
var notKeys = map[string]struct{}{
	"known_hosts":     {},
	"known_hosts.old": {},
	"authorized_keys": {},
	"config":          {},
	"environment":     {},
	"README":          {},
}

// ScanSSHKeys returns the candidate private keys in ~/.ssh as sorted
// "~/.ssh/<name>" paths, ready to be stored in a profile.
func ScanSSHKeys() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return ScanKeyDir(filepath.Join(home, ".ssh"), "~/.ssh/")
}

// ScanKeyDir lists the regular top-level files in dir that look like private
// keys, each prefixed with prefix. Unreadable directories yield nothing.
func ScanKeyDir(dir, prefix string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if _, skip := notKeys[name]; skip {
			continue
		}
		if strings.HasSuffix(name, ".pub") || strings.HasPrefix(name, ".") {
			continue
		}
		if !e.Type().IsRegular() {
			continue
		}
		keys = append(keys, prefix+name)
	}
	slices.Sort(keys)
	return keys
}
