package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eugeniofciuvasile/ssh-vault/internal/logging"
)

// DefaultSSHConfigPath returns ~/.ssh/config.
func DefaultSSHConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".ssh", "config"), nil
}

// LoadSSHConfig parses the OpenSSH client config at path. A missing file
// yields no entries.
func LoadSSHConfig(path string) ([]HostEntry, error) {
	file, err := os.Open(ExpandPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ssh config: %w", err)
	}
	defer file.Close()
	return ParseSSHConfig(file)
}

// ParseSSHConfig extracts concrete host entries from OpenSSH client config
// text. Every alias named on a Host line yields one entry; wildcard and
// negated patterns yield none but their blocks still apply to the aliases
// they match. As in ssh, the first value found for a keyword wins and Match
// blocks are ignored. Missing HostName falls back to the alias, missing User
// to the current OS user and missing Port to 22.
func ParseSSHConfig(r io.Reader) ([]HostEntry, error) {
	scanner := bufio.NewScanner(r)

	// Directives before the first Host line apply to every host.
	blocks := []*hostBlock{{patterns: []string{"*"}}}
	var aliases []string
	seen := make(map[string]bool)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		keyword, value := splitDirective(line)
		if keyword == "" || value == "" {
			continue
		}

		switch keyword {
		case "host":
			patterns := strings.Fields(value)
			blocks = append(blocks, &hostBlock{patterns: patterns})
			for _, alias := range patterns {
				if strings.ContainsAny(alias, "*?!") || seen[alias] {
					continue
				}
				seen[alias] = true
				aliases = append(aliases, alias)
			}
			continue
		case "match":
			blocks = append(blocks, &hostBlock{})
			continue
		}

		current := blocks[len(blocks)-1]
		current.directives = append(current.directives, directive{keyword, value})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ssh config: %w", err)
	}

	defaultUser := currentUsername()
	entries := make([]HostEntry, 0, len(aliases))
	for _, alias := range aliases {
		e := HostEntry{Alias: alias}
		for _, b := range blocks {
			if b.matches(alias) {
				e.apply(b.directives)
			}
		}
		if e.Host == "" {
			e.Host = alias
		}
		if e.Port == 0 {
			e.Port = DefaultPort
		}
		if e.User == "" {
			e.User = defaultUser
		}
		entries = append(entries, e)
	}
	return entries, nil
}

type directive struct {
	keyword string
	value   string
}

// hostBlock is one Host section. A Match section has no patterns and never
// matches.
type hostBlock struct {
	patterns   []string
	directives []directive
}

// matches reports whether alias matches any pattern of the block and none of
// its negated patterns.
func (b *hostBlock) matches(alias string) bool {
	alias = strings.ToLower(alias)
	matched := false
	for _, p := range b.patterns {
		negated := strings.HasPrefix(p, "!")
		ok, err := path.Match(strings.ToLower(strings.TrimPrefix(p, "!")), alias)
		if err != nil || !ok {
			continue
		}
		if negated {
			return false
		}
		matched = true
	}
	return matched
}

// apply fills the fields that are still unset.
func (e *HostEntry) apply(directives []directive) {
	for _, d := range directives {
		switch d.keyword {
		case "hostname":
			if e.Host == "" {
				e.Host = strings.ReplaceAll(d.value, "%h", e.Alias)
			}
		case "port":
			if e.Port != 0 {
				continue
			}
			if port, err := strconv.Atoi(d.value); err == nil {
				e.Port = port
			} else {
				logging.Debugf("[ParseSSHConfig] Ignoring invalid port %q for host %s", d.value, e.Alias)
			}
		case "user":
			if e.User == "" {
				e.User = d.value
			}
		case "identityfile":
			// ssh uses every IdentityFile; a profile keeps the first one.
			if e.IdentityFile == "" {
				e.IdentityFile = strings.Trim(d.value, `"`)
			}
		}
	}
}

// splitDirective handles both "Keyword value" and "Keyword=value" forms.
func splitDirective(line string) (string, string) {
	idx := strings.IndexAny(line, " \t=")
	if idx < 0 {
		return strings.ToLower(line), ""
	}
	keyword := strings.ToLower(line[:idx])
	value := strings.TrimSpace(line[idx:])
	value = strings.TrimSpace(strings.TrimPrefix(value, "="))
	return keyword, value
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		// Windows reports DOMAIN\user.
		if i := strings.LastIndex(u.Username, `\`); i >= 0 {
			return u.Username[i+1:]
		}
		return u.Username
	}
	return os.Getenv("USER")
}
