// Package settings loads application settings from config.yaml, SSH_VAULT_*
// environment variables and command line flags, in increasing precedence.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/internal/secret"
	"github.com/eugeniofciuvasile/ssh-vault/internal/ssh"
	"github.com/eugeniofciuvasile/ssh-vault/internal/vault"
)

const (
	appDir     = "ssh-vault"
	configName = "config"

	// DefaultClipboardClear is how long a revealed secret stays on the
	// clipboard.
	DefaultClipboardClear = 20 * time.Second
	// DefaultKeyringService is the keyring service older ssh-x-term installs
	// stored passwords under.
	DefaultKeyringService = "ssh-x-term"
)

// KDF mirrors secret.KDFParams for the config file.
type KDF struct {
	Time    uint32 `mapstructure:"time" yaml:"time"`
	Memory  uint32 `mapstructure:"memory" yaml:"memory"`
	Threads uint8  `mapstructure:"threads" yaml:"threads"`
}

// Import holds settings for `import`.
type Import struct {
	KeyringService string `mapstructure:"keyring_service" yaml:"keyring_service"`
}

// Settings is the resolved application configuration.
type Settings struct {
	StorePath      string        `mapstructure:"store_path" yaml:"store_path"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	KnownHosts     string        `mapstructure:"known_hosts" yaml:"known_hosts"`
	HostKeyPolicy  string        `mapstructure:"host_key_policy" yaml:"host_key_policy"`
	KDF            KDF           `mapstructure:"kdf" yaml:"kdf"`
	ClipboardClear time.Duration `mapstructure:"clipboard_clear" yaml:"clipboard_clear"`
	Import         Import        `mapstructure:"import" yaml:"import"`
	LogFile        string        `mapstructure:"log_file" yaml:"log_file"`
	Debug          bool          `mapstructure:"debug" yaml:"debug"`
	Term           string        `mapstructure:"term" yaml:"term"`

	// ConfigFile is the file the values were read from, empty when only
	// defaults and the environment applied.
	ConfigFile string `mapstructure:"-" yaml:"-"`
}

// flagKeys maps command line flags to setting keys.
var flagKeys = map[string]string{
	"store":           "store_path",
	"connect-timeout": "connect_timeout",
	"known-hosts":     "known_hosts",
	"host-key-policy": "host_key_policy",
	"log-file":        "log_file",
	"debug":           "debug",
}

// Dir returns the per-user directory holding config.yaml, the store and the
// log file.
func Dir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not get user config directory: %w", err)
	}
	return filepath.Join(configDir, appDir), nil
}

func defaults() (map[string]any, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	storePath, err := vault.DefaultPath()
	if err != nil {
		return nil, err
	}
	kdf := secret.DefaultKDFParams()
	return map[string]any{
		"store_path":             storePath,
		"connect_timeout":        ssh.DefaultConnectTimeout,
		"known_hosts":            ssh.DefaultKnownHostsPath(),
		"host_key_policy":        string(ssh.HostKeyAcceptNew),
		"kdf.time":               kdf.Time,
		"kdf.memory":             kdf.Memory,
		"kdf.threads":            kdf.Threads,
		"clipboard_clear":        DefaultClipboardClear,
		"import.keyring_service": DefaultKeyringService,
		"log_file":               filepath.Join(dir, "ssh-vault.log"),
		"debug":                  false,
		"term":                   ssh.DefaultTerm,
	}, nil
}

// Load resolves the settings. configFile, when set, must exist; otherwise
// config.yaml is looked up in Dir and a missing file is not an error. cmd may
// be nil; when given, its flags listed in flagKeys override everything else.
func Load(cmd *cobra.Command, configFile string) (Settings, error) {
	var s Settings
	v := viper.New()

	defs, err := defaults()
	if err != nil {
		return s, err
	}
	for key, value := range defs {
		v.SetDefault(key, value)
	}

	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(config.ExpandPath(configFile))
	} else {
		v.SetConfigName(configName)
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return s, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("ssh_vault")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("log_file", "SSH_VAULT_LOG_FILE", "SSH_VAULT_LOG"); err != nil {
		return s, err
	}

	if cmd != nil {
		for name, key := range flagKeys {
			if flag := cmd.Flags().Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return s, err
				}
			}
		}
	}

	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("failed to parse settings: %w", err)
	}
	s.ConfigFile = v.ConfigFileUsed()
	s.StorePath = config.ExpandPath(s.StorePath)
	s.KnownHosts = config.ExpandPath(s.KnownHosts)
	s.LogFile = config.ExpandPath(s.LogFile)

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate rejects values the rest of the application cannot work with.
func (s Settings) Validate() error {
	if _, err := ssh.ParseHostKeyPolicy(s.HostKeyPolicy); err != nil {
		return err
	}
	if s.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %s", s.ConnectTimeout)
	}
	if s.ClipboardClear < 0 {
		return fmt.Errorf("clipboard_clear must not be negative, got %s", s.ClipboardClear)
	}
	if err := s.KDFParams().Validate(); err != nil {
		return fmt.Errorf("invalid kdf settings: %w", err)
	}
	return nil
}

// KDFParams returns the parameters used when creating or rekeying a store.
func (s Settings) KDFParams() secret.KDFParams {
	return secret.KDFParams{
		Name:    secret.KDFArgon2id,
		Time:    s.KDF.Time,
		Memory:  s.KDF.Memory,
		Threads: s.KDF.Threads,
	}
}

// ManagerOptions returns the session manager configuration.
func (s Settings) ManagerOptions() ssh.Options {
	policy, _ := ssh.ParseHostKeyPolicy(s.HostKeyPolicy)
	return ssh.Options{
		ConnectTimeout: s.ConnectTimeout,
		KnownHostsPath: s.KnownHosts,
		HostKeyPolicy:  policy,
	}
}
