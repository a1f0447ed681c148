// Package cli defines the ssh-vault command line. Running without a
// subcommand starts the terminal UI.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/eugeniofciuvasile/ssh-vault/internal/logging"
	"github.com/eugeniofciuvasile/ssh-vault/internal/settings"
	"github.com/eugeniofciuvasile/ssh-vault/internal/ui"
)

var version = "dev" // set by the linker

// app carries what every command needs once flags are parsed.
type app struct {
	configFile string
	settings   settings.Settings
	logCloser  io.Closer

	stdin  *os.File
	prompt passwordPrompt
}

// Execute runs the root command. main handles the exit code.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds a fresh command tree, so tests can run commands in
// isolation.
func NewRootCmd() *cobra.Command {
	a := &app{stdin: os.Stdin}
	a.prompt = a.terminalPrompt

	cmd := &cobra.Command{
		Use:   "ssh-vault",
		Short: "Encrypted SSH connection manager",
		Long: `ssh-vault keeps server profiles and their credentials in a file
encrypted with a master password, and opens shell and SFTP sessions to them.

Running without a subcommand starts the interactive UI.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ui.Run(a.settings)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/ssh-vault/config.yaml)")
	flags.String("store", "", "encrypted store file")
	flags.Duration("connect-timeout", 0, "connection timeout")
	flags.String("known-hosts", "", "known_hosts file used for host key checks")
	flags.String("host-key-policy", "", `host key policy ("strict", "accept-new", "insecure")`)
	flags.String("log-file", "", "log file")
	flags.Bool("debug", false, "enable debug logging")

	cmd.AddCommand(
		newListCmd(a),
		newConnectCmd(a),
		newGetCmd(a),
		newPutCmd(a),
		newImportCmd(a),
		newPasswdCmd(a),
	)
	return cmd
}

// setup loads settings and sends the log to its file.
func (a *app) setup(cmd *cobra.Command) error {
	s, err := settings.Load(cmd, a.configFile)
	if err != nil {
		return err
	}
	a.settings = s

	logging.SetDebug(s.Debug)
	closer, err := logging.ToFile(s.LogFile)
	if err != nil {
		return fmt.Errorf("unable to open log file: %w", err)
	}
	a.logCloser = closer
	logging.Debugf("[CLI] Running %s with settings from %q", cmd.CommandPath(), s.ConfigFile)
	return nil
}

func (a *app) teardown() error {
	if a.logCloser == nil {
		return nil
	}
	err := a.logCloser.Close()
	a.logCloser = nil
	return err
}
