package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/internal/logging"
	"github.com/eugeniofciuvasile/ssh-vault/internal/ssh"
	"github.com/eugeniofciuvasile/ssh-vault/internal/vault"
)

func newConnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect [id]",
		Short: "Open a shell on a saved server",
		Long:  "Open an interactive shell on the server saved under id. Without id a selector lists every saved server.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, reg, err := a.openVault()
			if err != nil {
				return err
			}
			defer store.Lock()

			var profile config.ServerProfile
			if len(args) == 1 {
				profile, err = findProfile(cmd.ErrOrStderr(), reg, args[0])
			} else {
				profile, err = selectProfile(reg)
			}
			if err != nil {
				return err
			}
			return a.runShell(cmd.Context(), cmd.ErrOrStderr(), store, profile)
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id> <remote> [local]",
		Short: "Download a file over SFTP",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			local := "."
			if len(args) == 3 {
				local = args[2]
			}
			return a.withSFTP(cmd, args[0], func(client *ssh.SFTPClient) error {
				written, n, err := client.Download(args[1], local)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s to %s (%d bytes)\n", args[1], written, n)
				return nil
			})
		},
	}
}

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put <id> <local> [remote]",
		Short: "Upload a file over SFTP",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSFTP(cmd, args[0], func(client *ssh.SFTPClient) error {
				remote := ""
				if len(args) == 3 {
					remote = args[2]
				} else {
					wd, err := client.WorkingDir()
					if err != nil {
						return err
					}
					remote = wd
				}
				written, n, err := client.Upload(args[1], remote)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to %s (%d bytes)\n", args[1], written, n)
				return nil
			})
		},
	}
}

// findProfile looks up id and lists what is available when it is missing.
func findProfile(stderr io.Writer, reg *config.Registry, id string) (config.ServerProfile, error) {
	if profile, ok := reg.Get(id); ok {
		return profile, nil
	}
	fmt.Fprintf(stderr, "Connection with ID '%s' not found.\n\nAvailable connections:\n", id)
	if reg.Len() == 0 {
		fmt.Fprintln(stderr, "  (none)")
	}
	for p := range reg.List(nil) {
		fmt.Fprintf(stderr, "  • %s - %s@%s\n", p.ID, p.Username, p.Address())
	}
	return config.ServerProfile{}, fmt.Errorf("%w: %s", config.ErrNotFound, id)
}

// selectProfile runs the interactive selector over every saved profile.
func selectProfile(reg *config.Registry) (config.ServerProfile, error) {
	selector := NewSelector(reg.Profiles())
	if _, err := tea.NewProgram(selector, tea.WithOutput(os.Stderr)).Run(); err != nil {
		return config.ServerProfile{}, fmt.Errorf("selector failed: %w", err)
	}
	choice := selector.Choice()
	if choice == nil {
		return config.ServerProfile{}, errors.New("no connection selected")
	}
	return *choice, nil
}

// dial connects to profile, printing progress to stderr. Interrupting the
// process cancels the attempt.
func (a *app) dial(ctx context.Context, stderr io.Writer, store *vault.Store, profile config.ServerProfile) (*ssh.Session, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	manager := ssh.NewManager(store, a.settings.ManagerOptions())
	attempt := manager.Connect(ctx, profile)

	fmt.Fprintf(stderr, "Connecting to %s (%s@%s)...\n", profile.ID, profile.Username, profile.Address())
	for state := range attempt.States() {
		logging.Debugf("[CLI] %s: %s", profile.ID, state)
	}
	sess, err := attempt.Wait()
	if err != nil {
		return nil, err
	}
	logging.Infof("[CLI] Connected to %s via %s", profile.ID, sess.Method())
	return sess, nil
}

func (a *app) runShell(ctx context.Context, stderr io.Writer, store *vault.Store, profile config.ServerProfile) error {
	sess, err := a.dial(ctx, stderr, store, profile)
	if err != nil {
		return err
	}
	defer sess.Close()

	bridge, err := sess.OpenShell(a.settings.Term)
	if err != nil {
		return err
	}
	bridge.SetStdin(a.stdin)
	bridge.SetStdout(os.Stdout)
	bridge.SetStderr(os.Stderr)
	if err := bridge.RunContext(ctx); err != nil {
		return fmt.Errorf("SSH session failed: %w", err)
	}
	return nil
}

// withSFTP unlocks the store, connects to id and runs fn on an SFTP client.
func (a *app) withSFTP(cmd *cobra.Command, id string, fn func(*ssh.SFTPClient) error) error {
	store, reg, err := a.openVault()
	if err != nil {
		return err
	}
	defer store.Lock()

	profile, err := findProfile(cmd.ErrOrStderr(), reg, id)
	if err != nil {
		return err
	}
	sess, err := a.dial(cmd.Context(), cmd.ErrOrStderr(), store, profile)
	if err != nil {
		return err
	}
	defer sess.Close()

	client, err := sess.OpenSFTP()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}
