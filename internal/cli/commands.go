package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/internal/logging"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list [filter]",
		Aliases: []string{"ls"},
		Short:   "List saved servers",
		Long:    "List saved servers ordered by group. A filter fuzzy-matches identifier, user@host and group.",
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, reg, err := a.openVault()
			if err != nil {
				return err
			}
			defer store.Lock()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "GROUP\tID\tADDRESS\tUSER\tAUTH")
			n := 0
			for p := range reg.List(config.MatchFilter(strings.Join(args, " "))) {
				group := p.Group
				if group == "" {
					group = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", group, p.ID, p.Address(), p.Username, authSummary(p))
				n++
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No servers found.")
			}
			return nil
		},
	}
}

// authSummary shows the primary method followed by the fallbacks.
func authSummary(p config.ServerProfile) string {
	names := make([]string, 0, 1+len(p.Fallback))
	for _, m := range p.Methods() {
		names = append(names, m.Kind.String())
	}
	return strings.Join(names, ",")
}

func newImportCmd(a *app) *cobra.Command {
	var noKeyring bool
	cmd := &cobra.Command{
		Use:   "import [ssh_config]",
		Short: "Import hosts from an OpenSSH client config",
		Long: `Import every concrete Host block of an OpenSSH client config (default
~/.ssh/config) into the Imported group. Existing identifiers are never
overwritten. Passwords saved in the OS keyring by ssh-x-term are recovered
unless --no-keyring is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				var err error
				if path, err = config.DefaultSSHConfigPath(); err != nil {
					return err
				}
			}
			entries, err := config.LoadSSHConfig(path)
			if err != nil {
				return err
			}

			store, reg, err := a.openVault()
			if err != nil {
				return err
			}
			defer store.Lock()

			var lookup config.PasswordLookup
			if service := a.settings.Import.KeyringService; service != "" && !noKeyring {
				lookup = config.KeyringLookup(service)
			}
			report, err := config.ImportEntries(reg, entries, store, lookup)
			if err != nil {
				return err
			}
			if len(report.Added) > 0 {
				if err := store.Persist(reg); err != nil {
					return err
				}
			}
			logging.Infof("[CLI] Imported %d hosts from %s", len(report.Added), path)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d, skipped %d, rejected %d from %s\n",
				len(report.Added), len(report.Skipped), len(report.Rejected), path)
			for _, s := range report.Skipped {
				fmt.Fprintf(out, "  skipped %s (%s): identifier already exists\n", s.ID, s.Host)
			}
			for _, r := range report.Rejected {
				fmt.Fprintf(out, "  rejected %s: %v\n", r.ID, r.Err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noKeyring, "no-keyring", false, "do not look for saved passwords in the OS keyring")
	return cmd
}

func newPasswdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the master password",
		Long:  "Re-encrypt the store and every saved secret under a new master password.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, reg, err := a.openVault()
			if err != nil {
				return err
			}
			defer store.Lock()

			pw, err := a.newPassword("New master password: ", NewPasswordEnv)
			if err != nil {
				return err
			}
			if err := store.Rekey(reg, pw, a.settings.KDFParams()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Master password changed.")
			return nil
		},
	}
}
