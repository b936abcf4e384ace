package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/mastofy/internal/db"
	"github.com/kimhsiao/mastofy/internal/errors"
)

func newResetCommand(opts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Erase the local database",
		Long: `Roll back every schema migration and apply them again. This removes
the session, the column layout and any pending application registrations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)

			if !yes {
				in := cmd.InOrStdin()
				if !isTerminal(in) {
					return f.Fail(NewExitError(ExitCommandError, "refusing to reset without --yes"))
				}
				f.Prompt("Erase all local data? [y/N] ")
				answer, err := readLine(in)
				if err != nil {
					return f.Fail(WrapExitError(ExitCommandError, "failed to read answer", err))
				}
				if reply := strings.ToLower(answer); reply != "y" && reply != "yes" {
					return f.Success("Cancelled", map[string]bool{"reset": false})
				}
			}

			cfg, err := opts.loadConfig(f)
			if err != nil {
				return f.Fail(err)
			}
			database, err := db.Open(cfg.DataDir)
			if err != nil {
				return f.Fail(errors.Wrap(errors.ErrStorage, "failed to open database", err))
			}
			defer database.Close()

			version, err := database.Reset()
			if err != nil {
				return f.Fail(errors.Wrap(errors.ErrStorage, "failed to reset database", err))
			}
			return f.Success("Local data erased", map[string]interface{}{
				"reset":         true,
				"schemaVersion": version,
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
