package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/mastofy/internal/app"
)

func newLoginCommand(opts *RootOptions) *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "login <instance>",
		Short: "Log in to a Mastodon instance",
		Long: `Register mastofy with the instance, print the page where access is
approved, then exchange the authorization code shown there for a token.

The code is read from standard input. Without a terminal and without input
the registration is kept, and the login is finished later with --code.
--code uses that earlier registration and does not register again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(a *app.App, f *OutputFormatter) error {
				return runLogin(cmd, a, f, args[0], code)
			})
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "authorization code from an earlier login attempt")
	return cmd
}

func runLogin(cmd *cobra.Command, a *app.App, f *OutputFormatter, instance, code string) error {
	ctx := cmd.Context()

	if code == "" {
		authURL, err := a.Auth.AuthorizationURL(ctx, instance)
		if err != nil {
			return err
		}

		f.Prompt("Open this page and approve access:\n\n  %s\n\n", authURL)
		in := cmd.InOrStdin()
		interactive := isTerminal(in)
		if interactive {
			f.Prompt("Authorization code: ")
		}
		if code, err = readLine(in); err != nil {
			return WrapExitError(ExitCommandError, "failed to read authorization code", err)
		}
		if code == "" {
			if interactive {
				return NewExitError(ExitCommandError, "authorization code is required")
			}
			return f.Success(
				fmt.Sprintf("Finish with: mastofy login %s --code <code>", instance),
				map[string]string{"instance": instance, "authorizeUrl": authURL},
			)
		}
	}

	sess, err := a.Auth.ExchangeCode(ctx, instance, code)
	if err != nil {
		return err
	}
	if err := a.Sessions.Set(sess); err != nil {
		return err
	}

	return f.Success("Logged in to "+sess.Instance, map[string]string{"instance": sess.Instance})
}

func newLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(a *app.App, f *OutputFormatter) error {
				sess, ok := a.Sessions.Get()
				if !ok {
					return f.Success("Not logged in", map[string]bool{"loggedOut": false})
				}
				if err := a.Sessions.Clear(); err != nil {
					return err
				}
				return f.Success("Logged out of "+sess.Instance, map[string]bool{"loggedOut": true})
			})
		},
	}
}
