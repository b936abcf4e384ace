// Package cli implements the mastofy command line.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kimhsiao/mastofy/internal/app"
	"github.com/kimhsiao/mastofy/internal/config"
	"github.com/kimhsiao/mastofy/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"

	// Open builds the App a command works on.
	Open func(cfg *config.Config, opts ...app.Option) (*app.App, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the mastofy CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		Open: app.Open,
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mastofy",
		Short: "Multi-column Mastodon timelines in the terminal",
		Long: `mastofy keeps several Mastodon feeds side by side: home, local, federated,
notifications and hashtags. Columns persist between runs and refresh on their own.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config.yaml")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newLoginCommand(opts))
	cmd.AddCommand(newLogoutCommand(opts))
	cmd.AddCommand(newColumnsCommand(opts))
	cmd.AddCommand(newTimelineCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newPostCommand(opts))
	cmd.AddCommand(newReactCommand(opts, "fav", "Favourite a status, or remove the favourite"))
	cmd.AddCommand(newReactCommand(opts, "boost", "Boost a status, or remove the boost"))
	cmd.AddCommand(newResetCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadConfig loads the configuration and sets up logging.
func (o *RootOptions) loadConfig(f *OutputFormatter) (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logging.LevelInfo
	}
	if o.Verbose {
		level = logging.LevelDebug
	}
	logging.Init(os.Stderr, level)

	f.VerboseLog("Using data directory %s", cfg.DataDir)
	return cfg, nil
}

// open loads the configuration and opens the App.
func (o *RootOptions) open(f *OutputFormatter, appOpts ...app.Option) (*app.App, error) {
	cfg, err := o.loadConfig(f)
	if err != nil {
		return nil, err
	}
	return o.Open(cfg, appOpts...)
}

// run opens the App, hands it to fn and reports fn's error in the
// configured format.
func (o *RootOptions) run(cmd *cobra.Command, fn func(a *app.App, f *OutputFormatter) error) error {
	return o.runWith(o.formatter(cmd), nil, fn)
}

func (o *RootOptions) runWith(f *OutputFormatter, appOpts []app.Option, fn func(a *app.App, f *OutputFormatter) error) error {
	a, err := o.open(f, appOpts...)
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close()

	if err := fn(a, f); err != nil {
		return f.Fail(err)
	}
	return nil
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	file, ok := r.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// readLine reads one line from r without its line ending.
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
