package cli

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/mastofy/internal/app"
	"github.com/kimhsiao/mastofy/internal/errors"
	"github.com/kimhsiao/mastofy/internal/layout"
	"github.com/kimhsiao/mastofy/internal/models"
)

func newColumnsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "columns",
		Short: "Manage the column layout",
	}

	cmd.AddCommand(newColumnsListCommand(opts))
	cmd.AddCommand(newColumnsAddCommand(opts))
	cmd.AddCommand(newColumnsRemoveCommand(opts))
	cmd.AddCommand(newColumnsMoveCommand(opts))
	cmd.AddCommand(newColumnsPinCommand(opts))
	return cmd
}

func newColumnsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List columns in display order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(a *app.App, f *OutputFormatter) error {
				columns := a.Layout.Columns()
				if f.JSON() {
					return f.Success("", columnViews(columns))
				}

				tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "#\tID\tTYPE\tTITLE\tPINNED")
				for i, c := range columns {
					pinned := ""
					if c.Pinned {
						pinned = "yes"
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, c.ID, c.Type, c.Title, pinned)
				}
				return tw.Flush()
			})
		},
	}
}

func newColumnsAddCommand(opts *RootOptions) *cobra.Command {
	var spec layout.ColumnSpec

	cmd := &cobra.Command{
		Use:   "add <type>",
		Short: "Add a column (home, local, public, notifications, hashtag)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Type = models.ColumnType(strings.ToLower(args[0]))
			return opts.run(cmd, func(a *app.App, f *OutputFormatter) error {
				column, err := a.Deck.AddColumn(spec)
				if err != nil {
					return err
				}
				return f.Success(fmt.Sprintf("Added column %q (%s)", column.Title, column.ID), columnViews([]models.Column{column})[0])
			})
		},
	}

	cmd.Flags().StringVar(&spec.Hashtag, "hashtag", "", "tag to follow (hashtag columns)")
	cmd.Flags().StringVar(&spec.Title, "title", "", "column title")
	return cmd
}

func newColumnsRemoveCommand(opts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "remove <column>",
		Aliases: []string{"rm"},
		Short:   "Remove a column",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(a *app.App, f *OutputFormatter) error {
				column, err := resolveColumn(a, args[0])
				if err != nil {
					return err
				}

				if !yes {
					in := cmd.InOrStdin()
					if !isTerminal(in) {
						return NewExitError(ExitCommandError, "refusing to remove a column without --yes")
					}
					f.Prompt("Remove column %q? [y/N] ", column.Title)
					answer, err := readLine(in)
					if err != nil {
						return WrapExitError(ExitCommandError, "failed to read answer", err)
					}
					if reply := strings.ToLower(answer); reply != "y" && reply != "yes" {
						return f.Success("Cancelled", map[string]bool{"removed": false})
					}
				}

				if err := a.Deck.RemoveColumn(column.ID); err != nil {
					return err
				}
				return f.Success(fmt.Sprintf("Removed column %q", column.Title), map[string]interface{}{
					"removed": true,
					"id":      column.ID,
				})
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newColumnsMoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <from> <to>",
		Short: "Move the column at position <from> to position <to> (1-based)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, errFrom := strconv.Atoi(args[0])
			to, errTo := strconv.Atoi(args[1])
			if errFrom != nil || errTo != nil {
				return opts.formatter(cmd).Fail(NewExitError(ExitCommandError, "positions must be numbers"))
			}

			return opts.run(cmd, func(a *app.App, f *OutputFormatter) error {
				moved, err := a.Deck.MoveColumn(from-1, to-1)
				if err != nil {
					return err
				}
				if !moved {
					return errors.New(errors.ErrValidation,
						fmt.Sprintf("positions must be between 1 and %d", a.Layout.Len()))
				}
				return f.Success(fmt.Sprintf("Moved column %d to %d", from, to), columnViews(a.Layout.Columns()))
			})
		},
	}
}

func newColumnsPinCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pin <column>",
		Short: "Pin or unpin a column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(a *app.App, f *OutputFormatter) error {
				column, err := resolveColumn(a, args[0])
				if err != nil {
					return err
				}
				pinned, err := a.Deck.TogglePin(column.ID)
				if err != nil {
					return err
				}

				verb := "Unpinned"
				if pinned {
					verb = "Pinned"
				}
				return f.Success(fmt.Sprintf("%s column %q", verb, column.Title), map[string]interface{}{
					"id":     column.ID,
					"pinned": pinned,
				})
			})
		},
	}
}

// columnView is the JSON form of a column, pin included.
type columnView struct {
	ID      string            `json:"id"`
	Type    models.ColumnType `json:"type"`
	Title   string            `json:"title"`
	Hashtag string            `json:"hashtag,omitempty"`
	Pinned  bool              `json:"pinned"`
}

func columnViews(columns []models.Column) []columnView {
	views := make([]columnView, len(columns))
	for i, c := range columns {
		views[i] = columnView{
			ID:      c.ID,
			Type:    c.Type,
			Title:   c.Title,
			Hashtag: c.Options.HashtagOf(),
			Pinned:  c.Pinned,
		}
	}
	return views
}

// resolveColumn finds a column by id or by 1-based position.
func resolveColumn(a *app.App, ref string) (models.Column, error) {
	if column, ok := a.Layout.Column(ref); ok {
		return column, nil
	}
	if n, err := strconv.Atoi(ref); err == nil {
		columns := a.Layout.Columns()
		if n >= 1 && n <= len(columns) {
			return columns[n-1], nil
		}
	}
	return models.Column{}, errors.New(errors.ErrNotFound, "column not found: "+ref)
}
