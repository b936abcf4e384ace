package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/mastofy/internal/app"
	"github.com/kimhsiao/mastofy/internal/models"
)

// newReactCommand builds fav or boost. Both load the column first so the
// current flag decides between adding and removing the reaction.
func newReactCommand(opts *RootOptions, name, short string) *cobra.Command {
	var columnRef string

	cmd := &cobra.Command{
		Use:   name + " <status-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(a *app.App, f *OutputFormatter) error {
				column, err := resolveColumn(a, columnRef)
				if err != nil {
					return err
				}
				if _, err := loadColumn(cmd.Context(), a, column); err != nil {
					return err
				}

				toggle := a.Deck.ToggleFavourite
				if name == "boost" {
					toggle = a.Deck.ToggleBoost
				}
				status, err := toggle(cmd.Context(), column.ID, args[0])
				if err != nil {
					return err
				}
				return f.Success(reactionSummary(name, status), status)
			})
		},
	}

	cmd.Flags().StringVar(&columnRef, "column", "1", "column holding the status (id or position)")
	return cmd
}

func reactionSummary(name string, s *models.Status) string {
	if name == "boost" {
		if s.Reblogged {
			return fmt.Sprintf("Boosted %s (%d boosts)", s.ID, s.ReblogsCount)
		}
		return fmt.Sprintf("Removed boost from %s (%d boosts)", s.ID, s.ReblogsCount)
	}
	if s.Favourited {
		return fmt.Sprintf("Favourited %s (%d favourites)", s.ID, s.FavouritesCount)
	}
	return fmt.Sprintf("Removed favourite from %s (%d favourites)", s.ID, s.FavouritesCount)
}
