package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/mastofy/internal/app"
	"github.com/kimhsiao/mastofy/internal/compose"
	"github.com/kimhsiao/mastofy/internal/models"
)

func newPostCommand(opts *RootOptions) *cobra.Command {
	var media []string

	cmd := &cobra.Command{
		Use:   "post <text>...",
		Short: "Publish a status",
		Long: `Publish a public status. Images given with --media are downscaled to the
configured maximum dimension and uploaded before posting; up to 4 files
may be attached.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(a *app.App, f *OutputFormatter) error {
				files, err := readMediaFiles(media)
				if err != nil {
					return err
				}

				c := a.Composer
				c.SetContent(strings.Join(args, " "))
				if _, err := c.AttachMedia(cmd.Context(), files...); err != nil {
					return err
				}
				f.VerboseLog("Attached %d file(s)", len(files))

				status, err := c.Submit(cmd.Context())
				if err != nil {
					return err
				}
				return f.Success("Posted "+status.ID, status)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&media, "media", "m", nil, "image or video to attach (repeatable)")
	return cmd
}

func readMediaFiles(paths []string) ([]models.MediaFile, error) {
	if len(paths) > compose.MaxMedia {
		return nil, NewExitError(ExitCommandError, "too many media files")
	}

	files := make([]models.MediaFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read "+p, err)
		}
		files = append(files, models.MediaFile{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}
