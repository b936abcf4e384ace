package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/mastofy/internal/app"
	"github.com/kimhsiao/mastofy/internal/errors"
	"github.com/kimhsiao/mastofy/internal/models"
	"github.com/kimhsiao/mastofy/internal/render"
	"github.com/kimhsiao/mastofy/internal/timeline"
)

func newTimelineCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "timeline [column]",
		Short: "Fetch and print a column once",
		Long: `Fetch the feed of a column and print it newest first. The column is
given by id or 1-based position and defaults to the first column.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(a *app.App, f *OutputFormatter) error {
				ref := "1"
				if len(args) == 1 {
					ref = args[0]
				}
				column, err := resolveColumn(a, ref)
				if err != nil {
					return err
				}

				items, err := loadColumn(cmd.Context(), a, column)
				if err != nil {
					return err
				}
				if limit > 0 && len(items) > limit {
					items = items[:limit]
				}

				if f.JSON() {
					return f.Success("", items)
				}
				fmt.Fprintf(f.Writer, "== %s ==\n\n", column.Title)
				if len(items) == 0 {
					fmt.Fprintln(f.Writer, "(empty)")
					return nil
				}
				return render.Items(f.Writer, items)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "print at most n items")
	return cmd
}

// loadColumn runs a full refresh of column and returns its items.
func loadColumn(ctx context.Context, a *app.App, column models.Column) ([]models.TimelineItem, error) {
	if err := a.Deck.Refresh(ctx, column.ID, timeline.RefreshFull); err != nil {
		return nil, err
	}
	state, err := a.Deck.State(column.ID)
	if err != nil {
		return nil, err
	}
	return state.Items, nil
}

// watchEvent is one JSON line of watch output.
type watchEvent struct {
	ColumnID string                `json:"columnId"`
	Title    string                `json:"title"`
	Items    []models.TimelineItem `json:"items"`
}

// watcher prints items as they first appear in each column.
type watcher struct {
	f *OutputFormatter

	mu      sync.Mutex
	columns map[string]models.Column
	seen    map[string]map[string]bool
	lastErr map[string]string
	printed int
}

func newWatcher(f *OutputFormatter) *watcher {
	return &watcher{
		f:       f,
		columns: make(map[string]models.Column),
		seen:    make(map[string]map[string]bool),
		lastErr: make(map[string]string),
	}
}

func (w *watcher) watch(column models.Column) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.columns[column.ID] = column
	w.seen[column.ID] = make(map[string]bool)
}

func (w *watcher) update(columnID string, state timeline.State) {
	w.mu.Lock()
	defer w.mu.Unlock()

	column, ok := w.columns[columnID]
	if !ok {
		return
	}

	if state.LastError != nil {
		msg := errors.MessageOf(state.LastError)
		if msg != w.lastErr[columnID] {
			w.lastErr[columnID] = msg
			w.f.writeError(string(errors.CodeOf(state.LastError)), column.Title+": "+msg)
		}
		return
	}
	delete(w.lastErr, columnID)

	// Items arrive newest first; print the unseen ones oldest first.
	seen := w.seen[columnID]
	var fresh []models.TimelineItem
	for i := len(state.Items) - 1; i >= 0; i-- {
		item := state.Items[i]
		if seen[item.ID()] {
			continue
		}
		seen[item.ID()] = true
		fresh = append(fresh, item)
	}
	if len(fresh) == 0 {
		return
	}
	w.printed += len(fresh)

	if w.f.JSON() {
		_ = w.f.Success("", watchEvent{ColumnID: columnID, Title: column.Title, Items: fresh})
		return
	}
	fmt.Fprintf(w.f.Writer, "== %s ==\n\n", column.Title)
	_ = render.Items(w.f.Writer, fresh)
	fmt.Fprintln(w.f.Writer)
}

func (w *watcher) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.printed
}

func newWatchCommand(opts *RootOptions) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch [column...]",
		Short: "Follow columns and print new items as they arrive",
		Long: `Refresh every column on the configured poll interval and print items the
first time they appear. Without arguments all columns are followed.
Runs until interrupted or until --duration elapses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			w := newWatcher(f)

			return opts.runWith(f, []app.Option{app.WithDeckListener(w.update)}, func(a *app.App, f *OutputFormatter) error {
				if len(args) == 0 {
					for _, column := range a.Layout.Columns() {
						w.watch(column)
					}
				}
				for _, ref := range args {
					column, err := resolveColumn(a, ref)
					if err != nil {
						return err
					}
					w.watch(column)
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				if duration > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, duration)
					defer cancel()
				}

				f.VerboseLog("Watching %d column(s) every %s", len(w.columns), a.Config.PollInterval)
				a.Deck.Start(ctx)
				<-ctx.Done()
				a.Deck.Stop()

				n := w.total()
				return f.Success(fmt.Sprintf("Stopped after %d item(s)", n), map[string]int{"items": n})
			})
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}
