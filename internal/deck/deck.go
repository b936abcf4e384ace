// Package deck runs one timeline synchronizer per layout column and routes
// reactions back into every column that shows the affected status.
package deck

import (
	"context"
	"sync"

	"github.com/kimhsiao/mastofy/internal/errors"
	"github.com/kimhsiao/mastofy/internal/layout"
	"github.com/kimhsiao/mastofy/internal/logging"
	"github.com/kimhsiao/mastofy/internal/models"
	"github.com/kimhsiao/mastofy/internal/timeline"
)

// Gateway is the part of the server API the deck needs.
type Gateway interface {
	timeline.Fetcher
	Favourite(ctx context.Context, statusID string) (*models.Status, error)
	Unfavourite(ctx context.Context, statusID string) (*models.Status, error)
	Reblog(ctx context.Context, statusID string) (*models.Status, error)
	Unreblog(ctx context.Context, statusID string) (*models.Status, error)
}

// Listener receives the new state of a column after every change.
type Listener func(columnID string, state timeline.State)

// Deck coordinates the columns of one layout.
type Deck struct {
	layout   *layout.Store
	gateway  Gateway
	config   *timeline.Config
	listener Listener

	mu      sync.RWMutex
	syncs   map[string]*timeline.Synchronizer
	running bool
	ctx     context.Context
}

// Option configures a Deck.
type Option func(*Deck)

// WithListener registers a callback for column state changes.
func WithListener(fn Listener) Option {
	return func(d *Deck) {
		d.listener = fn
	}
}

// New creates a Deck with a synchronizer for every column in store.
func New(store *layout.Store, gateway Gateway, config *timeline.Config, opts ...Option) *Deck {
	d := &Deck{
		layout:  store,
		gateway: gateway,
		config:  config,
		syncs:   make(map[string]*timeline.Synchronizer),
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, column := range store.Columns() {
		d.syncs[column.ID] = d.newSynchronizer(column)
	}
	return d
}

func (d *Deck) newSynchronizer(column models.Column) *timeline.Synchronizer {
	var opts []timeline.Option
	if d.listener != nil {
		id := column.ID
		opts = append(opts, timeline.WithListener(func(state timeline.State) {
			d.listener(id, state)
		}))
	}
	return timeline.NewSynchronizer(column, d.gateway, d.config, opts...)
}

// Start begins polling every column. Columns added later start immediately.
func (d *Deck) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.ctx = ctx
	syncs := d.synchronizers()
	d.mu.Unlock()

	for _, s := range syncs {
		s.Start(ctx)
	}
	logging.Info("Deck started", map[string]interface{}{"columns": len(syncs)})
}

// Stop halts polling in every column.
func (d *Deck) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.ctx = nil
	syncs := d.synchronizers()
	d.mu.Unlock()

	for _, s := range syncs {
		s.Stop()
	}
	logging.Info("Deck stopped", nil)
}

// synchronizers lists the synchronizers in layout order. Callers hold mu.
func (d *Deck) synchronizers() []*timeline.Synchronizer {
	columns := d.layout.Columns()
	out := make([]*timeline.Synchronizer, 0, len(columns))
	for _, c := range columns {
		if s, ok := d.syncs[c.ID]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (d *Deck) synchronizer(columnID string) (*timeline.Synchronizer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.syncs[columnID]
	if !ok {
		return nil, errors.New(errors.ErrNotFound, "column not found: "+columnID)
	}
	return s, nil
}

// Columns returns the layout with pin flags.
func (d *Deck) Columns() []models.Column {
	return d.layout.Columns()
}

// AddColumn adds a column to the layout and starts it if the deck runs.
func (d *Deck) AddColumn(spec layout.ColumnSpec) (models.Column, error) {
	column, err := d.layout.AddColumn(spec)
	if err != nil {
		return models.Column{}, err
	}

	s := d.newSynchronizer(column)
	d.mu.Lock()
	d.syncs[column.ID] = s
	running, ctx := d.running, d.ctx
	d.mu.Unlock()

	if running {
		s.Start(ctx)
	}
	return column, nil
}

// RemoveColumn stops the column's synchronizer and deletes the column.
func (d *Deck) RemoveColumn(columnID string) error {
	if err := d.layout.RemoveColumn(columnID); err != nil {
		return err
	}

	d.mu.Lock()
	s := d.syncs[columnID]
	delete(d.syncs, columnID)
	d.mu.Unlock()

	if s != nil {
		s.Stop()
	}
	return nil
}

// MoveColumn reorders the layout.
func (d *Deck) MoveColumn(from, to int) (bool, error) {
	return d.layout.MoveColumn(from, to)
}

// TogglePin flips a column's pin flag.
func (d *Deck) TogglePin(columnID string) (bool, error) {
	return d.layout.TogglePin(columnID)
}

// State returns a snapshot of a column's runtime state.
func (d *Deck) State(columnID string) (timeline.State, error) {
	s, err := d.synchronizer(columnID)
	if err != nil {
		return timeline.State{}, err
	}
	return s.Snapshot(), nil
}

// Refresh refreshes one column now.
func (d *Deck) Refresh(ctx context.Context, columnID string, mode timeline.Mode) error {
	s, err := d.synchronizer(columnID)
	if err != nil {
		return err
	}
	return s.Refresh(ctx, mode)
}

// ToggleFavourite favourites the status of an item, or removes the favourite
// when it is already set, and applies the server's answer everywhere.
func (d *Deck) ToggleFavourite(ctx context.Context, columnID, itemID string) (*models.Status, error) {
	target, err := d.target(columnID, itemID)
	if err != nil {
		return nil, err
	}

	action := d.gateway.Favourite
	if target.Favourited {
		action = d.gateway.Unfavourite
	}
	return d.react(ctx, target, action)
}

// ToggleBoost boosts the status of an item, or removes the boost.
func (d *Deck) ToggleBoost(ctx context.Context, columnID, itemID string) (*models.Status, error) {
	target, err := d.target(columnID, itemID)
	if err != nil {
		return nil, err
	}

	action := d.gateway.Reblog
	if target.Reblogged {
		action = d.gateway.Unreblog
	}
	return d.react(ctx, target, action)
}

// target finds the status a reaction on itemID applies to. For a boost the
// boosted status is the target. itemID may name the item or that status.
func (d *Deck) target(columnID, itemID string) (*models.Status, error) {
	s, err := d.synchronizer(columnID)
	if err != nil {
		return nil, err
	}

	for _, item := range s.Snapshot().Items {
		target := item.TargetStatus()
		if target != nil && target.ReblogOf != nil {
			target = target.ReblogOf
		}
		if item.ID() != itemID && (target == nil || target.ID != itemID) {
			continue
		}
		if target == nil {
			return nil, errors.New(errors.ErrValidation, "item has no status to react to")
		}
		return target, nil
	}
	return nil, errors.New(errors.ErrNotFound, "item not found: "+itemID)
}

func (d *Deck) react(ctx context.Context, target *models.Status, action func(context.Context, string) (*models.Status, error)) (*models.Status, error) {
	result, err := action(ctx, target.ID)
	if err != nil {
		logging.ErrorWithCode("Reaction failed", string(errors.CodeOf(err)), err,
			map[string]interface{}{"status_id": target.ID})
		return nil, err
	}

	d.mu.RLock()
	syncs := make([]*timeline.Synchronizer, 0, len(d.syncs))
	for _, s := range d.syncs {
		syncs = append(syncs, s)
	}
	d.mu.RUnlock()

	applied := 0
	for _, s := range syncs {
		if s.ApplyMutation(target.ID, result) {
			applied++
		}
	}
	logging.Debug("Reaction applied", map[string]interface{}{"status_id": target.ID, "columns": applied})
	return result, nil
}

// PrependLocal shows a status the user just posted at the top of every home
// column without waiting for the next refresh.
func (d *Deck) PrependLocal(status *models.Status) {
	if status == nil {
		return
	}

	d.mu.RLock()
	var homes []*timeline.Synchronizer
	for _, s := range d.syncs {
		if s.Column().Type == models.ColumnHome {
			homes = append(homes, s)
		}
	}
	d.mu.RUnlock()

	for _, s := range homes {
		s.PrependLocal(models.StatusItem(status.Clone()))
	}
}
