// Package timeline keeps one column's item sequence fresh by polling its feed.
package timeline

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/kimhsiao/mastofy/internal/errors"
	"github.com/kimhsiao/mastofy/internal/logging"
	"github.com/kimhsiao/mastofy/internal/models"
)

var (
	// ErrRefreshInProgress is returned when a fetch for the column is already
	// in flight. The request is dropped, not queued.
	ErrRefreshInProgress = stderrors.New("refresh already in progress")

	// ErrStopped is returned when Stop was called while the fetch was in
	// flight. Its result was discarded.
	ErrStopped = stderrors.New("synchronizer stopped during refresh")
)

// Fetcher loads the current page of a column's feed.
type Fetcher interface {
	FetchFeed(ctx context.Context, columnType models.ColumnType, options *models.ColumnOptions) ([]models.TimelineItem, error)
}

// Mode selects how fetched items are merged.
type Mode int

const (
	// RefreshFull replaces the sequence with the fetched page.
	RefreshFull Mode = iota
	// RefreshIncremental adds unseen items and keeps everything else.
	RefreshIncremental
)

func (m Mode) String() string {
	if m == RefreshFull {
		return "full"
	}
	return "incremental"
}

// State is the runtime state of one column. It is never persisted.
type State struct {
	Items       []models.TimelineItem
	IsLoading   bool
	LastError   error
	LastRefresh time.Time
}

// Config holds synchronizer configuration.
type Config struct {
	Interval time.Duration // Time between incremental refreshes (default: 10 seconds)
	Timeout  time.Duration // Bound on a single fetch (default: Interval)
}

// DefaultConfig returns default synchronizer configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval: 10 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// Synchronizer owns the item sequence of a single column.
type Synchronizer struct {
	column   models.Column
	fetcher  Fetcher
	interval time.Duration
	timeout  time.Duration
	listener func(State)
	now      func() time.Time

	mu         sync.Mutex
	state      State
	inFlight   bool
	generation uint64
	isRunning  bool
	stopCh     chan struct{}
	wg         sync.WaitGroup

	// notifyMu orders listener calls.
	notifyMu sync.Mutex
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithListener registers a callback invoked with a fresh snapshot after every
// state change. Calls are serialized. The callback may read the synchronizer
// but must not start a refresh synchronously.
func WithListener(fn func(State)) Option {
	return func(s *Synchronizer) {
		s.listener = fn
	}
}

// WithClock replaces the time source used for LastRefresh.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// NewSynchronizer creates a Synchronizer for column.
func NewSynchronizer(column models.Column, fetcher Fetcher, config *Config, opts ...Option) *Synchronizer {
	if config == nil {
		config = DefaultConfig()
	}
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = interval
	}

	s := &Synchronizer{
		column:   column,
		fetcher:  fetcher,
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Column returns the column this synchronizer serves.
func (s *Synchronizer) Column() models.Column {
	return s.column
}

// Start performs a full refresh and then refreshes incrementally every
// interval until Stop is called or ctx is done. Calling Start on a running
// synchronizer does nothing.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.pollLoop(ctx, stopCh)

	logging.Debug("Column synchronizer started", map[string]interface{}{
		"column_id": s.column.ID,
		"interval":  s.interval.String(),
	})
}

// Stop cancels the refresh cycle and waits for the loop to exit. A fetch
// still in flight completes but its result is discarded. That fetch keeps
// the column busy until it returns, so a restarted cycle never overlaps it.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.generation++
	s.state.IsLoading = false
	stopCh := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()

	close(stopCh)
	s.wg.Wait()
	s.publish()

	logging.Debug("Column synchronizer stopped", map[string]interface{}{"column_id": s.column.ID})
}

// IsRunning returns whether the refresh cycle is active.
func (s *Synchronizer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// pollLoop runs the initial full refresh and the periodic incremental ones.
func (s *Synchronizer) pollLoop(ctx context.Context, stopCh chan struct{}) {
	defer s.wg.Done()

	go s.runRefresh(ctx, RefreshFull)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			busy := s.inFlight
			s.mu.Unlock()

			if busy {
				logging.Debug("Refresh already in progress, skipping tick",
					map[string]interface{}{"column_id": s.column.ID})
				continue
			}

			go s.runRefresh(ctx, RefreshIncremental)
		}
	}
}

// runRefresh is the background form of Refresh; errors are already recorded
// in the state.
func (s *Synchronizer) runRefresh(ctx context.Context, mode Mode) {
	if err := s.Refresh(ctx, mode); stderrors.Is(err, ErrRefreshInProgress) {
		logging.Debug("Refresh already in progress, skipping",
			map[string]interface{}{"column_id": s.column.ID})
	}
}

// Refresh fetches the column's feed once and merges the result. It returns
// ErrRefreshInProgress without fetching when another fetch is in flight.
// A failed fetch leaves the items untouched and is recorded in LastError.
func (s *Synchronizer) Refresh(ctx context.Context, mode Mode) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrRefreshInProgress
	}
	s.inFlight = true
	s.state.IsLoading = true
	generation := s.generation
	s.mu.Unlock()
	s.publish()

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	fetched, err := s.fetcher.FetchFeed(fetchCtx, s.column.Type, s.column.Options)
	if err != nil {
		var appErr *errors.AppError
		if !stderrors.As(err, &appErr) {
			err = errors.Remote("failed to refresh column", err)
		}
	}

	s.mu.Lock()
	// Only the fetch that set inFlight clears it.
	s.inFlight = false
	if generation != s.generation {
		s.mu.Unlock()
		logging.Debug("Discarding refresh result after stop",
			map[string]interface{}{"column_id": s.column.ID})
		return ErrStopped
	}

	s.state.IsLoading = false

	if err != nil {
		s.state.LastError = err
		s.mu.Unlock()
		s.publish()

		logging.ErrorWithCode("Column refresh failed", string(errors.CodeOf(err)), err,
			map[string]interface{}{"column_id": s.column.ID, "mode": mode.String()})
		return err
	}

	var added int
	if mode == RefreshFull {
		s.state.Items = MergeFull(fetched)
		added = len(s.state.Items)
	} else {
		s.state.Items, added = MergeIncremental(s.state.Items, fetched)
	}
	s.state.LastError = nil
	s.state.LastRefresh = s.now()
	total := len(s.state.Items)
	s.mu.Unlock()
	s.publish()

	logging.Debug("Column refreshed", map[string]interface{}{
		"column_id":   s.column.ID,
		"mode":        mode.String(),
		"added":       added,
		"total":       total,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return nil
}

// ApplyMutation replaces every occurrence of status statusID with the
// server-confirmed result and reports whether any item matched.
func (s *Synchronizer) ApplyMutation(statusID string, result *models.Status) bool {
	s.mu.Lock()
	items, replaced := ReplaceStatus(s.state.Items, statusID, result)
	if replaced {
		s.state.Items = items
	}
	s.mu.Unlock()

	if replaced {
		s.publish()
	}
	return replaced
}

// PrependLocal puts item at the front of the sequence without a fetch.
func (s *Synchronizer) PrependLocal(item models.TimelineItem) {
	s.mu.Lock()
	s.state.Items = PrependItem(s.state.Items, item)
	s.mu.Unlock()
	s.publish()
}

// Snapshot returns a copy of the current state. Items must be treated as
// read-only.
func (s *Synchronizer) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.state
	snap.Items = append([]models.TimelineItem(nil), s.state.Items...)
	return snap
}

func (s *Synchronizer) publish() {
	if s.listener == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.listener(s.Snapshot())
}
