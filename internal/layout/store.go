// Package layout persists the ordered list of columns and their pin flags.
package layout

import (
	"encoding/json"
	"sync"

	"github.com/kimhsiao/mastofy/internal/errors"
	"github.com/kimhsiao/mastofy/internal/kv"
	"github.com/kimhsiao/mastofy/internal/logging"
	"github.com/kimhsiao/mastofy/internal/models"
	"github.com/kimhsiao/mastofy/internal/uuid"
)

const (
	// ColumnsKey stores the ordered column list as JSON.
	ColumnsKey = "mastofy_columns"
	// PinKeyPrefix + column id stores "true" for pinned columns.
	PinKeyPrefix = "mastofy_column_pinned_"
)

// PinKey returns the storage key of a column's pin flag.
func PinKey(columnID string) string {
	return PinKeyPrefix + columnID
}

// ColumnSpec describes a column to add.
type ColumnSpec struct {
	Type    models.ColumnType
	Title   string
	Hashtag string
}

// Store keeps the column layout in memory and writes every change through to
// the key-value store before returning.
type Store struct {
	kv    kv.Store
	newID func() string

	mu      sync.RWMutex
	columns []models.Column
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the column id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// StarterColumns returns the layout used when nothing has been persisted.
func StarterColumns(newID func() string) []models.Column {
	return []models.Column{
		{ID: newID(), Type: models.ColumnHome, Title: models.ColumnHome.DefaultTitle()},
		{ID: newID(), Type: models.ColumnNotifications, Title: models.ColumnNotifications.DefaultTitle()},
	}
}

// Open loads the persisted layout, writing the starter set when none exists.
func Open(store kv.Store, opts ...Option) (*Store, error) {
	s := &Store{kv: store, newID: uuid.New}
	for _, opt := range opts {
		opt(s)
	}

	raw, ok, err := store.Get(ColumnsKey)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorage, "failed to load column layout", err)
	}

	if ok {
		var columns []models.Column
		err := json.Unmarshal([]byte(raw), &columns)
		if err == nil {
			s.columns = columns
			return s, nil
		}
		logging.Warn("Replacing unreadable column layout with starter set",
			map[string]interface{}{"error": err.Error()})
	}

	starter := StarterColumns(s.newID)
	if err := s.persist(starter); err != nil {
		return nil, err
	}
	s.columns = starter
	return s, nil
}

// persist writes the whole column list.
func (s *Store) persist(columns []models.Column) error {
	if columns == nil {
		columns = []models.Column{}
	}
	data, err := json.Marshal(columns)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to encode column layout", err)
	}
	if err := s.kv.Set(ColumnsKey, string(data)); err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to save column layout", err)
	}
	return nil
}

// isPinned reads a pin flag; a storage failure reads as unpinned.
func (s *Store) isPinned(id string) bool {
	v, ok, err := s.kv.Get(PinKey(id))
	if err != nil {
		logging.Error("Failed to read pin flag", err, map[string]interface{}{"column_id": id})
		return false
	}
	return ok && v == "true"
}

// Columns returns a copy of the layout with pin flags filled in.
func (s *Store) Columns() []models.Column {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Column, len(s.columns))
	for i, c := range s.columns {
		out[i] = c
		if c.Options != nil {
			opts := *c.Options
			out[i].Options = &opts
		}
		out[i].Pinned = s.isPinned(c.ID)
	}
	return out
}

// Column returns the column with the given id.
func (s *Store) Column(id string) (models.Column, bool) {
	for _, c := range s.Columns() {
		if c.ID == id {
			return c, true
		}
	}
	return models.Column{}, false
}

// Len returns the number of columns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.columns)
}

// AddColumn validates spec and appends a new column with a fresh id.
func (s *Store) AddColumn(spec ColumnSpec) (models.Column, error) {
	if !spec.Type.Valid() {
		return models.Column{}, errors.New(errors.ErrValidation, "unknown column type: "+string(spec.Type))
	}

	column := models.Column{Type: spec.Type, Title: spec.Title}
	if spec.Type == models.ColumnHashtag {
		tag := models.NormalizeHashtag(spec.Hashtag)
		if tag == "" {
			return models.Column{}, errors.New(errors.ErrValidation, "hashtag columns require a hashtag")
		}
		column.Options = &models.ColumnOptions{Hashtag: tag}
		if column.Title == "" {
			column.Title = "#" + tag
		}
	}
	if column.Title == "" {
		column.Title = spec.Type.DefaultTitle()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	column.ID = s.newID()
	next := append(append([]models.Column(nil), s.columns...), column)
	if err := s.persist(next); err != nil {
		return models.Column{}, err
	}
	s.columns = next

	logging.Info("Column added", map[string]interface{}{"column_id": column.ID, "type": string(column.Type)})
	return column, nil
}

// RemoveColumn deletes a column and its pin flag.
func (s *Store) RemoveColumn(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexOf(id)
	if index < 0 {
		return errors.New(errors.ErrNotFound, "column not found: "+id)
	}

	// The pin flag goes first so a failure leaves the column in place.
	pinned := s.isPinned(id)
	if err := s.kv.Remove(PinKey(id)); err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to clear pin flag", err)
	}

	next := make([]models.Column, 0, len(s.columns)-1)
	next = append(next, s.columns[:index]...)
	next = append(next, s.columns[index+1:]...)
	if err := s.persist(next); err != nil {
		if pinned {
			if restoreErr := s.kv.Set(PinKey(id), "true"); restoreErr != nil {
				logging.Error("Failed to restore pin flag", restoreErr, map[string]interface{}{"column_id": id})
			}
		}
		return err
	}
	s.columns = next

	logging.Info("Column removed", map[string]interface{}{"column_id": id})
	return nil
}

// MoveColumn moves the column at from to index to, shifting the columns in
// between. Out-of-range indices leave the layout unchanged and return false.
func (s *Store) MoveColumn(from, to int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.columns)
	if from < 0 || from >= n || to < 0 || to >= n {
		return false, nil
	}
	if from == to {
		return true, nil
	}

	next := append([]models.Column(nil), s.columns...)
	moved := next[from]
	next = append(next[:from], next[from+1:]...)
	next = append(next[:to], append([]models.Column{moved}, next[to:]...)...)

	if err := s.persist(next); err != nil {
		return false, err
	}
	s.columns = next
	return true, nil
}

// TogglePin flips a column's pin flag and returns the new value.
func (s *Store) TogglePin(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) < 0 {
		return false, errors.New(errors.ErrNotFound, "column not found: "+id)
	}

	pinned := !s.isPinned(id)
	var err error
	if pinned {
		err = s.kv.Set(PinKey(id), "true")
	} else {
		err = s.kv.Remove(PinKey(id))
	}
	if err != nil {
		return !pinned, errors.Wrap(errors.ErrStorage, "failed to save pin flag", err)
	}
	return pinned, nil
}

// IsPinned reports a column's pin flag.
func (s *Store) IsPinned(id string) bool {
	return s.isPinned(id)
}

func (s *Store) indexOf(id string) int {
	for i, c := range s.columns {
		if c.ID == id {
			return i
		}
	}
	return -1
}
