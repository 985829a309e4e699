// Package history keeps the capacity-bounded log of successful conversions.
package history

import (
	"fmt"
	"sync"
	"time"

	"image-converter-go/internal/converter"
)

// MaxItems is the number of entries kept; older entries are dropped.
const MaxItems = 100

// StoreKey is the key the sequence is persisted under.
const StoreKey = "conversion_history"

// TimestampFormat is ISO-8601 in UTC with milliseconds.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Item is one successful conversion. Items are never modified once created.
type Item struct {
	ID               string `json:"id" mapstructure:"id"`
	OriginalPath     string `json:"original_path" mapstructure:"original_path"`
	OutputPath       string `json:"output_path" mapstructure:"output_path"`
	OriginalSize     int64  `json:"original_size" mapstructure:"original_size"`
	NewSize          int64  `json:"new_size" mapstructure:"new_size"`
	CompressionRatio string `json:"compression_ratio" mapstructure:"compression_ratio"`
	Timestamp        string `json:"timestamp" mapstructure:"timestamp"`
}

// NewItem builds a history entry from a successful result.
func NewItem(id string, res converter.Result, at time.Time) Item {
	return Item{
		ID:               id,
		OriginalPath:     res.OriginalPath,
		OutputPath:       res.OutputPath,
		OriginalSize:     res.OriginalSize,
		NewSize:          res.NewSize,
		CompressionRatio: res.CompressionRatio,
		Timestamp:        at.UTC().Format(TimestampFormat),
	}
}

// KeyValue is the durable record the history is persisted to.
type KeyValue interface {
	UnmarshalKey(key string, out any) error
	Set(key string, value any)
	Save() error
}

// Store is the ordered, most-recent-first history.
type Store struct {
	mu    sync.RWMutex
	kv    KeyValue
	items []Item
}

// Open loads the persisted history from kv.
func Open(kv KeyValue) (*Store, error) {
	var items []Item
	if err := kv.UnmarshalKey(StoreKey, &items); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(items) > MaxItems {
		items = items[:MaxItems]
	}
	return &Store{kv: kv, items: items}, nil
}

// Append inserts item at the head and trims the history to MaxItems.
func (s *Store) Append(item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]Item, 0, min(len(s.items)+1, MaxItems))
	items = append(items, item)
	items = append(items, s.items...)
	if len(items) > MaxItems {
		items = items[:MaxItems]
	}
	s.items = items

	return s.persist()
}

// List returns the history, most recent first. It is never nil.
func (s *Store) List() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clear removes every entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = []Item{}
	return s.persist()
}

func (s *Store) persist() error {
	s.kv.Set(StoreKey, s.items)
	if err := s.kv.Save(); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}
