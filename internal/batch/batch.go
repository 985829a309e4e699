// Package batch runs conversions for a list of images one at a time.
package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"image-converter-go/internal/converter"
	"image-converter-go/internal/history"
	"image-converter-go/internal/statistics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Status is the state of one image in a session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConverting Status = "converting"
	StatusConverted  Status = "converted"
	StatusError      Status = "error"
)

// IsFinished reports whether the item has a recorded result.
func (s Status) IsFinished() bool {
	return s == StatusConverted || s == StatusError
}

// Item is one image queued in a session.
type Item struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Path             string `json:"path"`
	Size             int64  `json:"size"`
	Status           Status `json:"status"`
	Error            string `json:"error,omitempty"`
	OriginalSize     int64  `json:"original_size,omitempty"`
	NewSize          int64  `json:"new_size,omitempty"`
	CompressionRatio string `json:"compression_ratio,omitempty"`
	OutputPath       string `json:"output_path,omitempty"`
}

// Settings are the conversion parameters applied to every item.
type Settings struct {
	Quality         int              `json:"quality"`
	OutputDirectory string           `json:"output_dir"`
	Format          converter.Format `json:"format"`
}

// Session is the mutable state of one conversion workflow: the image list
// and the settings. It is owned by the caller and passed to Runner.Run.
type Session struct {
	mu       sync.RWMutex
	items    []*Item
	settings Settings
}

// NewSession returns an empty session with the given settings.
func NewSession(settings Settings) *Session {
	return &Session{settings: settings}
}

// Add queues paths as pending items and returns copies of the new items.
// Sizes are read from disk where possible.
func (s *Session) Add(paths ...string) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make([]Item, 0, len(paths))
	for _, p := range paths {
		it := &Item{
			ID:     uuid.NewString(),
			Name:   filepath.Base(p),
			Path:   p,
			Status: StatusPending,
		}
		if info, err := os.Stat(p); err == nil {
			it.Size = info.Size()
		}
		s.items = append(s.items, it)
		added = append(added, *it)
	}
	return added
}

// Remove drops the item with id. It reports whether an item was removed.
func (s *Session) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, it := range s.items {
		if it.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAll drops every item.
func (s *Session) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// Settings returns the current settings.
func (s *Session) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings replaces the settings used for items not yet converted.
func (s *Session) UpdateSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// Items returns copies of all items in presentation order.
func (s *Session) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Item, len(s.items))
	for i, it := range s.items {
		out[i] = *it
	}
	return out
}

// pendingIDs returns the ids of pending items in presentation order.
func (s *Session) pendingIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, it := range s.items {
		if it.Status == StatusPending {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// update applies fn to the item with id and returns a copy of the result.
func (s *Session) update(id string, fn func(*Item)) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.items {
		if it.ID == id {
			fn(it)
			return *it, true
		}
	}
	return Item{}, false
}

// HistoryRecorder receives an entry for every successful conversion.
type HistoryRecorder interface {
	Append(item history.Item) error
}

// DirectoryRecorder remembers the last output directory used.
type DirectoryRecorder interface {
	SetLastOutputDirectory(dir string) error
}

// Runner converts the pending items of a session sequentially.
type Runner struct {
	converter converter.Converter
	history   HistoryRecorder
	dirs      DirectoryRecorder
	logger    *logrus.Logger
	onUpdate  func(Item)
	now       func() time.Time
}

// NewRunner returns a Runner converting with conv and recording successes
// in hist.
func NewRunner(conv converter.Converter, hist HistoryRecorder, logger *logrus.Logger) *Runner {
	return &Runner{
		converter: conv,
		history:   hist,
		logger:    logger,
		now:       time.Now,
	}
}

// SetUpdateCallback sets the function called after every status change.
func (r *Runner) SetUpdateCallback(callback func(Item)) {
	r.onUpdate = callback
}

// SetDirectoryRecorder sets where a non-blank output directory is remembered.
func (r *Runner) SetDirectoryRecorder(dirs DirectoryRecorder) {
	r.dirs = dirs
}

// Run converts every pending item in order. Item i+1 starts only after the
// result of item i is recorded. Individual failures never stop the batch.
func (r *Runner) Run(ctx context.Context, session *Session) *statistics.Statistics {
	stats := statistics.NewStatistics()
	ids := session.pendingIDs()
	stats.SetTotalFiles(len(ids))

	settings := session.Settings()
	r.logger.WithFields(logrus.Fields{
		"operation":  "batch",
		"files":      len(ids),
		"format":     settings.Format,
		"quality":    settings.Quality,
		"output_dir": settings.OutputDirectory,
	}).Info("Starting batch conversion")

	if dir := strings.TrimSpace(settings.OutputDirectory); dir != "" && r.dirs != nil {
		if err := r.dirs.SetLastOutputDirectory(dir); err != nil {
			r.logger.WithError(err).Warn("Failed to remember output directory")
		}
	}

	for _, id := range ids {
		r.runOne(ctx, session, id, stats)
	}

	stats.Finalize()
	r.logger.WithFields(logrus.Fields{
		"operation": "batch",
		"converted": stats.FilesConverted,
		"failed":    stats.FilesFailed,
		"duration":  stats.Duration,
	}).Info("Batch conversion finished")
	return stats
}

func (r *Runner) runOne(ctx context.Context, session *Session, id string, stats *statistics.Statistics) {
	item, ok := session.update(id, func(it *Item) { it.Status = StatusConverting })
	if !ok {
		return
	}
	r.notify(item)

	settings := session.Settings()
	res := r.converter.Convert(ctx, converter.Request{
		SourcePath:      item.Path,
		OutputDirectory: settings.OutputDirectory,
		Quality:         settings.Quality,
		Format:          settings.Format,
	})

	if !res.Success {
		stats.AddError(item.Path, "convert", res.Error)
		item, _ = session.update(id, func(it *Item) {
			it.Status = StatusError
			it.Error = res.Error
		})
		r.notify(item)
		return
	}

	stats.AddConverted(res.OriginalSize, res.NewSize)
	item, _ = session.update(id, func(it *Item) {
		it.Status = StatusConverted
		it.OriginalSize = res.OriginalSize
		it.NewSize = res.NewSize
		it.CompressionRatio = res.CompressionRatio
		it.OutputPath = res.OutputPath
	})
	r.notify(item)

	if r.history != nil {
		if err := r.history.Append(history.NewItem(id, res, r.now())); err != nil {
			r.logger.WithError(err).WithField("file", item.Path).Error("Failed to record history")
		}
	}
}

func (r *Runner) notify(item Item) {
	if r.onUpdate != nil {
		r.onUpdate(item)
	}
}
