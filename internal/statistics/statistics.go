package statistics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains counters for one conversion batch.
type Statistics struct {
	TotalFiles     int64
	FilesConverted int64
	FilesFailed    int64

	BytesOriginal  int64
	BytesConverted int64

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Errors []StatError

	mutex sync.RWMutex
}

// StatError represents a file that failed to convert.
type StatError struct {
	FilePath  string    `json:"file_path"`
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a copy of the counters safe to serialise.
type Snapshot struct {
	TotalFiles     int64   `json:"total_files"`
	FilesConverted int64   `json:"files_converted"`
	FilesFailed    int64   `json:"files_failed"`
	BytesOriginal  int64   `json:"bytes_original"`
	BytesConverted int64   `json:"bytes_converted"`
	SavedPercent   float64 `json:"saved_percent"`
	Duration       string  `json:"duration"`
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
		Errors:    make([]StatError, 0),
	}
}

// SetTotalFiles records how many files the batch will process.
func (s *Statistics) SetTotalFiles(n int) {
	atomic.StoreInt64(&s.TotalFiles, int64(n))
}

// AddConverted records a successful conversion and its sizes.
func (s *Statistics) AddConverted(originalSize, newSize int64) {
	atomic.AddInt64(&s.FilesConverted, 1)
	atomic.AddInt64(&s.BytesOriginal, originalSize)
	atomic.AddInt64(&s.BytesConverted, newSize)
}

// AddError records a failed conversion.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	atomic.AddInt64(&s.FilesFailed, 1)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize stamps the end time and duration.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// SavedPercent returns the overall size reduction across converted files.
func (s *Statistics) SavedPercent() float64 {
	original := atomic.LoadInt64(&s.BytesOriginal)
	if original == 0 {
		return 0
	}
	return (1 - float64(atomic.LoadInt64(&s.BytesConverted))/float64(original)) * 100
}

// Snapshot returns a copy of the counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mutex.RLock()
	duration := s.Duration
	s.mutex.RUnlock()

	return Snapshot{
		TotalFiles:     atomic.LoadInt64(&s.TotalFiles),
		FilesConverted: atomic.LoadInt64(&s.FilesConverted),
		FilesFailed:    atomic.LoadInt64(&s.FilesFailed),
		BytesOriginal:  atomic.LoadInt64(&s.BytesOriginal),
		BytesConverted: atomic.LoadInt64(&s.BytesConverted),
		SavedPercent:   s.SavedPercent(),
		Duration:       duration.String(),
	}
}

// GetSummary returns a formatted summary of the batch.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	duration := s.Duration
	s.mutex.RUnlock()

	return fmt.Sprintf(`Image Converter Statistics Summary:

Files:
		Total: %d
		Converted: %d
		Failed: %d

Size:
		Original: %s
		Converted: %s
		Saved: %.2f%%

Performance:
		Duration: %v`,
		atomic.LoadInt64(&s.TotalFiles),
		atomic.LoadInt64(&s.FilesConverted),
		atomic.LoadInt64(&s.FilesFailed),
		FormatBytes(atomic.LoadInt64(&s.BytesOriginal)),
		FormatBytes(atomic.LoadInt64(&s.BytesConverted)),
		s.SavedPercent(),
		duration)
}

// GetErrorSummary returns a summary of errors that occurred during the batch.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during conversion"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// FormatBytes returns a human-readable string for a byte count.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
