package converter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"image-converter-go/internal/logger"

	"github.com/sirupsen/logrus"
)

// Executor validates requests, runs them through a Backend and checks the
// written output.
type Executor struct {
	backend Backend
	logger  *logrus.Logger
}

// NewExecutor returns an Executor that converts with backend.
func NewExecutor(backend Backend, logger *logrus.Logger) *Executor {
	return &Executor{
		backend: backend,
		logger:  logger,
	}
}

// Backend returns the backend used by the executor.
func (e *Executor) Backend() Backend {
	return e.backend
}

// Convert performs a single conversion. Validation failures are returned
// before any filesystem access.
func (e *Executor) Convert(ctx context.Context, req Request) Result {
	if err := req.Validate(); err != nil {
		logger.WithFileOperation(e.logger, req.SourcePath, "validate").
			Warnf("Rejected conversion request: %v", err)
		return failure(req.SourcePath, err)
	}

	outPath := req.OutputPath()
	log := logger.WithFileOperation(e.logger, req.SourcePath, "convert").WithFields(logrus.Fields{
		"backend": e.backend.Name(),
		"format":  req.Format,
		"quality": req.Quality,
		"output":  outPath,
	})
	log.Debug("Starting conversion")

	originalSize, newSize, err := e.run(ctx, req, outPath)
	if err != nil {
		if _, statErr := os.Stat(req.SourcePath); errors.Is(statErr, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrSourceNotFound, req.SourcePath)
		}
		log.WithError(err).Error("Conversion failed")
		return failure(req.SourcePath, err)
	}

	ratio := CompressionRatio(originalSize, newSize)
	log.WithFields(logrus.Fields{
		"original_size": originalSize,
		"new_size":      newSize,
		"ratio":         ratio,
	}).Info("Conversion succeeded")

	return Result{
		Success:          true,
		OriginalPath:     req.SourcePath,
		OutputPath:       outPath,
		OriginalSize:     originalSize,
		NewSize:          newSize,
		CompressionRatio: ratio,
	}
}

// run invokes the backend and verifies the output file.
func (e *Executor) run(ctx context.Context, req Request, outPath string) (originalSize, newSize int64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &BackendError{Backend: e.backend.Name(), Err: fmt.Errorf("backend panic: %v", p)}
		}
	}()

	if err := e.backend.Convert(ctx, req.SourcePath, outPath, req.Format, req.Quality); err != nil {
		return 0, 0, &BackendError{Backend: e.backend.Name(), Err: err}
	}

	outInfo, err := os.Stat(outPath)
	if err != nil || outInfo.Size() == 0 {
		return 0, 0, ErrEmptyOutput
	}

	srcInfo, err := os.Stat(req.SourcePath)
	if err != nil {
		return 0, 0, fmt.Errorf("stat source: %w", err)
	}

	return srcInfo.Size(), outInfo.Size(), nil
}

// CompressionRatio returns the size reduction from original to converted as
// a percentage with two decimals. It is negative when the output grew.
func CompressionRatio(originalSize, newSize int64) string {
	if originalSize <= 0 {
		return "0.00"
	}
	ratio := (1 - float64(newSize)/float64(originalSize)) * 100
	return strconv.FormatFloat(ratio, 'f', 2, 64)
}

func failure(path string, err error) Result {
	return Result{
		Success:      false,
		OriginalPath: path,
		Error:        err.Error(),
		Err:          err,
	}
}
