// Package devlog is the development browser logger: an HTTP endpoint that
// appends pre-formatted lines to a size-rotated file, plus a Go-side shipper
// that batches log lines to such an endpoint.
package devlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marba/synapse/internal/logger"
	"github.com/marba/synapse/internal/metrics"
)

// Archiver uploads a rotated log generation.
type Archiver interface {
	Archive(ctx context.Context, name string, data []byte) error
}

// Sink appends to a log file and rotates it to a single ".1" backup once the
// next write would exceed maxSize.
type Sink struct {
	mu       sync.Mutex
	path     string
	maxSize  int64
	file     *os.File
	size     int64
	archiver Archiver
	uploads  sync.WaitGroup
	log      zerolog.Logger
}

func NewSink(path string, maxSize int64, archiver Archiver) (*Sink, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("max size must be positive, got %d", maxSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	s := &Sink{
		path:     path,
		maxSize:  maxSize,
		archiver: archiver,
		log:      logger.With("devlog"),
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the active log file path.
func (s *Sink) Path() string {
	return s.path
}

// BackupPath returns the path of the single rotated generation.
func (s *Sink) BackupPath() string {
	return s.path + ".1"
}

// Write appends p as one unit; a batch is never split across files.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return 0, os.ErrClosed
	}

	if s.size > 0 && s.size+int64(len(p)) > s.maxSize {
		if err := s.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := s.file.Write(p)
	s.size += int64(n)
	metrics.BrowserLogBytes.Add(float64(n))
	if err != nil {
		return n, fmt.Errorf("failed to append to log: %w", err)
	}
	return n, nil
}

// Close closes the file and waits for pending uploads.
func (s *Sink) Close() error {
	s.mu.Lock()
	var err error
	if s.file != nil {
		err = s.file.Close()
		s.file = nil
	}
	s.mu.Unlock()

	s.uploads.Wait()
	return err
}

func (s *Sink) open() error {
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	s.file = file
	s.size = info.Size()
	return nil
}

// rotate replaces the backup with the current file; callers hold the lock.
func (s *Sink) rotate() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close log for rotation: %w", err)
	}
	s.file = nil

	backup := s.BackupPath()
	if err := os.Rename(s.path, backup); err != nil {
		// Keep appending to the current file; the next write retries rotation.
		if openErr := s.open(); openErr != nil {
			return errors.Join(fmt.Errorf("failed to rotate log: %w", err), openErr)
		}
		return fmt.Errorf("failed to rotate log: %w", err)
	}
	metrics.BrowserLogRotations.Inc()

	if s.archiver != nil {
		data, err := os.ReadFile(backup)
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to read rotated log for archiving")
		} else {
			s.upload(data)
		}
	}

	return s.open()
}

func (s *Sink) upload(data []byte) {
	name := filepath.Base(s.path)
	s.uploads.Add(1)
	go func() {
		defer s.uploads.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.archiver.Archive(ctx, name, data); err != nil {
			s.log.Warn().Err(err).Int("bytes", len(data)).Msg("Failed to archive rotated log")
			return
		}
		s.log.Debug().Int("bytes", len(data)).Msg("Archived rotated log")
	}()
}
