package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.Mutex
	inited bool
	logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	closer io.Closer
)

// Config holds the configuration for the logger
type Config struct {
	Level  string
	Output string // "stdout", "stderr", or file path
	Pretty bool   // Enable pretty logging for development

	// Tee receives a copy of every JSON log line, e.g. a devlog.Shipper.
	Tee io.Writer
}

// Init initializes the global logger. Subsequent calls are no-ops until Reset.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if inited {
		return nil
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	output, c, err := openOutput(cfg.Output)
	if err != nil {
		return err
	}
	closer = c

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "2006-01-02 15:04:05",
		}
	}

	if cfg.Tee != nil {
		output = zerolog.MultiLevelWriter(output, cfg.Tee)
	}

	logger = zerolog.New(output).With().
		Timestamp().
		Caller().
		Logger()

	zerolog.DefaultContextLogger = &logger
	inited = true
	return nil
}

// Reset restores the default stdout logger and closes any opened log file.
func Reset() error {
	mu.Lock()
	defer mu.Unlock()

	logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = nil
	inited = false

	if closer != nil {
		err := closer.Close()
		closer = nil
		return err
	}
	return nil
}

// Get returns the logger instance
func Get() *zerolog.Logger {
	return &logger
}

// With returns a child logger tagged with the given component name.
func With(component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

func openOutput(target string) (io.Writer, io.Closer, error) {
	switch target {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}

	dir := filepath.Dir(target)
	if dir != "." && dir != string(filepath.Separator) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	file, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, file, nil
}
