package devlog

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

// ShipperConfig configures a Shipper.
type ShipperConfig struct {
	URL           string
	FlushBytes    int
	FlushInterval time.Duration
	Timeout       time.Duration
}

// Shipper is an io.Writer that buffers log lines and POSTs them in batches to
// a browser-logger endpoint. Batches flush when FlushBytes is reached, every
// FlushInterval, and once more on Close.
type Shipper struct {
	client *resty.Client
	url    string
	limit  int

	mu  sync.Mutex
	buf bytes.Buffer

	// sendMu keeps batches in order.
	sendMu  sync.Mutex
	dropped atomic.Int64

	stop   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

func NewShipper(cfg ShipperConfig) *Shipper {
	if cfg.FlushBytes <= 0 {
		cfg.FlushBytes = 64 << 10
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	s := &Shipper{
		client: resty.New().SetTimeout(cfg.Timeout),
		url:    cfg.URL,
		limit:  cfg.FlushBytes,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.loop(cfg.FlushInterval)
	return s
}

// Write buffers p. It never blocks on the network unless the size threshold
// is crossed.
func (s *Shipper) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, os.ErrClosed
	}

	s.mu.Lock()
	s.buf.Write(p)
	full := s.buf.Len() >= s.limit
	s.mu.Unlock()

	if full {
		s.Flush()
	}
	return len(p), nil
}

// Flush sends whatever is buffered.
func (s *Shipper) Flush() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.buf.Len() == 0 {
		s.mu.Unlock()
		return
	}
	batch := make([]byte, s.buf.Len())
	copy(batch, s.buf.Bytes())
	s.buf.Reset()
	s.mu.Unlock()

	if err := s.send(batch); err != nil {
		s.dropped.Add(int64(bytes.Count(batch, []byte{'\n'})))
		// The logger may be writing through us; report on stderr only.
		fmt.Fprintf(os.Stderr, "devlog: failed to ship %d bytes: %v\n", len(batch), err)
	}
}

// Dropped returns how many lines failed to ship.
func (s *Shipper) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops the timer and performs a final flush.
func (s *Shipper) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stop)
	<-s.done
	s.Flush()
	return nil
}

func (s *Shipper) loop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush()
		case <-s.stop:
			return
		}
	}
}

func (s *Shipper) send(batch []byte) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "text/plain").
		SetBody(batch).
		Post(s.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode())
	}
	return nil
}
