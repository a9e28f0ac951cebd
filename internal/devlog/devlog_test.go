package devlog

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingArchiver struct {
	mu    sync.Mutex
	names []string
	data  [][]byte
}

func (r *recordingArchiver) Archive(ctx context.Context, name string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	r.data = append(r.data, data)
	return nil
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestSink_RotatesWithOneBackup(t *testing.T) {
	dir := t.TempDir()
	archiver := &recordingArchiver{}
	sink, err := NewSink(filepath.Join(dir, "browser.log"), 20, archiver)
	require.NoError(t, err)

	_, err = sink.Write([]byte("first line 1234\n")) // 16 bytes
	require.NoError(t, err)
	_, err = sink.Write([]byte("second line\n")) // would exceed 20
	require.NoError(t, err)
	_, err = sink.Write([]byte("third line!\n")) // 12+12 > 20, rotates again
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	assert.Equal(t, "third line!\n", readFile(t, sink.Path()))
	assert.Equal(t, "second line\n", readFile(t, sink.BackupPath()))

	_, err = os.Stat(sink.Path() + ".2")
	assert.True(t, os.IsNotExist(err), "only one backup generation")

	// Uploads run concurrently, so only the set of generations is stable.
	require.Len(t, archiver.data, 2)
	got := []string{string(archiver.data[0]), string(archiver.data[1])}
	assert.ElementsMatch(t, []string{"first line 1234\n", "second line\n"}, got)
	assert.Equal(t, []string{"browser.log", "browser.log"}, archiver.names)
}

func TestSink_OversizedBatchIsNotSplit(t *testing.T) {
	sink, err := NewSink(filepath.Join(t.TempDir(), "browser.log"), 8, nil)
	require.NoError(t, err)
	defer sink.Close()

	_, err = sink.Write([]byte("a much longer batch than the limit\n"))
	require.NoError(t, err)
	assert.Equal(t, "a much longer batch than the limit\n", readFile(t, sink.Path()))
}

func TestSink_ResumesExistingFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browser.log")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))

	sink, err := NewSink(path, 15, nil)
	require.NoError(t, err)
	_, err = sink.Write([]byte("abcdef\n"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	assert.Equal(t, "0123456789", readFile(t, sink.BackupPath()))
}

func TestSink_RecoversFromFailedRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browser.log")
	sink, err := NewSink(path, 10, nil)
	require.NoError(t, err)
	defer sink.Close()

	_, err = sink.Write([]byte("first\n"))
	require.NoError(t, err)

	// A non-empty directory at the backup path makes the rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(sink.BackupPath(), "blocker"), 0755))

	_, err = sink.Write([]byte("second\n"))
	require.Error(t, err)

	require.NoError(t, os.RemoveAll(sink.BackupPath()))

	_, err = sink.Write([]byte("third\n"))
	require.NoError(t, err, "sink keeps working once rotation is possible again")
	assert.Equal(t, "first\n", readFile(t, sink.BackupPath()))
	assert.Equal(t, "third\n", readFile(t, sink.Path()))
}

func TestHandler(t *testing.T) {
	sink, err := NewSink(filepath.Join(t.TempDir(), "browser.log"), 1<<20, nil)
	require.NoError(t, err)
	defer sink.Close()

	app := fiber.New()
	app.All(Route, Handler(sink))

	req := httptest.NewRequest(http.MethodPost, Route, strings.NewReader("[12:00:00] LOG hello\n[12:00:01] ERROR boom"))
	req.Header.Set("Content-Type", "text/plain")
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, "[12:00:00] LOG hello\n[12:00:01] ERROR boom\n", readFile(t, sink.Path()))

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		resp, err := app.Test(httptest.NewRequest(method, Route, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, method)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, os.ErrPermission }

func TestHandler_WriteFailure(t *testing.T) {
	app := fiber.New()
	app.All(Route, Handler(failingWriter{}))

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, Route, strings.NewReader("line")))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "error", string(body))
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  string
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	data, _ := io.ReadAll(params.Body)
	f.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archiver_Archive(t *testing.T) {
	putter := &fakePutter{}
	day := time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC)
	a := newS3Archiver(putter, "logs", "", func() time.Time { return day })

	require.NoError(t, a.Archive(context.Background(), "browser.log", []byte("hello\n")))

	key := aws.ToString(putter.input.Key)
	assert.True(t, strings.HasPrefix(key, "browser-logs/2024/12/15/"), key)
	assert.True(t, strings.HasSuffix(key, "-browser.log"), key)
	assert.Equal(t, "logs", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "hello\n", putter.body)

	assert.Equal(t, key, a.objectKey("browser.log", []byte("hello\n")), "keys are content addressed")
	assert.NotEqual(t, key, a.objectKey("browser.log", []byte("other\n")))
}

func TestShipper_FlushesOnSizeAndClose(t *testing.T) {
	var (
		mu      sync.Mutex
		batches []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		batches = append(batches, string(data))
		mu.Unlock()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	s := NewShipper(ShipperConfig{URL: srv.URL, FlushBytes: 10, FlushInterval: time.Hour})

	_, err := s.Write([]byte("0123456789\n")) // crosses the threshold
	require.NoError(t, err)
	_, err = s.Write([]byte("tail\n"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"0123456789\n", "tail\n"}, batches)
	assert.Equal(t, int64(0), s.Dropped())

	_, err = s.Write([]byte("late\n"))
	assert.Error(t, err)
}

func TestShipper_FlushesOnInterval(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		received <- string(data)
	}))
	defer srv.Close()

	s := NewShipper(ShipperConfig{URL: srv.URL, FlushInterval: 20 * time.Millisecond})
	defer s.Close()

	_, _ = s.Write([]byte("tick\n"))

	select {
	case got := <-received:
		assert.Equal(t, "tick\n", got)
	case <-time.After(2 * time.Second):
		t.Fatal("interval flush did not happen")
	}
}

func TestShipper_CountsDroppedLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewShipper(ShipperConfig{URL: srv.URL, FlushInterval: time.Hour})
	_, _ = s.Write([]byte("a\nb\n"))
	require.NoError(t, s.Close())

	assert.Equal(t, int64(2), s.Dropped())
}
