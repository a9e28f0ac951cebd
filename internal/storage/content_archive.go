package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/marba/synapse/internal/models"
)

// ContentArchive keeps generated content as JSON files in dated directories
// (YYYY/MM/DD) under basePath.
type ContentArchive struct {
	basePath string
	mu       sync.RWMutex
}

// ErrContentNotFound is returned when no archived content matches an id.
var ErrContentNotFound = fmt.Errorf("storage: content not found")

func NewContentArchive(basePath string) (*ContentArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &ContentArchive{basePath: basePath}, nil
}

// Save writes a generated content document to disk.
func (a *ContentArchive) Save(ctx context.Context, content *models.GeneratedContent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if content.Metadata.ID == "" {
		return fmt.Errorf("content id is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	generated := content.Metadata.GeneratedAt
	datePath := filepath.Join(a.basePath, generated.UTC().Format("2006/01/02"))
	if err := os.MkdirAll(datePath, 0755); err != nil {
		return fmt.Errorf("failed to create date directory: %w", err)
	}

	filename := fmt.Sprintf("%d_%s.json", generated.Unix(), content.Metadata.ID)
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}

	if err := os.WriteFile(filepath.Join(datePath, filename), data, 0644); err != nil {
		return fmt.Errorf("failed to write content file: %w", err)
	}
	return nil
}

// Get retrieves archived content by id.
func (a *ContentArchive) Get(ctx context.Context, id string) (*models.GeneratedContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	path, err := a.find(id)
	if err != nil {
		return nil, err
	}
	return readContent(path)
}

// List returns a page of archived content, newest first, and the number of
// archived items across all pages.
func (a *ContentArchive) List(ctx context.Context, page, pageSize int) ([]*models.GeneratedContent, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	var files []string
	err := filepath.WalkDir(a.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("error walking the archive: %w", err)
	}

	// File names start with the unix generation time.
	sort.Slice(files, func(i, j int) bool {
		return filepath.Base(files[i]) > filepath.Base(files[j])
	})

	start := (page - 1) * pageSize
	if start >= len(files) {
		return []*models.GeneratedContent{}, len(files), nil
	}
	end := start + pageSize
	if end > len(files) {
		end = len(files)
	}

	items := make([]*models.GeneratedContent, 0, end-start)
	for _, file := range files[start:end] {
		item, err := readContent(file)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, len(files), nil
}

// Delete removes archived content by id.
func (a *ContentArchive) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	path, err := a.find(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete content file: %w", err)
	}
	return nil
}

// find locates the file for id; callers hold the lock.
func (a *ContentArchive) find(id string) (string, error) {
	suffix := "_" + id + ".json"
	var found string

	err := filepath.WalkDir(a.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), suffix) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("error walking the archive: %w", err)
	}
	if found == "" {
		return "", ErrContentNotFound
	}
	return found, nil
}

func readContent(path string) (*models.GeneratedContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	var item models.GeneratedContent
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal content: %w", err)
	}
	return &item, nil
}
