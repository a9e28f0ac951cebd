package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marba/synapse/internal/models"
)

func content(id string, at time.Time) *models.GeneratedContent {
	return &models.GeneratedContent{
		Text:       "Warm up with our winter menu",
		Variations: []string{"v1"},
		Metadata: models.GenerationMetadata{
			ID:          id,
			Mode:        models.ModeFast,
			GeneratedAt: at,
		},
	}
}

func TestContentArchive_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	a, err := NewContentArchive(t.TempDir())
	require.NoError(t, err)

	at := time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, a.Save(ctx, content("abc", at)))

	got, err := a.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "Warm up with our winter menu", got.Text)

	require.NoError(t, a.Delete(ctx, "abc"))
	_, err = a.Get(ctx, "abc")
	assert.True(t, errors.Is(err, ErrContentNotFound))
}

func TestContentArchive_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	a, err := NewContentArchive(t.TempDir())
	require.NoError(t, err)

	base := time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, a.Save(ctx, content("old", base)))
	require.NoError(t, a.Save(ctx, content("mid", base.Add(time.Hour))))
	require.NoError(t, a.Save(ctx, content("new", base.Add(24*time.Hour))))

	page, total, err := a.List(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 3, total)
	assert.Equal(t, "new", page[0].Metadata.ID)
	assert.Equal(t, "mid", page[1].Metadata.ID)

	page, total, err = a.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, 3, total)
	assert.Equal(t, "old", page[0].Metadata.ID)

	page, total, err = a.List(ctx, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Equal(t, 3, total)
}

func TestContentArchive_RequiresID(t *testing.T) {
	a, err := NewContentArchive(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, a.Save(context.Background(), content("", time.Now())))
}
