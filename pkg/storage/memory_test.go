package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	key, err := s.Store(ctx, strings.NewReader("%PDF"), "exports/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "exports/a.pdf", key)

	clock = clock.Add(time.Hour)
	_, err = s.Store(ctx, strings.NewReader("# md"), "exports/b.md")
	require.NoError(t, err)

	rc, err := s.Get(ctx, "exports/a.pdf")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "%PDF", string(data))

	require.NoError(t, s.CleanupBefore(ctx, clock))
	_, err = s.Get(ctx, "exports/a.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	_, err = s.Get(ctx, "exports/b.md")
	assert.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "exports/b.md"))
	_, err = s.Get(ctx, "exports/b.md")
	assert.Error(t, err)
}

func TestNewStorage_Unsupported(t *testing.T) {
	_, err := NewStorage("ftp", nil)
	assert.Error(t, err)
}
