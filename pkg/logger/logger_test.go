package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(WithLevel("loud"), WithOutputPaths([]string{"stdout"}))
	require.Error(t, err)
}

func TestNewLogger_Console(t *testing.T) {
	l, err := NewLogger(WithLevel("debug"), WithEncoding("console"), WithOutputPaths([]string{"stderr"}))
	require.NoError(t, err)
	l.Named("test").With(DocumentID("doc-1")).Debug("hello", ChunkID("c1"))
}

func TestTestLogger_ChildrenShareEntries(t *testing.T) {
	root := NewTestLogger()
	child := root.Named("reconciler").With(DocumentID("d1"))

	root.Info("root")
	child.Warn("child", ChunkID("c1"))

	entries := root.GetEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "reconciler", entries[1].Logger)
	assert.Len(t, entries[1].Fields, 2)
	assert.Equal(t, 1, root.Count("WARN"))

	root.Clear()
	assert.Empty(t, root.GetEntries())
}

func TestContextLogger_RequestID(t *testing.T) {
	root := NewTestLogger()
	cl := NewContextLogger(root)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-9")
	cl.FromContext(ctx).Info("with id")
	cl.FromContext(context.Background()).Info("without id")

	entries := root.GetEntries()
	require.Len(t, entries, 2)
	assert.Len(t, entries[0].Fields, 1)
	assert.Empty(t, entries[1].Fields)
}
