package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_OverridesOnlyPresentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docview.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  poll_interval: 2s
  allowed_origins: ["https://viewer.example.com"]
redis:
  addr: redis:6379
`), 0o600))

	base := &AppConfig{ServerAddr: ":8080", PollInterval: 5 * time.Second, LogLevel: "info"}
	fc, err := LoadFile(path, base)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, base.PollInterval)
	assert.Equal(t, ":8080", base.ServerAddr)
	assert.Equal(t, []string{"https://viewer.example.com"}, base.AllowedOrigins)
	require.NotNil(t, fc.Redis)
	assert.Equal(t, "redis:6379", fc.Redis.Addr)
	assert.Nil(t, fc.Minio)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), &AppConfig{})
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Nil(t, splitList(""))
}
