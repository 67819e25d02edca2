package viper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type section struct {
	Listen  string        `mapstructure:"listen"`
	Timeout time.Duration `mapstructure:"timeout"`
	Workers int           `mapstructure:"workers"`
}

type root struct {
	Server section `mapstructure:"server"`
}

func TestPriority(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen: \":7000\"\n  workers: 4\n"), 0o600))
	t.Setenv("VTEST_SERVER_WORKERS", "9")

	c := New()
	c.SetDefaults(map[string]any{
		"server.listen":  ":1099",
		"server.timeout": "3s",
		"server.workers": 1,
	})
	c.AutomaticEnv("VTEST")
	require.NoError(t, c.LoadFile(path))

	var r root
	require.NoError(t, c.Unmarshal(&r))
	assert.Equal(t, ":7000", r.Server.Listen)
	assert.Equal(t, 3*time.Second, r.Server.Timeout)
	assert.Equal(t, 9, r.Server.Workers)
	assert.True(t, c.IsSet("server.listen"))

	var s section
	require.NoError(t, c.UnmarshalKey("server", &s))
	assert.Equal(t, ":7000", s.Listen)
}

func TestLoadMissingFile(t *testing.T) {
	assert.Error(t, New().LoadFile(filepath.Join(t.TempDir(), "absent.yaml")))
}
