package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sagitta.toml")

	contents := `
[database]
path = "/var/lib/sagitta/db.sqlite"

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/sagitta/db.sqlite", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Unset fields keep their default.
	assert.Equal(t, "blobs", cfg.BlobStore.Root)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
