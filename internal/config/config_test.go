package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setXDG points the XDG base directories at dir for the duration of the test.
func setXDG(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	xdg.Reload()
	t.Cleanup(xdg.Reload)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 0, cfg.List.Limit)
	assert.Equal(t, "id", cfg.List.Sort)
	assert.Equal(t, "desc", cfg.List.Order)
	assert.Equal(t, "plain", cfg.Output.Format)
	assert.Equal(t, 60, cfg.Output.BodyWidth)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.toml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_ParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	content := `
[list]
limit = 20
sort = "app"
order = "asc"

[output]
format = "json"
body_width = 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.List.Limit)
	assert.Equal(t, "app", cfg.List.Sort)
	assert.Equal(t, "asc", cfg.List.Order)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, 0, cfg.Output.BodyWidth)
}

func TestLoadConfig_PartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[list]\nlimit = 5\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.List.Limit)
	assert.Equal(t, "desc", cfg.List.Order)
	assert.Equal(t, "plain", cfg.Output.Format)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad toml":   `this is not valid toml [`,
		"bad order":  "[list]\norder = \"sideways\"\n",
		"bad format": "[output]\nformat = \"xml\"\n",
		"neg limit":  "[list]\nlimit = -1\n",
		"neg body":   "[output]\nbody_width = -3\n",
		"wrong type": "[list]\nlimit = \"ten\"\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestConfig_Save(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "config.toml")

	cfg := DefaultConfig()
	cfg.List.Limit = 7
	cfg.Output.Format = "yaml"
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestPaths(t *testing.T) {
	dir := t.TempDir()
	setXDG(t, dir)

	assert.Equal(t, filepath.Join(dir, "config", "nisfere"), ConfigDir())
	assert.Equal(t, filepath.Join(dir, "data", "nisfere"), DataDir())
	assert.Equal(t, filepath.Join(dir, "config", "nisfere", "config.toml"), ConfigPath())
	assert.Equal(t, filepath.Join(dir, "config", "nisfere", "nisfered.toml"), DaemonConfigPath())
	assert.Equal(t, filepath.Join(dir, "data", "nisfere", "notifications.json"), DefaultCachePath())
	assert.Equal(t, filepath.Join(dir, "data", "nisfere", "state.json"), StatePath())
}

func TestEnsureDataDir(t *testing.T) {
	dir := t.TempDir()
	setXDG(t, dir)

	require.NoError(t, EnsureDataDir())

	info, err := os.Stat(filepath.Join(dir, "data", "nisfere"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "notes.json"), expandPath("~/notes.json"))
	assert.Equal(t, home, expandPath("~"))
	assert.Equal(t, "/abs/path", expandPath("/abs/path"))
	assert.Equal(t, "~user/x", expandPath("~user/x"))
}
