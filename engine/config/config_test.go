package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rivet.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_name = "testbed"

[renderer]
staging_budget_bytes = 1048576
max_bindless_slots = 256

[assets]
dir = "textures"
watch_for_changes = false
preload = ["cobblestone.png", "paving.png"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "testbed", cfg.AppName)
	assert.Equal(t, uint64(1048576), cfg.Renderer.StagingBudgetBytes)
	assert.Equal(t, uint32(256), cfg.Renderer.MaxBindlessSlots)
	assert.Equal(t, "textures", cfg.Assets.Dir)
	assert.False(t, cfg.Assets.WatchForChanges)
	assert.Equal(t, []string{"cobblestone.png", "paving.png"}, cfg.Assets.Preload)
}

func TestLoadPartialFileKeepsRemainingDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rivet.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[renderer]
max_bindless_slots = 64
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(64), cfg.Renderer.MaxBindlessSlots)
	assert.Equal(t, Default().Renderer.StagingBudgetBytes, cfg.Renderer.StagingBudgetBytes)
	assert.Equal(t, Default().Assets.Dir, cfg.Assets.Dir)
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rivet.toml")
	require.NoError(t, os.WriteFile(path, []byte(`app_name = `), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Renderer.StagingBudgetBytes = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Renderer.MaxBindlessSlots = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Assets.Dir = ""
	assert.Error(t, cfg.Validate())
}
