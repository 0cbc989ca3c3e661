package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type RendererConfig struct {
	/** @brief Byte budget of the per-frame upload staging arena. */
	StagingBudgetBytes uint64 `toml:"staging_budget_bytes"`
	/** @brief Number of elements in the bindless texture array. */
	MaxBindlessSlots uint32 `toml:"max_bindless_slots"`
}

type AssetsConfig struct {
	/** @brief Root directory scanned and watched for textures. */
	Dir string `toml:"dir"`
	/** @brief Fire invalidations when files under Dir are rewritten. */
	WatchForChanges bool `toml:"watch_for_changes"`
	/** @brief Textures uploaded synchronously before the first frame. */
	Preload []string `toml:"preload"`
}

type Config struct {
	AppName  string         `toml:"app_name"`
	Renderer RendererConfig `toml:"renderer"`
	Assets   AssetsConfig   `toml:"assets"`
}

func Default() *Config {
	return &Config{
		AppName: "Rivet",
		Renderer: RendererConfig{
			StagingBudgetBytes: 64 * 1024 * 1024,
			MaxBindlessSlots:   1024,
		},
		Assets: AssetsConfig{
			Dir:             "assets",
			WatchForChanges: true,
		},
	}
}

// Load reads a TOML config file over the defaults. A missing file is not an
// error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Renderer.StagingBudgetBytes == 0 {
		return fmt.Errorf("renderer.staging_budget_bytes must be greater than zero")
	}
	if c.Renderer.MaxBindlessSlots == 0 {
		return fmt.Errorf("renderer.max_bindless_slots must be greater than zero")
	}
	if c.Assets.Dir == "" {
		return fmt.Errorf("assets.dir must not be empty")
	}
	return nil
}
