package engine

import (
	"github.com/spaghettifunk/rivet/engine/core"
)

type ApplicationConfig struct {
	// The application name used for the Vulkan instance and logging.
	Name string
	// Path of the TOML configuration file. Missing files fall back to the
	// built-in defaults.
	ConfigPath string
	LogLevel   core.LogLevel
}
