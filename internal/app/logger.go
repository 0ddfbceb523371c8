package app

import "github.com/cooktodor/notifier/pkg/logger"

// ConfigureLogging builds the global logger from the server settings. An
// empty level means info and an empty format means JSON.
func ConfigureLogging(level, format string) error {
	if level == "" {
		level = "info"
	}
	return logger.Init(level, format)
}
