package config

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`           // false = no file logging
	Level      string          `yaml:"level"`                // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format"`          // one JSON object per line
	Categories map[string]bool `yaml:"categories,omitempty"` // per-category toggles
}

// IsCategoryEnabled reports whether a category writes logs.
// Nothing is logged unless debug_mode is on; unlisted categories are enabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}
