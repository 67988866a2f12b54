package logger

// Config is the logger configuration.
type Config struct {
	Level string `json:"level"` // debug, info, warn, error (default: info)
	Dir   string `json:"dir"`   // log file directory (default: data/logs)
}

// SetDefaults fills unset fields with their defaults.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Dir == "" {
		c.Dir = "data/logs"
	}
}
