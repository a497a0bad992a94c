package config

import "fmt"

// Export formats.
const (
	FormatCSV        = "csv"
	FormatJSON       = "json"
	FormatInertiaCSV = "inertia_csv"
	FormatChart      = "chart"
)

// ExportConfig selects where and how results are written.
type ExportConfig struct {
	Dir     string   `json:"dir"`
	Formats []string `json:"formats"`
}

// SetDefaults applies sane defaults.
func (c *ExportConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "results"
	}
	if len(c.Formats) == 0 {
		c.Formats = []string{FormatCSV, FormatInertiaCSV}
	}
}

// Validate rejects unknown formats.
func (c ExportConfig) Validate() error {
	for _, f := range c.Formats {
		switch f {
		case FormatCSV, FormatJSON, FormatInertiaCSV, FormatChart:
		default:
			return fmt.Errorf("unknown format %q", f)
		}
	}
	return nil
}
