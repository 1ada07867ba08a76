package backdrop

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML configuration for a pipeline. Hosts that
// style their blur surfaces from configuration files can load one document
// and turn it into pipeline options.
//
// Example document:
//
//	downsample_factor: 4
//	blur_radius: 15
//	overlay_color: "#00000066"
//	corner_radius: 12
type Config struct {
	DownsampleFactor int     `yaml:"downsample_factor,omitempty"`
	BlurRadius       float64 `yaml:"blur_radius,omitempty"`
	OverlayColor     string  `yaml:"overlay_color,omitempty"`
	CornerRadius     int     `yaml:"corner_radius,omitempty"`
}

// LoadConfig reads a YAML pipeline configuration from path.
// A missing file is not an error: it yields an empty Config, whose Options
// apply the package defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided intentionally
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("backdrop: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("backdrop: parse config: %w", err)
	}

	return &cfg, nil
}

// Options converts the config into pipeline options. Zero-valued fields
// are omitted so package defaults apply; NewPipeline still validates the
// resulting configuration (e.g., negative factors fail there).
func (c *Config) Options() []Option {
	var opts []Option
	if c.DownsampleFactor != 0 {
		opts = append(opts, WithDownsampleFactor(c.DownsampleFactor))
	}
	if c.BlurRadius != 0 {
		opts = append(opts, WithBlurRadius(c.BlurRadius))
	}
	if c.OverlayColor != "" {
		opts = append(opts, WithOverlayColor(Hex(c.OverlayColor)))
	}
	if c.CornerRadius != 0 {
		opts = append(opts, WithCornerRadius(c.CornerRadius))
	}
	return opts
}
