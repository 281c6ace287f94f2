// Package config loads readercore settings.
//
// Values are resolved in this order, first match wins: command-line flags
// that were set explicitly, READERCORE_* environment variables, the YAML
// config file, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/yuanying/readercore/internal/layout"
	"github.com/yuanying/readercore/internal/logger"
)

// EnvPrefix prefixes environment variables, e.g. READERCORE_LOG_LEVEL.
const EnvPrefix = "READERCORE"

// Config is the full configuration.
type Config struct {
	DataDir  string        `mapstructure:"data_dir"`
	CacheDir string        `mapstructure:"cache_dir"`
	Workers  int           `mapstructure:"workers"`
	Log      LogConfig     `mapstructure:"log"`
	Image    ImageConfig   `mapstructure:"image"`
	Layout   LayoutConfig  `mapstructure:"layout"`
	Watch    WatchConfig   `mapstructure:"watch"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ImageConfig configures the image cache.
type ImageConfig struct {
	MaxWidth    int `mapstructure:"max_width"`
	JPEGQuality int `mapstructure:"jpeg_quality"`
	MaxBytes    int `mapstructure:"max_bytes"`
}

// LayoutConfig configures pagination.
type LayoutConfig struct {
	Width       float64 `mapstructure:"width"`
	Height      float64 `mapstructure:"height"`
	FontSize    float64 `mapstructure:"font_size"`
	LineSpacing float64 `mapstructure:"line_spacing"`
	ItemSpacing float64 `mapstructure:"item_spacing"`
}

// WatchConfig configures the inbox watcher.
type WatchConfig struct {
	Settle time.Duration `mapstructure:"settle"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the endpoint
}

// flagKeys maps config keys to the command-line flags that may set them.
var flagKeys = map[string]string{
	"data_dir":            "data-dir",
	"cache_dir":           "cache-dir",
	"workers":             "workers",
	"log.level":           "log-level",
	"log.format":          "log-format",
	"image.max_width":     "max-image-width",
	"image.jpeg_quality":  "quality",
	"layout.width":        "width",
	"layout.height":       "height",
	"layout.font_size":    "font-size",
	"layout.line_spacing": "line-spacing",
	"watch.settle":        "settle",
	"metrics.addr":        "metrics-addr",
}

// Load reads the configuration. configFile may be empty; flags may be nil.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.DataDir, "cache")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("cache_dir", "")
	v.SetDefault("workers", runtime.NumCPU())

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logger.FormatText)

	v.SetDefault("image.max_width", 1200)
	v.SetDefault("image.jpeg_quality", 85)
	v.SetDefault("image.max_bytes", 512*1024)

	v.SetDefault("layout.width", 360)
	v.SetDefault("layout.height", 640)
	v.SetDefault("layout.font_size", 16)
	v.SetDefault("layout.line_spacing", 1.5)
	v.SetDefault("layout.item_spacing", 12)

	v.SetDefault("watch.settle", 2*time.Second)
	v.SetDefault("metrics.addr", "")
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "readercore")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "readercore")
	}
	return ".readercore"
}

// Validate checks value ranges. Errors name the flag that sets the value.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("--data-dir must not be empty"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("--workers must be at least 1, got %d", c.Workers))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("--log-level: %w", err))
	}
	if !logger.ValidFormat(c.Log.Format) {
		errs = append(errs, fmt.Errorf("--log-format must be text or json, got %q", c.Log.Format))
	}
	if c.Image.JPEGQuality < 60 || c.Image.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("--quality must be between 60 and 100, got %d", c.Image.JPEGQuality))
	}
	if c.Image.MaxWidth <= 0 {
		errs = append(errs, fmt.Errorf("--max-image-width must be positive, got %d", c.Image.MaxWidth))
	}
	if c.Image.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("image.max_bytes must be positive, got %d", c.Image.MaxBytes))
	}
	if c.Layout.Width <= 0 || c.Layout.Height <= 0 {
		errs = append(errs, fmt.Errorf("--width and --height must be positive, got %gx%g", c.Layout.Width, c.Layout.Height))
	}
	if c.Layout.FontSize <= 0 {
		errs = append(errs, fmt.Errorf("--font-size must be positive, got %g", c.Layout.FontSize))
	}
	if c.Layout.LineSpacing <= 0 {
		errs = append(errs, fmt.Errorf("--line-spacing must be positive, got %g", c.Layout.LineSpacing))
	}
	if c.Watch.Settle < 0 {
		errs = append(errs, fmt.Errorf("--settle must not be negative, got %s", c.Watch.Settle))
	}
	return errors.Join(errs...)
}

// LayoutStyle returns the page style derived from the layout settings.
func (c *Config) LayoutStyle() layout.Style {
	s := layout.DefaultStyle()
	scale := c.Layout.FontSize / s.Paragraph.FontSize
	s.Paragraph.FontSize = c.Layout.FontSize
	s.Paragraph.LineSpacing = c.Layout.LineSpacing
	s.Title.FontSize *= scale
	s.Caption.FontSize *= scale
	s.ItemSpacing = c.Layout.ItemSpacing
	return s
}
