package main

import (
	"os"
	"time"

	"github.com/gregLibert/thai-id-card/pkg/thaiid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// Output formats.
const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

const (
	DefaultFormat   = FormatText
	DefaultLogLevel = logrus.WarnLevel
)

// Config holds the command line configuration.
type Config struct {
	Photo    bool
	LaserID  bool
	Settle   time.Duration
	Format   string
	PhotoOut string
	LogLevel logrus.Level
	Trace    bool
}

// Load reads configuration from environment variables with defaults. Invalid
// values are ignored.
func Load() *Config {
	cfg := &Config{
		Settle:   thaiid.DefaultSettleDelay,
		Format:   DefaultFormat,
		LogLevel: DefaultLogLevel,
	}

	// THAIID_SETTLE_DELAY - pause before enumerating readers, e.g. "500ms"
	if s := os.Getenv("THAIID_SETTLE_DELAY"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d >= 0 {
			cfg.Settle = d
		}
	}

	// THAIID_LOG_LEVEL - logrus level name
	if s := os.Getenv("THAIID_LOG_LEVEL"); s != "" {
		if lvl, err := logrus.ParseLevel(s); err == nil {
			cfg.LogLevel = lvl
		}
	}

	// THAIID_FORMAT - text, json or pretty
	if s := os.Getenv("THAIID_FORMAT"); validFormat(s) {
		cfg.Format = s
	}

	return cfg
}

func validFormat(s string) bool {
	switch s {
	case FormatText, FormatJSON, FormatPretty:
		return true
	}
	return false
}

// parseFlags applies command line flags on top of Load.
func parseFlags(args []string) (*Config, error) {
	cfg := Load()

	fs := pflag.NewFlagSet("thai-id-card", pflag.ContinueOnError)
	fs.BoolVar(&cfg.Photo, "photo", false, "also read the photo")
	fs.BoolVar(&cfg.LaserID, "laser-id", false, "also read the laser ID")
	fs.DurationVar(&cfg.Settle, "settle", cfg.Settle, "pause before enumerating readers")
	fs.StringVarP(&cfg.Format, "format", "f", cfg.Format, "output format: text, json or pretty")
	fs.StringVarP(&cfg.PhotoOut, "photo-out", "o", "", "write the photo JPEG to this file (implies --photo)")
	level := fs.String("log-level", cfg.LogLevel.String(), "log level")
	fs.BoolVar(&cfg.Trace, "trace", false, "print the applet SELECT report")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if !validFormat(cfg.Format) {
		return nil, errors.Errorf("unknown format %q", cfg.Format)
	}
	if cfg.Settle < 0 {
		return nil, errors.Errorf("negative settle delay %s", cfg.Settle)
	}
	lvl, err := logrus.ParseLevel(*level)
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = lvl
	if cfg.PhotoOut != "" {
		cfg.Photo = true
	}

	return cfg, nil
}
