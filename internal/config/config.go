// Package config merges command-line flags, RDUP_* environment variables and
// an optional config file into validated run options.
//
// Precedence, highest first: explicitly set flag, environment, config file,
// flag default.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ivoronin/rdup/internal/hasher"
	"github.com/ivoronin/rdup/internal/types"
)

const envPrefix = "RDUP"

// Options holds the raw dedupe settings as the user spelled them.
type Options struct {
	MinSize          string   `mapstructure:"min-size"`
	Excludes         []string `mapstructure:"exclude"`
	Workers          int      `mapstructure:"workers"`
	NoProgress       bool     `mapstructure:"no-progress"`
	Verbose          bool     `mapstructure:"verbose"`
	DryRun           bool     `mapstructure:"dry-run"`
	Link             string   `mapstructure:"link"`
	RelativeSymlinks bool     `mapstructure:"relative-symlinks"`
	Prefer           []string `mapstructure:"prefer"`
	Hash             string   `mapstructure:"hash"`
	AbortOnReadError bool     `mapstructure:"abort-on-read-error"`
	Journal          string   `mapstructure:"journal"`
}

// Config is Options after parsing and validation.
type Config struct {
	Options
	MinSizeBytes int64
	Kind         types.LinkKind
	Algorithm    hasher.Algorithm
	OnError      hasher.ErrorPolicy
}

// Policy returns the link policy for the resolver.
func (c *Config) Policy() types.LinkPolicy {
	return types.LinkPolicy{
		Destructive:      !c.DryRun,
		Kind:             c.Kind,
		RelativeSymlinks: c.RelativeSymlinks,
	}
}

// ShowProgress reports whether spinners should be drawn.
func (c *Config) ShowProgress() bool { return !c.NoProgress }

// RegisterFlags defines the dedupe flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("min-size", "m", "1", "Minimum file size (e.g., 100, 1K, 10M, 1G)")
	fs.StringSliceP("exclude", "e", nil, "Glob patterns to exclude")
	fs.IntP("workers", "w", runtime.NumCPU(), "Number of parallel workers")
	fs.Bool("no-progress", false, "Disable progress output")
	fs.BoolP("verbose", "v", false, "Show individual file operations")
	fs.BoolP("dry-run", "n", false, "List duplicate groups without linking")
	fs.String("link", "hard", "Link type for redundant copies (hard or soft)")
	fs.Bool("relative-symlinks", false, "Make symlinks relative to the link's directory")
	fs.StringSlice("prefer", nil, "Keep the first copy whose path contains this substring (repeatable)")
	fs.String("hash", string(hasher.XXH64), "Fingerprint algorithm (xxh64 or xxh3)")
	fs.Bool("abort-on-read-error", false, "Stop the run on the first unreadable file")
	RegisterJournalFlag(fs)
	RegisterConfigFlag(fs)
}

// RegisterJournalFlag defines --journal on fs.
func RegisterJournalFlag(fs *pflag.FlagSet) {
	fs.String("journal", "", "Path to replacement journal (enables crash recovery)")
}

// RegisterConfigFlag defines --config on fs.
func RegisterConfigFlag(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to config file (YAML, TOML or JSON)")
}

// Load reads dedupe options from flags, environment and file.
// An empty file means no config file.
func Load(flags *pflag.FlagSet, file string) (*Config, error) {
	v, err := newViper(flags, file)
	if err != nil {
		return nil, err
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	return opts.validate()
}

// LoadJournalPath resolves --journal for commands that need nothing else.
func LoadJournalPath(flags *pflag.FlagSet, file string) (string, error) {
	v, err := newViper(flags, file)
	if err != nil {
		return "", err
	}
	path := v.GetString("journal")
	if path == "" {
		return "", errors.New("--journal is required")
	}
	return path, nil
}

func newViper(flags *pflag.FlagSet, file string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return v, nil
}

func (o Options) validate() (*Config, error) {
	cfg := &Config{Options: o}
	var err error

	if cfg.MinSizeBytes, err = parseSize(o.MinSize); err != nil {
		return nil, fmt.Errorf("invalid --min-size: %w", err)
	}
	if err := validateGlobPatterns(o.Excludes); err != nil {
		return nil, fmt.Errorf("invalid --exclude: %w", err)
	}
	if o.Workers < 1 {
		return nil, fmt.Errorf("invalid --workers: %d (must be at least 1)", o.Workers)
	}
	if cfg.Kind, err = types.ParseLinkKind(o.Link); err != nil {
		return nil, fmt.Errorf("invalid --link: %w", err)
	}
	if cfg.Algorithm, err = hasher.ParseAlgorithm(o.Hash); err != nil {
		return nil, fmt.Errorf("invalid --hash: %w", err)
	}
	if o.RelativeSymlinks && cfg.Kind != types.LinkSoft {
		return nil, errors.New("--relative-symlinks requires --link soft")
	}

	cfg.OnError = hasher.SkipAndReport
	if o.AbortOnReadError {
		cfg.OnError = hasher.Abort
	}
	return cfg, nil
}
