// Package config loads kiln.toml and applies environment overrides.
//
// Precedence, lowest first: built-in defaults, the TOML file, KILN_*
// environment variables, command-line flags (applied by cmd/kiln).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/xyproto/env/v2"

	"kiln/internal/lower"
	"kiln/internal/mono"
	"kiln/internal/trace"
)

// FileName is the name looked up by Find.
const FileName = "kiln.toml"

var (
	ErrBadFormat = errors.New("output format must be text or msgpack")
	ErrBadDepth  = errors.New("max_generic_depth must be positive")
)

type Lower struct {
	MaxGenericDepth int    `toml:"max_generic_depth"`
	DefaultInt      string `toml:"default_int"`
	DefaultFloat    string `toml:"default_float"`
	ReleaseTracking bool   `toml:"release_tracking"`
}

type Diagnostics struct {
	Max              int  `toml:"max"`
	WarningsAsErrors bool `toml:"warnings_as_errors"`
}

type Trace struct {
	Level  string `toml:"level"`
	Mode   string `toml:"mode"`
	Output string `toml:"output"`
}

// Gate names the external ownership checker run before lowering.
type Gate struct {
	Command []string `toml:"command"`
}

type Output struct {
	Format   string `toml:"format"` // text | msgpack
	CacheDir string `toml:"cache_dir"`
}

// Config is the merged configuration of one invocation.
type Config struct {
	Lower       Lower       `toml:"lower"`
	Diagnostics Diagnostics `toml:"diagnostics"`
	Trace       Trace       `toml:"trace"`
	Output      Output      `toml:"output"`
	Gate        Gate        `toml:"gate"`

	// Path is the file the config was read from, empty for defaults.
	Path string `toml:"-"`
}

func Default() Config {
	return Config{
		Lower: Lower{
			MaxGenericDepth: mono.DefaultMaxDepth,
			DefaultInt:      "i32",
			DefaultFloat:    "f64",
			ReleaseTracking: true,
		},
		Diagnostics: Diagnostics{Max: 100},
		Trace:       Trace{Level: "off", Mode: "stream"},
		Output:      Output{Format: "text"},
	}
}

// Load reads path over the defaults. Keys absent from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("output", "format") {
		cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))
	}
	if meta.IsDefined("output", "cache_dir") && cfg.Output.CacheDir != "" && !filepath.IsAbs(cfg.Output.CacheDir) {
		cfg.Output.CacheDir = filepath.Join(filepath.Dir(path), cfg.Output.CacheDir)
	}
	cfg.Path = path
	return cfg, cfg.Validate()
}

// Find walks up from dir to locate kiln.toml.
func Find(dir string) (path string, ok bool, err error) {
	if dir == "" {
		dir = "."
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Discover loads the nearest kiln.toml above dir, or the defaults when
// there is none, then applies the environment.
func Discover(dir string) (Config, error) {
	cfg := Default()
	path, ok, err := Find(dir)
	if err != nil {
		return Config{}, err
	}
	if ok {
		if cfg, err = Load(path); err != nil {
			return Config{}, err
		}
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from KILN_* variables that are set.
func (c *Config) ApplyEnv() {
	if env.Has("KILN_MAX_DEPTH") {
		c.Lower.MaxGenericDepth = env.Int("KILN_MAX_DEPTH", c.Lower.MaxGenericDepth)
	}
	if env.Has("KILN_MAX_DIAGNOSTICS") {
		c.Diagnostics.Max = env.Int("KILN_MAX_DIAGNOSTICS", c.Diagnostics.Max)
	}
	if env.Has("KILN_RELEASE_TRACKING") {
		c.Lower.ReleaseTracking = env.Bool("KILN_RELEASE_TRACKING")
	}
	c.Trace.Level = env.Str("KILN_TRACE", c.Trace.Level)
	c.Trace.Output = env.Str("KILN_TRACE_OUTPUT", c.Trace.Output)
	c.Output.CacheDir = env.Str("KILN_CACHE_DIR", c.Output.CacheDir)
	if env.Has("KILN_BORROW_CHECKER") {
		c.Gate.Command = strings.Fields(env.Str("KILN_BORROW_CHECKER"))
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Lower.MaxGenericDepth <= 0 {
		errs = append(errs, ErrBadDepth)
	}
	switch c.Output.Format {
	case "text", "msgpack":
	default:
		errs = append(errs, fmt.Errorf("%w, got %q", ErrBadFormat, c.Output.Format))
	}
	if _, err := trace.ParseLevel(c.Trace.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := trace.ParseMode(c.Trace.Mode); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LowerOptions converts the [lower] section for a session named module.
func (c Config) LowerOptions(module string) lower.Options {
	return lower.Options{
		ModuleName:      module,
		MaxDepth:        c.Lower.MaxGenericDepth,
		DefaultInt:      c.Lower.DefaultInt,
		DefaultFloat:    c.Lower.DefaultFloat,
		ReleaseTracking: c.Lower.ReleaseTracking,
	}
}

// TraceConfig converts the [trace] section.
func (c Config) TraceConfig() (trace.Config, error) {
	lvl, err := trace.ParseLevel(c.Trace.Level)
	if err != nil {
		return trace.Config{}, err
	}
	mode, err := trace.ParseMode(c.Trace.Mode)
	if err != nil {
		return trace.Config{}, err
	}
	return trace.Config{Level: lvl, Mode: mode, OutputPath: c.Trace.Output}, nil
}

// Fingerprint covers every setting that changes lowering output; the
// driver mixes it into cache keys.
func (c Config) Fingerprint() string {
	return fmt.Sprintf("depth=%d int=%s float=%s release=%t",
		c.Lower.MaxGenericDepth, c.Lower.DefaultInt, c.Lower.DefaultFloat, c.Lower.ReleaseTracking)
}
