package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kiln/internal/mono"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[lower]
max_generic_depth = 8

[output]
format = "MsgPack"
cache_dir = "cache"

[gate]
command = ["borrowck", "--strict"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Lower.MaxGenericDepth != 8 {
		t.Errorf("depth %d", cfg.Lower.MaxGenericDepth)
	}
	if cfg.Lower.DefaultInt != "i32" || !cfg.Lower.ReleaseTracking || cfg.Diagnostics.Max != 100 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if len(cfg.Gate.Command) != 2 || cfg.Gate.Command[1] != "--strict" {
		t.Errorf("gate %q", cfg.Gate.Command)
	}
	if cfg.Output.Format != "msgpack" {
		t.Errorf("format %q", cfg.Output.Format)
	}
	if want := filepath.Join(filepath.Dir(path), "cache"); cfg.Output.CacheDir != want {
		t.Errorf("cache dir %q, want %q", cfg.Output.CacheDir, want)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "[lower]\nmax_depth = 3\n", "unknown keys: lower.max_depth"},
		{"bad format", "[output]\nformat = \"elf\"\n", "output format"},
		{"bad depth", "[lower]\nmax_generic_depth = 0\n", "max_generic_depth"},
		{"bad level", "[trace]\nlevel = \"loud\"\n", "invalid trace level"},
		{"syntax", "[lower\n", "failed to parse TOML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Lower.MaxGenericDepth = -1
	cfg.Output.Format = "bin"
	err := cfg.Validate()
	if !errors.Is(err, ErrBadDepth) || !errors.Is(err, ErrBadFormat) {
		t.Fatalf("got %v", err)
	}
}

func TestFindWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o750); err != nil {
		t.Fatal(err)
	}
	path, ok, err := Find(nested)
	if err != nil || !ok {
		t.Fatalf("not found: %v", err)
	}
	if filepath.Dir(path) != root {
		t.Fatalf("found %s", path)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KILN_MAX_DEPTH", "5")
	t.Setenv("KILN_TRACE", "phase")
	t.Setenv("KILN_RELEASE_TRACKING", "false")
	t.Setenv("KILN_BORROW_CHECKER", "borrowck  --quiet")
	cfg, err := Discover(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Lower.MaxGenericDepth != 5 || cfg.Trace.Level != "phase" || cfg.Lower.ReleaseTracking {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if strings.Join(cfg.Gate.Command, "|") != "borrowck|--quiet" {
		t.Fatalf("gate command %q", cfg.Gate.Command)
	}
	if cfg.Path != "" {
		t.Fatalf("temp dir should have no config, got %s", cfg.Path)
	}
}

func TestLowerOptions(t *testing.T) {
	cfg := Default()
	opt := cfg.LowerOptions("app")
	if opt.ModuleName != "app" || opt.MaxDepth != mono.DefaultMaxDepth || !opt.ReleaseTracking {
		t.Fatalf("options %+v", opt)
	}
	other := cfg
	other.Lower.ReleaseTracking = false
	if cfg.Fingerprint() == other.Fingerprint() {
		t.Fatal("fingerprint ignores release tracking")
	}
}
