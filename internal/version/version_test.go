package version

import (
	"strings"
	"testing"
)

func TestColoredPlain(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	tests := []struct {
		version string
		want    string
	}{
		{"1.2.3", "1.2.3"},
		{"0.1.0-dev", "0.1.0-dev"},
		{"1.0.0-beta.1", "1.0.0-beta.1"},
		{"nightly", "nightly"},
	}
	for _, tt := range tests {
		Version = tt.version
		if got := Colored(false); got != tt.want {
			t.Errorf("Colored(false) for %q = %q", tt.version, got)
		}
	}
}

func TestColoredKeepsDigits(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	Version = "2.5.7-rc"
	got := Colored(true)
	for _, part := range []string{"2", "5", "7", "-rc"} {
		if !strings.Contains(got, part) {
			t.Fatalf("%q lacks %q", got, part)
		}
	}
}

func TestFingerprint(t *testing.T) {
	origV, origC := Version, GitCommit
	defer func() { Version, GitCommit = origV, origC }()

	Version, GitCommit = "1.0.0", ""
	if got := Fingerprint(); got != "1.0.0" {
		t.Fatalf("got %q", got)
	}
	GitCommit = "abc123"
	if got := Fingerprint(); got != "1.0.0+abc123" {
		t.Fatalf("got %q", got)
	}
}
