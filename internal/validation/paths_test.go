package validation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewSecurePathHandler(t *testing.T) {
	ph := NewSecurePathHandler()
	if len(ph.AllowedBaseDirs) != 3 {
		t.Fatalf("expected 3 base dirs, got %v", ph.AllowedBaseDirs)
	}
	if ph.MaxPathLength != 4096 {
		t.Errorf("MaxPathLength = %d, want 4096", ph.MaxPathLength)
	}

	if len(NewPermissivePathHandler().AllowedBaseDirs) != 0 {
		t.Error("permissive handler should allow every directory")
	}
}

func TestExpandAndValidatePath(t *testing.T) {
	ph := NewPermissivePathHandler()
	home, _ := os.UserHomeDir()

	tests := []struct {
		name        string
		input       string
		expected    string
		shouldError bool
	}{
		{name: "empty", input: "", shouldError: true},
		{name: "home expansion", input: "~/capture.db", expected: filepath.Join(home, "capture.db")},
		{name: "absolute", input: "/var/tmp/capture.db", expected: "/var/tmp/capture.db"},
		{name: "traversal", input: "/var/tmp/../etc/passwd", shouldError: true},
		{name: "null byte", input: "/tmp/a\x00b", shouldError: true},
		{name: "control character", input: "/tmp/a\nb", shouldError: true},
		{name: "other user home", input: "~root/capture.db", shouldError: true},
		{name: "too long", input: "/" + strings.Repeat("a", 5000), shouldError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ph.ExpandAndValidatePath(tt.input)
			if tt.shouldError {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("ExpandAndValidatePath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}

	rel, err := ph.ExpandAndValidatePath("capture.db")
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(rel) {
		t.Errorf("relative path not made absolute: %s", rel)
	}
}

func TestBaseDirs(t *testing.T) {
	base := t.TempDir()
	ph := &PathHandler{AllowedBaseDirs: []string{base}, MaxPathLength: 4096}

	if _, err := ph.ExpandAndValidatePath(filepath.Join(base, "sub", "capture.db")); err != nil {
		t.Errorf("path inside base dir rejected: %v", err)
	}
	if _, err := ph.ExpandAndValidatePath(base + "-sibling/capture.db"); !errors.Is(err, ErrUnsafePath) {
		t.Errorf("sibling of base dir accepted, err = %v", err)
	}
	if _, err := ph.ExpandAndValidatePath("/etc/capture.db"); !errors.Is(err, ErrUnsafePath) {
		t.Errorf("path outside base dir accepted, err = %v", err)
	}
}

func TestCaptureAndIndexPaths(t *testing.T) {
	dir := t.TempDir()
	ph := NewPermissivePathHandler()

	file := filepath.Join(dir, "capture.db")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := ph.CapturePath(file); err != nil {
		t.Errorf("existing capture file rejected: %v", err)
	}
	if _, err := ph.CapturePath(dir); err == nil {
		t.Error("directory accepted as capture file")
	}

	if _, err := ph.IndexPath(filepath.Join(dir, "index.bleve")); err != nil {
		t.Errorf("new index path rejected: %v", err)
	}
	if _, err := ph.IndexPath(file); err == nil {
		t.Error("regular file accepted as index directory")
	}
}

func TestLogPathDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := NewSecurePathHandler().LogPath("")
	if err != nil {
		t.Fatalf("LogPath(\"\") error = %v", err)
	}
	if got != filepath.Join(home, ".streamview", "streamview.log") {
		t.Errorf("LogPath(\"\") = %s", got)
	}
}

func TestIsPathSafe(t *testing.T) {
	tests := map[string]bool{
		"/tmp/capture.db":   true,
		"~/x..y/capture.db": true,
		"../capture.db":     false,
		"/a/../b":           false,
		`C:\a\..\b`:         false,
		"/tmp/a\x00":        false,
	}
	for path, want := range tests {
		if got := IsPathSafe(path); got != want {
			t.Errorf("IsPathSafe(%q) = %v, want %v", path, got, want)
		}
	}
	if IsPathSafe(strings.Repeat("a", 5000)) {
		t.Error("overlong path reported safe")
	}
}
