package utils

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateDebugFilenameUnique(t *testing.T) {
	dir := t.TempDir()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		p := GenerateDebugFilename(dir, "debug", "png")
		if seen[p] {
			t.Fatalf("Duplicate filename %s", p)
		}
		seen[p] = true
		if filepath.Dir(p) != dir {
			t.Errorf("Expected file in %s, got %s", dir, p)
		}
		if !strings.HasPrefix(filepath.Base(p), "debug_") || !strings.HasSuffix(p, ".png") {
			t.Errorf("Unexpected name %s", p)
		}
	}
}

func TestGenerateDebugFilenameFormat(t *testing.T) {
	if p := GenerateDebugFilename("out", "a/b", "jpeg"); !strings.HasSuffix(p, ".jpg") || strings.Contains(filepath.Base(p), "/") {
		t.Errorf("Unexpected name %s", p)
	}
}

func TestIsImageFile(t *testing.T) {
	for name, want := range map[string]bool{
		"photo.PNG":  true,
		"photo.jpeg": true,
		"photo.webp": true,
		"photo.gif":  false,
		"photo":      false,
	} {
		if got := IsImageFile(name); got != want {
			t.Errorf("IsImageFile(%q) = %v", name, got)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	if FileExists(dir) {
		t.Error("FileExists should be false for directories")
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := SanitizeFilename(" ../x:y "); got != "_x_y" {
		t.Errorf("Unexpected %q", got)
	}
}
