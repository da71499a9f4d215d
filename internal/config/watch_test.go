package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.json")
	if err := Default().SaveToFile(path); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	errs := make(chan error, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { changes <- c }, func(err error) { errs <- err })
	}()

	updated := Default()
	updated.Measurement.ToleranceMM = 0.8

	// Rewrite until the watcher, which starts asynchronously, picks a write up
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		if err := updated.SaveToFile(path); err != nil {
			t.Fatal(err)
		}
		select {
		case c := <-changes:
			if c.Measurement.ToleranceMM != 0.8 {
				t.Fatalf("Expected tolerance 0.8, got %v", c.Measurement.ToleranceMM)
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch returned %v", err)
			}
			return
		case err := <-errs:
			t.Fatalf("Unexpected reload error: %v", err)
		case <-deadline:
			t.Fatal("No reload observed")
		case <-tick.C:
		}
	}
}

func TestWatchReportsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.json")
	if err := Default().SaveToFile(path); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 4)
	go Watch(ctx, path, func(c *Config) { t.Errorf("Invalid file must not be applied") }, func(err error) { errs <- err })

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		if err := os.WriteFile(path, []byte(`{"measurement": {"tolerance_mm": -1}}`), 0644); err != nil {
			t.Fatal(err)
		}
		select {
		case err := <-errs:
			if err == nil {
				t.Fatal("Expected an error")
			}
			return
		case <-deadline:
			t.Fatal("No reload error observed")
		case <-tick.C:
		}
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "absent", "config.json"), func(*Config) {}, nil)
	if err == nil {
		t.Fatal("Expected an error for a missing directory")
	}
}
