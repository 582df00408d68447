package healthfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStartingThenRunningTransitionsExactlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "health")
	w := New(path)

	if err := w.Starting(); err != nil {
		t.Fatalf("Starting: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(got)) != "1 starting" {
		t.Fatalf("got %q, want %q", got, "1 starting")
	}

	if err := w.Running(); err != nil {
		t.Fatalf("Running: %v", err)
	}
	got, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(got)) != "0 running" {
		t.Fatalf("got %q, want %q", got, "0 running")
	}
}

func TestUnhealthyReportsMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "health")
	w := New(path)

	if err := w.Unhealthy("vm line-card-2 stopped"); err != nil {
		t.Fatalf("Unhealthy: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(got)) != "1 vm line-card-2 stopped" {
		t.Fatalf("got %q", got)
	}
}
