package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewDisabled(t *testing.T) {
	logger, closer, err := New("", true)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer closer.Close()
	// Nop logger must accept writes silently
	logger.Info().Msg("discarded")
}

func TestNewWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "devpanel.log")
	logger, closer, err := New(path, false)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Debug().Msg("hidden")
	logger.Info().Str("service", "api").Msg("installing")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file, got %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"service":"api"`) || !strings.Contains(out, `"message":"installing"`) {
		t.Errorf("expected structured entry, got %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("expected debug entry filtered at info level, got %q", out)
	}
}

func TestServiceOutput(t *testing.T) {
	w, err := ServiceOutput("", "api")
	if err != nil || w != nil {
		t.Errorf("expected nil writer for empty dir, got %v, %v", w, err)
	}

	dir := t.TempDir()
	w, err = ServiceOutput(dir, "web")
	if err != nil {
		t.Fatalf("ServiceOutput failed: %v", err)
	}
	if _, err := w.Write([]byte("ready on 3000\n")); err != nil {
		t.Fatal(err)
	}
	w.Close()

	data, err := os.ReadFile(filepath.Join(dir, "web.log"))
	if err != nil {
		t.Fatalf("expected web.log, got %v", err)
	}
	if string(data) != "ready on 3000\n" {
		t.Errorf("expected server output in file, got %q", string(data))
	}
}

func TestNewLeavesGlobalTimeFormat(t *testing.T) {
	orig := zerolog.TimeFieldFormat
	zerolog.TimeFieldFormat = time.Kitchen
	t.Cleanup(func() { zerolog.TimeFieldFormat = orig })

	_, closer, err := New(filepath.Join(t.TempDir(), "devpanel.log"), false)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	closer.Close()

	if zerolog.TimeFieldFormat != time.Kitchen {
		t.Errorf("expected time format %q untouched, got %q", time.Kitchen, zerolog.TimeFieldFormat)
	}
}
