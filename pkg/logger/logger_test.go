package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"debug", *DebugConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
		{"writer overrides output", Config{Level: InfoLevel, Format: JSONFormat, Writer: &bytes.Buffer{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFieldsAccumulate(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(&Config{Level: DebugLevel, Format: JSONFormat, Writer: &buf})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	log.WithComponent("matcher").
		WithField("statement_id", "s1").
		WithError(errors.New("boom")).
		Info("run finished")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "matcher" {
		t.Errorf("expected component field, got %v", entry["component"])
	}
	if entry["statement_id"] != "s1" {
		t.Errorf("expected statement_id field, got %v", entry["statement_id"])
	}
	if entry["error"] != "boom" {
		t.Errorf("expected error field, got %v", entry["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(&Config{Level: WarnLevel, Format: TextFormat, Writer: &buf, DisableTimestamp: true})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	log.Info("hidden")
	log.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message should be written")
	}
}

func TestProgressTracker(t *testing.T) {
	tracker := NewProgressTracker(ProgressConfig{Operation: "automatch", Total: 4, Logger: NewNopLogger()})
	for i := 0; i < 3; i++ {
		tracker.Increment()
	}

	stats := tracker.GetStats()
	if stats.Current != 3 {
		t.Errorf("expected 3 processed, got %d", stats.Current)
	}
	if stats.Percentage != 75 {
		t.Errorf("expected 75%%, got %v", stats.Percentage)
	}
	if !strings.HasPrefix(stats.String(), "automatch: 3/4") {
		t.Errorf("unexpected stats string %q", stats.String())
	}
	tracker.Complete()
}

func TestTimedOperation(t *testing.T) {
	want := errors.New("failed")
	if got := TimedOperation("import", NewNopLogger(), func() error { return want }); got != want {
		t.Errorf("expected error to be returned unchanged, got %v", got)
	}
}
