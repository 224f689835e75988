package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/YuminosukeSato/landstack/pkg/errors"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestZerologLogger_LevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo)

	logger.Debug("hidden")
	logger.With(LabelKey, "BP").Info("fitted", LearnerKey, "rf", AUCKey, 0.9)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d: %s", len(lines), buf.String())
	}
	rec := lines[0]
	if rec["message"] != "fitted" {
		t.Errorf("message = %v", rec["message"])
	}
	if rec[LabelKey] != "BP" || rec[LearnerKey] != "rf" {
		t.Errorf("missing fields: %v", rec)
	}
	if rec[AUCKey] != 0.9 {
		t.Errorf("auc = %v", rec[AUCKey])
	}
}

func TestZerologLogger_ErrorField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug)

	logger.Error("fit failed", errors.New("boom"), StageKey, StageBase)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d", len(lines))
	}
	if lines[0]["error"] != "boom" {
		t.Errorf("error field = %v", lines[0]["error"])
	}
	if lines[0][StageKey] != StageBase {
		t.Errorf("stage field = %v", lines[0][StageKey])
	}
}

func TestZerologLogger_Enabled(t *testing.T) {
	logger := NewZerologLogger(&bytes.Buffer{}, LevelWarn)
	ctx := context.Background()
	if logger.Enabled(ctx, LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !logger.Enabled(ctx, LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractStacktrace(t *testing.T) {
	err := errors.NewValueError("test", "bad value")
	if st := extractStacktrace(err); st == "" {
		t.Error("expected a stack trace from a WithStack error")
	}
	if st := extractStacktrace(nil); st != "" {
		t.Errorf("nil error gave %q", st)
	}
}

func TestTestLogger(t *testing.T) {
	logger, _ := NewTestLogger(LevelInfo)

	child := logger.With(LabelKey, "CP")
	child.Debug("dropped")
	child.Info("linked", SamplesKey, 42)
	child.Error("failed", errors.New("bad"))

	entries, err := logger.GetLogEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !logger.ContainsMessage("linked") {
		t.Error("missing linked message")
	}
	if !logger.ContainsField(SamplesKey, float64(42)) {
		t.Error("missing samples field")
	}
	if !logger.ContainsField(ErrAttrKey, "bad") {
		t.Error("missing error field")
	}
	if !logger.ContainsField(LabelKey, "CP") {
		t.Error("child fields not inherited")
	}

	logger.Clear()
	if logger.ContainsMessage("linked") {
		t.Error("Clear did not reset buffer")
	}
}
