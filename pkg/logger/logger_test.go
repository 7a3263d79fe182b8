package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		records = append(records, rec)
	}
	return records
}

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{DEBUG, 4},
		{INFO, 3},
		{WARN, 2},
		{ERROR, 1},
		{"bogus", 3},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Level: tt.level, Output: &buf})
			log.Debug("d")
			log.Info("i")
			log.Warn("w")
			log.Error("e")
			if got := len(decodeLines(t, &buf)); got != tt.want {
				t.Errorf("got %d records, want %d", got, tt.want)
			}
		})
	}
}

func TestLogger_ScopedChildren(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf, Service: "holds"})

	log.Component("hold_sweeper").Tenant("tenant-1").Info("Hold sweep finished", "expired", 2)
	log.Info("unscoped")

	records := decodeLines(t, &buf)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	scoped := records[0]
	if scoped[SERVICE] != "holds" || scoped[COMPONENT] != "hold_sweeper" || scoped[TENANT] != "tenant-1" {
		t.Errorf("unexpected scoped record %v", scoped)
	}
	if scoped["expired"] != float64(2) {
		t.Errorf("expected expired=2, got %v", scoped["expired"])
	}
	if _, ok := records[1][COMPONENT]; ok {
		t.Error("child attributes must not leak into the parent logger")
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Format: "text", Output: &buf}).Tenant("tenant-1").Info("hello")
	if !strings.Contains(buf.String(), "tenant_id=tenant-1") || !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("unexpected text output %q", buf.String())
	}
}
