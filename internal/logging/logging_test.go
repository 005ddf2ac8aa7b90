package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/Makepad-fr/tada/internal/config"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LogConfig{Level: "info", Format: "json"}, &buf)
	logger.WithField("op", "create").Info("persistence failed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not json: %q: %v", buf.String(), err)
	}
	if entry["msg"] != "persistence failed" || entry["op"] != "create" || entry["level"] != "info" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LogConfig{Level: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestBadLevelFallsBackToWarn(t *testing.T) {
	logger := NewWithWriter(config.LogConfig{Level: "loud"}, &bytes.Buffer{})
	if logger.GetLevel() != log.WarnLevel {
		t.Fatalf("got level %v", logger.GetLevel())
	}
}
