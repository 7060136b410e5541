package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestWithEnv(t *testing.T) {
	os.Setenv("FOO", "bar")
	log := Logger()
	entry := log.WithEnv("FOO")
	if v, ok := entry.Entry.Data["FOO"]; !ok || v != "bar" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logrus.DebugLevel)
	log.WithComponent("transport").WithField("state", "connected").Info("state change")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if line["message"] != "state change" || line["component"] != "transport" || line["state"] != "connected" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestWarnCountsPerComponent(t *testing.T) {
	log := New(&bytes.Buffer{}, logrus.InfoLevel)
	before := statFor("counting").warns
	log.WithComponent("counting").Warn("one")
	log.WithComponent("counting").Warn("two")
	if got := statFor("counting").warns - before; got != 2 {
		t.Fatalf("expected 2 warnings recorded, got %d", got)
	}
}

func TestReportIncludesCounters(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logrus.InfoLevel)
	logReport(context.Background(), log, func() Counters {
		return Counters{"events_dropped": 5}
	})
	if !bytes.Contains(buf.Bytes(), []byte(`"events_dropped":5`)) {
		t.Fatalf("counters missing from report: %s", buf.String())
	}
}

func TestStartReportStopsWithContext(t *testing.T) {
	var calls int
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	StartReport(ctx, Discard(), 5*time.Millisecond, func() Counters {
		calls++
		if calls == 2 {
			close(done)
		}
		return nil
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("report did not run")
	}
	cancel()
}

func TestLogMetricWritesLine(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logrus.InfoLevel)
	log.WithComponent("stream").LogMetric("stream", "reconnects", int64(1), "", Fields{"exchange": "okx"})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("metric line is not JSON: %v (%q)", err, buf.String())
	}
	if line["metric"] != "reconnects" || line["metric_type"] != "counter" || line["exchange"] != "okx" {
		t.Fatalf("unexpected metric line: %v", line)
	}
	if line["value"] != float64(1) {
		t.Fatalf("unexpected metric value: %v", line["value"])
	}
}
