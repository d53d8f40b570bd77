package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bdobrica/leva/common/trace"
	"github.com/bdobrica/leva/internal/leva/memory"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerWithTrace(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, "info", "json")

	ctx := trace.WithTraceID(context.Background(), "t_abc")
	LoggerWithTrace(ctx, base).Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if line["trace_id"] != "t_abc" {
		t.Errorf("trace_id = %v, want t_abc", line["trace_id"])
	}

	if got := LoggerWithTrace(context.Background(), base); got != base {
		t.Error("without a trace id the base logger should be returned")
	}
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "warn", "text")
	l.Info("quiet")
	l.Warn("loud")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "loud") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestMetrics_Recorder(t *testing.T) {
	m := NewMetrics("leva")
	m.FlushCompleted(memory.FlushOK, time.Second)
	m.FlushCompleted(memory.FlushOK, time.Second)
	m.FlushCompleted(memory.FlushSummariseFailed, time.Second)
	m.TurnsEvicted(2)

	if got := testutil.ToFloat64(m.Flushes.WithLabelValues(memory.FlushOK)); got != 2 {
		t.Errorf("ok flushes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Flushes.WithLabelValues(memory.FlushSummariseFailed)); got != 1 {
		t.Errorf("failed flushes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EvictedTurns); got != 2 {
		t.Errorf("evicted = %v, want 2", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("leva")
	m.ObserveReply("ok", 300*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `leva_chat_replies_total{outcome="ok"} 1`) {
		t.Errorf("metrics output missing reply counter:\n%s", body)
	}
}

func TestNewMetrics_Independent(t *testing.T) {
	// Separate registries: creating two must not panic on duplicate registration.
	NewMetrics("leva")
	NewMetrics("leva")
}
