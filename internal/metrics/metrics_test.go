package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestRecord(t *testing.T) {
	m := New()

	m.RecordChat(StatusOK, time.Second)
	m.RecordChat(StatusDegraded, time.Second)
	m.RecordChat(StatusOK, time.Second)
	m.RecordToolCall("add_task", StatusError, time.Millisecond)
	m.RecordExchange("first", StatusOK, time.Second, 100, 20)
	m.RecordHTTPRequest("POST", "/v1/chat", 200, 50*time.Millisecond)
	m.SetModelUp(true)

	out := scrape(t, m)
	for _, want := range []string{
		`tick_chat_requests_total{status="ok"} 2`,
		`tick_chat_requests_total{status="degraded"} 1`,
		`tick_tool_calls_total{status="error",tool="add_task"} 1`,
		`tick_model_exchanges_total{phase="first",status="ok"} 1`,
		`tick_model_tokens_total{direction="input"} 100`,
		`tick_model_tokens_total{direction="output"} 20`,
		`tick_http_requests_total{code="200",method="POST",route="/v1/chat"} 1`,
		"tick_model_up 1",
		"tick_uptime_seconds",
		"tick_build_info",
		"go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordChat(StatusOK, time.Second)
	m.RecordExchange("first", StatusOK, time.Second, 1, 1)
	m.RecordToolCall("x", StatusOK, time.Second)
	m.RecordHTTPRequest("GET", "/health", 200, time.Second)
	m.SetModelUp(false)
}

func TestModelUpFlips(t *testing.T) {
	m := New()
	if out := scrape(t, m); !strings.Contains(out, "tick_model_up 0") {
		t.Error("model should start down")
	}
	m.SetModelUp(true)
	m.SetModelUp(false)
	if out := scrape(t, m); !strings.Contains(out, "tick_model_up 0") {
		t.Error("model_up did not follow the last probe")
	}
}
