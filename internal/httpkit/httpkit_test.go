package httpkit

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
)

func TestNewClient_SetsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	resp, err := NewClient(WithUserAgent("tick-test/1")).Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if got != "tick-test/1" {
		t.Errorf("User-Agent = %q, want %q", got, "tick-test/1")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, true},
		{"unreachable", syscall.EHOSTUNREACH, true},
		{"reset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestReadErrorBody_Limit(t *testing.T) {
	body := io.NopCloser(strings.NewReader("0123456789"))
	if got := ReadErrorBody(body, 4); got != "0123" {
		t.Errorf("ReadErrorBody = %q, want %q", got, "0123")
	}
	if got := ReadErrorBody(nil, 4); got != "" {
		t.Errorf("ReadErrorBody(nil) = %q, want empty", got)
	}
}

func TestNewClient_LogsRoundTrips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	resp, err := NewClient(WithLogger(logger)).Get(srv.URL + "/api/chat")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	out := buf.String()
	if !strings.Contains(out, "outbound request") || !strings.Contains(out, "status=418") || !strings.Contains(out, "path=/api/chat") {
		t.Errorf("log output = %q", out)
	}
}
