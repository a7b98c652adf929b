package middleware

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"media-ingest/internal/metrics"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newStatusRecorder(rec)

	if rw.status != http.StatusOK {
		t.Errorf("default status = %d, want 200", rw.status)
	}

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	if _, err := rw.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	if rw.status != http.StatusCreated {
		t.Errorf("status = %d, want first WriteHeader to win", rw.status)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("recorder status = %d", rec.Code)
	}
	if rw.written != 5 {
		t.Errorf("written = %d, want 5", rw.written)
	}
}

func TestStripControl(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "/api/uploads/avatar", "/api/uploads/avatar"},
		{"newline", "a\nb", "a b"},
		{"carriage return", "a\r\nb", "a  b"},
		{"null byte", "a\x00b", "ab"},
		{"ansi escape", "\x1b[31mred", "[31mred"},
		{"tab kept", "a\tb", "a\tb"},
		{"other control", "a\x07b", "ab"},
		{"delete", "a\x7fb", "ab"},
		{"unicode", "café", "café"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripControl(tt.in); got != tt.want {
				t.Errorf("stripControl(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestW3CField(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "-"},
		{"curl/8.0", "curl/8.0"},
		{"a\nb", `"a b"`},
		{"Mozilla/5.0 (X11)", `"Mozilla/5.0 (X11)"`},
		{`say "hi"`, `"say ""hi"""`},
	}

	for _, tt := range tests {
		if got := w3cField(tt.in); got != tt.want {
			t.Errorf("w3cField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "remote addr", remoteAddr: "10.0.0.1:5555", want: "10.0.0.1"},
		{name: "forwarded list", remoteAddr: "10.0.0.1:5555", headers: map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8"}, want: "1.2.3.4"},
		{name: "forwarded single", remoteAddr: "10.0.0.1:5555", headers: map[string]string{"X-Forwarded-For": " 1.2.3.4 "}, want: "1.2.3.4"},
		{name: "real ip", remoteAddr: "10.0.0.1:5555", headers: map[string]string{"X-Real-IP": "9.9.9.9"}, want: "9.9.9.9"},
		{name: "ipv6", remoteAddr: "[::1]:8080", want: "::1"},
		{name: "no port", remoteAddr: "unix", want: "unix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoggingConfigSkips(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		config LoggingConfig
		want   bool
	}{
		{"health logged by default", "/healthz", DefaultLoggingConfig(), false},
		{"health skipped", "/healthz", LoggingConfig{}, true},
		{"readyz skipped", "/readyz", LoggingConfig{}, true},
		{"upload never skipped", "/api/uploads/avatar", LoggingConfig{}, false},
		{"skip prefix", "/metrics", LoggingConfig{SkipPaths: []string{"/metrics"}, LogHealthChecks: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.skips(tt.path); got != tt.want {
				t.Errorf("skips(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	buf := captureLog(t)

	handler := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/uploads/avatar?x=1", strings.NewReader("abcd"))
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("User-Agent", "test agent")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := strings.TrimSpace(buf.String())
	fields := strings.Fields(line)
	if len(fields) < 12 {
		t.Fatalf("log line has %d fields: %q", len(fields), line)
	}
	want := []string{"192.0.2.1", "POST", "/api/uploads/avatar", "x=1", "201", "4", "11"}
	for i, w := range want {
		if fields[i+2] != w {
			t.Errorf("field %d = %q, want %q (line %q)", i+2, fields[i+2], w, line)
		}
	}
	if !strings.Contains(line, `"test agent"`) {
		t.Errorf("user agent not quoted: %q", line)
	}
}

func TestLoggerSkipsHealthChecks(t *testing.T) {
	buf := captureLog(t)

	called := false
	handler := Logger(LoggingConfig{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))

	if !called {
		t.Error("handler was not called")
	}
	if buf.Len() != 0 {
		t.Errorf("health check was logged: %q", buf.String())
	}
}

func TestLoggerSanitizesInjection(t *testing.T) {
	buf := captureLog(t)

	handler := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Referer", "x\nFAKE LINE")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Errorf("expected a single log line, got %d: %q", n, buf.String())
	}
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Metrics(DefaultMetricsConfig()))
	router.HandleFunc("/api/uploads/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/uploads/{name}", "404")
	before := testutil.ToFloat64(counter)

	for _, name := range []string{"a", "b", "c"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/uploads/"+name, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Errorf("requests recorded under template = %v, want 3", got)
	}
}

func TestMetricsSkipPaths(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Metrics(DefaultMetricsConfig()))
	router.HandleFunc("/healthz", func(http.ResponseWriter, *http.Request) {})

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200")
	before := testutil.ToFloat64(counter)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if got := testutil.ToFloat64(counter); got != before {
		t.Errorf("health check was recorded: before %v after %v", before, got)
	}
}

func TestRouteLabelUnmatched(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	if got := routeLabel(req); got != "unmatched" {
		t.Errorf("routeLabel() = %q, want unmatched", got)
	}
}

func TestMaxBody(t *testing.T) {
	tests := []struct {
		name    string
		limit   int64
		body    string
		wantErr bool
	}{
		{name: "under limit", limit: 10, body: "12345"},
		{name: "at limit", limit: 5, body: "12345"},
		{name: "over limit", limit: 4, body: "12345", wantErr: true},
		{name: "disabled", limit: 0, body: strings.Repeat("x", 1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var readErr error
			handler := MaxBody(tt.limit)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				_, readErr = io.ReadAll(r.Body)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)))

			var maxErr *http.MaxBytesError
			if got := errors.As(readErr, &maxErr); got != tt.wantErr {
				t.Errorf("MaxBytesError = %v, want %v (err %v)", got, tt.wantErr, readErr)
			}
		})
	}
}
