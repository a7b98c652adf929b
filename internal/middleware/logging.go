package middleware

import (
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// statusRecorder remembers the status code and response size for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
	sent    bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.sent {
		return
	}
	s.status, s.sent = code, true
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	s.sent = true
	n, err := s.ResponseWriter.Write(p)
	s.written += int64(n)
	return n, err
}

// LoggingConfig controls which requests reach the access log.
type LoggingConfig struct {
	// SkipPaths are path prefixes that are never logged.
	SkipPaths       []string
	LogHealthChecks bool
}

func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{LogHealthChecks: true}
}

var probePaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

func (c LoggingConfig) skips(path string) bool {
	if !c.LogHealthChecks && probePaths[path] {
		return true
	}
	for _, prefix := range c.SkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Logger writes one W3C Extended Log Format line per request:
//
//	date time c-ip cs-method cs-uri-stem cs-uri-query sc-status cs-bytes sc-bytes time-taken cs(User-Agent) cs(Referer)
//
// cs-bytes is the declared request length, -1 when unknown (chunked uploads).
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.skips(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			began := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			//nolint:gosec // client-controlled values are cleaned by w3cField
			log.Println(accessLine(began.UTC(), time.Since(began), r, rec))
		})
	}
}

func accessLine(at time.Time, took time.Duration, r *http.Request, rec *statusRecorder) string {
	fields := []string{
		at.Format("2006-01-02"),
		at.Format("15:04:05"),
		w3cField(clientIP(r)),
		w3cField(r.Method),
		w3cField(r.URL.Path),
		w3cField(r.URL.RawQuery),
		strconv.Itoa(rec.status),
		strconv.FormatInt(r.ContentLength, 10),
		strconv.FormatInt(rec.written, 10),
		strconv.FormatInt(took.Milliseconds(), 10),
		w3cField(r.UserAgent()),
		w3cField(r.Referer()),
	}
	return strings.Join(fields, " ")
}

// w3cField makes a client-supplied value safe for a single log line: control
// characters are dropped (CR and LF become spaces), an empty value becomes
// "-", and values with blanks or quotes are quoted with inner quotes doubled.
func w3cField(s string) string {
	s = stripControl(s)
	switch {
	case s == "":
		return "-"
	case strings.ContainsAny(s, " \t\""):
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	default:
		return s
	}
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\r' || r == '\n':
			return ' '
		case r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}

// clientIP prefers proxy headers over the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
