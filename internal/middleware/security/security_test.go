package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetector_ExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"direct peer", "203.0.113.7:5000", nil, "203.0.113.7"},
		{"untrusted peer ignores XFF", "203.0.113.7:5000", map[string]string{"X-Forwarded-For": "198.51.100.1"}, "203.0.113.7"},
		{"trusted proxy uses first XFF hop", "10.0.0.2:80", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.5"}, "198.51.100.1"},
		{"trusted proxy falls back to X-Real-IP", "127.0.0.1:80", map[string]string{"X-Forwarded-For": "garbage", "X-Real-IP": "198.51.100.9"}, "198.51.100.9"},
		{"trusted proxy without headers", "192.168.1.1:80", nil, "192.168.1.1"},
		{"unparseable remote addr", "not-an-ip", nil, "not-an-ip"},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/summary", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, d.ExtractClientIP(r))
		})
	}
}

func TestDetector_AddTrustedProxy(t *testing.T) {
	d := NewDetector()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:443"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")

	assert.Equal(t, "203.0.113.7", d.ExtractClientIP(r))
	require.NoError(t, d.AddTrustedProxy("203.0.113.0/24"))
	assert.Equal(t, "198.51.100.1", d.ExtractClientIP(r))

	assert.Error(t, d.AddTrustedProxy("nope"))
}

func TestDetector_DetectSuspiciousRequest(t *testing.T) {
	d := NewDetector()

	ok := httptest.NewRequest(http.MethodPost, "/api/allocations/move", nil)
	ok.Header.Set("User-Agent", "curl/8.5.0")
	assert.False(t, d.DetectSuspiciousRequest(ok))

	probe := httptest.NewRequest(http.MethodGet, "/.env", nil)
	assert.True(t, d.DetectSuspiciousRequest(probe))

	injection := httptest.NewRequest(http.MethodGet, "/api/accounts?q=1%20union%20select", nil)
	assert.True(t, d.DetectSuspiciousRequest(injection))

	scanner := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	scanner.Header.Set("User-Agent", "sqlmap/1.7")
	assert.True(t, d.DetectSuspiciousRequest(scanner))

	trace := httptest.NewRequest("TRACE", "/", nil)
	assert.True(t, d.DetectSuspiciousRequest(trace))
}

func TestDetector_MiddlewareNeverBlocks(t *testing.T) {
	d := NewDetector()
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wp-admin", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"), "HSTS is only sent over TLS")

	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/summary", nil)
	r.TLS = &tls.ConnectionState{}
	h.ServeHTTP(rec, r)
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}
