package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
}

func TestCacheControlHeadersPerRoute(t *testing.T) {
	handler := CacheControl(okHandler("{}"))

	cases := []struct {
		path string
		want string
	}{
		{"/api/models", "public, max-age=60, must-revalidate"},
		{"/api/models/validate", "public, max-age=300, must-revalidate"},
		{"/api/enhancements/job-1", "private, no-cache, must-revalidate"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", tc.path, nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, tc.want, w.Header().Get("Cache-Control"), tc.path)
	}
}

func TestETagReturnsNotModifiedOnMatch(t *testing.T) {
	handler := ETag(okHandler(`{"models":[]}`))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest("GET", "/api/models", nil))
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest("GET", "/api/models", nil)
	req.Header.Set("If-None-Match", etag)
	second := httptest.NewRecorder()

	handler.ServeHTTP(second, req)

	assert.Equal(t, http.StatusNotModified, second.Code)
	assert.Empty(t, second.Body.String())
}

func TestResponseOptimizationBypassesEventStreams(t *testing.T) {
	var flushable bool
	handler := ResponseOptimization(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushable = w.(http.Flusher)
		w.Write([]byte("data: hello\n\n"))
	}))

	req := httptest.NewRequest("GET", "/api/enhancements/stream", nil)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	// no gzip, no buffering: events must reach the client as they happen
	assert.True(t, flushable)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "data: hello\n\n", w.Body.String())
}

func TestCompressionEncodesWhenAccepted(t *testing.T) {
	handler := ResponseOptimization(okHandler(`{"models":[]}`))

	req := httptest.NewRequest("GET", "/api/models", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
}
