package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestCacheControlHeaderValue(t *testing.T) {
	tests := []struct {
		name   string
		config CacheControlConfig
		want   string
	}{
		{
			name:   "no store",
			config: CacheControlConfig{NoStore: true},
			want:   "no-cache, no-store, must-revalidate",
		},
		{
			name:   "public hour",
			config: CacheControlConfig{MaxAge: 1 * time.Hour, Public: true},
			want:   "public, max-age=3600",
		},
		{
			name:   "private with revalidate",
			config: CacheControlConfig{MaxAge: 30 * time.Second, MustRevalidate: true},
			want:   "private, max-age=30, must-revalidate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.headerValue(); got != tt.want {
				t.Errorf("headerValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCacheControlSetOnSuccess(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ts-proxy", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := CacheControlWithConfig(CacheControlConfig{MaxAge: 1 * time.Hour, Public: true})
	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "segment bytes")
	}
	if err := mw(handler)(c); err != nil {
		t.Fatalf("middleware returned error: %v", err)
	}

	if got := rec.Header().Get(echo.HeaderCacheControl); got != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q, want public, max-age=3600", got)
	}
}

func TestCacheControlSkippedOnError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ts-proxy", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := CacheControlWithConfig(CacheControlConfig{MaxAge: 1 * time.Hour, Public: true})
	handler := func(c echo.Context) error {
		return c.String(http.StatusInternalServerError, "Failed to fetch content from upstream server")
	}
	if err := mw(handler)(c); err != nil {
		t.Fatalf("middleware returned error: %v", err)
	}

	if got := rec.Header().Get(echo.HeaderCacheControl); got != "" {
		t.Errorf("Cache-Control = %q on error response, want it unset", got)
	}
}
