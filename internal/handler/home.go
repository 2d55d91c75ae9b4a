package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Home returns a small JSON index of the proxy endpoints.
func Home(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"message": "HLS cross-origin proxy",
		"endpoints": map[string]string{
			"m3u8":   "/m3u8-proxy?url={m3u8_url}&headers={url-encoded JSON object}",
			"ts":     "/ts-proxy?url={segment_or_key_url}&headers={url-encoded JSON object}",
			"health": "/health",
		},
	})
}
