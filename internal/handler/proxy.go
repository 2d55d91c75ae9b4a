// Package handler serves the playlist and segment proxy endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/Cat-Ling/pp-stream/internal/fetch"
	"github.com/Cat-Ling/pp-stream/internal/hlsproxy"
)

var (
	errMissingURL     = errors.New("URL parameter is required")
	errInvalidURL     = errors.New("Invalid URL parameter")
	errInvalidHeaders = errors.New("Invalid headers format")
)

// ProxyHandler handles the /m3u8-proxy and /ts-proxy routes.
type ProxyHandler struct {
	gateway  *fetch.Gateway
	rewriter *hlsproxy.Rewriter
	logger   *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(gw *fetch.Gateway, rw *hlsproxy.Rewriter, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		gateway:  gw,
		rewriter: rw,
		logger:   logger.With("component", "proxy_handler"),
	}
}

// M3U8 fetches a playlist, rewrites every reference through the proxy and
// returns the result as an HLS manifest.
func (h *ProxyHandler) M3U8(c echo.Context) error {
	target, headers, err := parseRequest(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	body, err := h.gateway.Text(c.Request().Context(), target.String(), headers)
	if err != nil {
		return h.originError(c, target.String(), err)
	}

	rewritten := h.rewriter.Rewrite(body, target.String(), headers)
	return c.Blob(http.StatusOK, "application/vnd.apple.mpegurl", []byte(rewritten))
}

// TS streams segment or key bytes back to the client unmodified.
func (h *ProxyHandler) TS(c echo.Context) error {
	target, headers, err := parseRequest(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	resp, err := h.gateway.Open(c.Request().Context(), target.String(), headers)
	if err != nil {
		return h.originError(c, target.String(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.Response().Header().Set(echo.HeaderContentType, "video/mp2t")
	c.Response().WriteHeader(resp.StatusCode)

	// Once the status line is out a mid-stream failure can only truncate
	// the response, so it is logged rather than mapped to an error page.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming segment body", "err", err, "url", target.String())
	}
	return nil
}

// parseRequest extracts and validates the url and headers query parameters.
func parseRequest(c echo.Context) (*url.URL, map[string]string, error) {
	raw := c.QueryParam("url")
	if raw == "" {
		return nil, nil, errMissingURL
	}

	headers := make(map[string]string)
	if param := c.QueryParam("headers"); param != "" {
		if err := json.Unmarshal([]byte(param), &headers); err != nil {
			return nil, nil, errInvalidHeaders
		}
	}

	target, ok := hlsproxy.Resolve(raw, "")
	if !ok {
		return nil, nil, errInvalidURL
	}
	return target, headers, nil
}

func (h *ProxyHandler) originError(c echo.Context, target string, err error) error {
	h.logger.Error("origin fetch failed", "err", err, "url", target, "path", c.Path())

	var ue *fetch.UpstreamError
	if errors.As(err, &ue) {
		return c.String(http.StatusInternalServerError,
			fmt.Sprintf("Failed to fetch content: upstream responded with status %d", ue.StatusCode))
	}
	return c.String(http.StatusInternalServerError, "Failed to fetch content from upstream server")
}
