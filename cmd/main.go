package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/Cat-Ling/pp-stream/config"
	"github.com/Cat-Ling/pp-stream/internal/fetch"
	"github.com/Cat-Ling/pp-stream/internal/handler"
	"github.com/Cat-Ling/pp-stream/internal/hlsproxy"
	"github.com/Cat-Ling/pp-stream/internal/metrics"
	mdlware "github.com/Cat-Ling/pp-stream/internal/middleware"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("pp-stream"),
		kong.Description("CORS-friendly proxy for HLS playlists and segments."),
	)

	godotenv.Load()
	config.InitConfig(&cli)

	logger := newLogger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(mdlware.RequestLogger(logger))
	e.Use(mdlware.CORSWithConfig(mdlware.CORSConfig{
		AllowOrigins: getCorsDomain(),
	}))

	if config.Env.RateLimit > 0 {
		store := echomw.NewRateLimiterMemoryStore(rate.Limit(config.Env.RateLimit))
		e.Use(echomw.RateLimiter(store))
		logger.Info("rate limiter enabled", "rps", config.Env.RateLimit)
	}

	var m *metrics.Metrics
	if config.Env.MetricsEnabled {
		m = metrics.New()
		e.Use(mdlware.MetricsMiddleware(m))
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	gateway := fetch.NewGateway(logger, m)
	rewriter := &hlsproxy.Rewriter{
		ProxyBase:     config.Env.PublicURL,
		PlaylistRoute: "/m3u8-proxy",
		SegmentRoute:  "/ts-proxy",
	}
	proxy := handler.NewProxyHandler(gateway, rewriter, logger)

	// Playlists may be regenerated between requests; segments are immutable.
	playlistCache := mdlware.CacheControlWithConfig(mdlware.CacheControlConfig{NoStore: true})
	segmentCache := mdlware.CacheControlWithConfig(mdlware.CacheControlConfig{
		MaxAge: 1 * time.Hour,
		Public: true,
	})

	e.GET("/m3u8-proxy", proxy.M3U8, playlistCache)
	e.GET("/ts-proxy", proxy.TS, segmentCache)
	e.GET("/", handler.Home)

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	go func() {
		addr := fmt.Sprintf(":%s", config.Env.Port)
		logger.Info("starting server", "addr", addr, "public_url", config.Env.PublicURL)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(config.Env.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(config.Env.LogFormat) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func getCorsDomain() []string {
	corsDomain := config.Env.CorsDomain

	allowOrigins := []string{}
	if corsDomain == "*" {
		allowOrigins = append(allowOrigins, "*")
	} else {
		domains := strings.Split(corsDomain, ",")
		for _, domain := range domains {
			domain = strings.TrimSpace(domain)
			if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
				allowOrigins = append(allowOrigins, strings.TrimSuffix(domain, "/"))
			} else {
				allowOrigins = append(allowOrigins, "http://"+strings.TrimSuffix(domain, "/"))
				allowOrigins = append(allowOrigins, "https://"+strings.TrimSuffix(domain, "/"))
			}
		}
	}

	return allowOrigins
}
