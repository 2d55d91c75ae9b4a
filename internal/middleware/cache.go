package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// CacheControlConfig controls the Cache-Control header set on successful
// responses. NoStore wins over the other fields: playlists may be
// regenerated at any moment and must never be cached.
type CacheControlConfig struct {
	MaxAge         time.Duration
	Public         bool
	MustRevalidate bool
	NoStore        bool
}

var DefaultCacheControlConfig = CacheControlConfig{
	MaxAge: 1 * time.Hour,
	Public: true,
}

func CacheControl() echo.MiddlewareFunc {
	return CacheControlWithConfig(DefaultCacheControlConfig)
}

func CacheControlWithConfig(config CacheControlConfig) echo.MiddlewareFunc {
	headerVal := config.headerValue()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Registered as a Before hook so the header lands ahead of the
			// first body write, streaming handlers included. Error
			// responses are left uncached.
			c.Response().Before(func() {
				if c.Response().Status >= 400 {
					return
				}
				c.Response().Header().Set(echo.HeaderCacheControl, headerVal)
			})
			return next(c)
		}
	}
}

func (config CacheControlConfig) headerValue() string {
	if config.NoStore {
		return "no-cache, no-store, must-revalidate"
	}

	headerVal := "private, "
	if config.Public {
		headerVal = "public, "
	}

	headerVal += "max-age=" + strconv.Itoa(int(config.MaxAge.Seconds()))

	if config.MustRevalidate {
		headerVal += ", must-revalidate"
	}
	return headerVal
}
