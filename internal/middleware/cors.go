package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// CORSConfig controls the permissive CORS decoration applied to every
// response, error paths included, so browsers can always read the body.
type CORSConfig struct {
	AllowOrigins []string
	MaxAge       time.Duration
}

var DefaultCORSConfig = CORSConfig{
	AllowOrigins: []string{"*"},
	MaxAge:       24 * time.Hour,
}

func CORS() echo.MiddlewareFunc {
	return CORSWithConfig(DefaultCORSConfig)
}

func CORSWithConfig(config CORSConfig) echo.MiddlewareFunc {
	if len(config.AllowOrigins) == 0 {
		config.AllowOrigins = DefaultCORSConfig.AllowOrigins
	}
	if config.MaxAge == 0 {
		config.MaxAge = DefaultCORSConfig.MaxAge
	}
	maxAge := strconv.Itoa(int(config.MaxAge.Seconds()))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := c.Response()
			origin := c.Request().Header.Get(echo.HeaderOrigin)

			for _, o := range config.AllowOrigins {
				if o == "*" || o == origin {
					res.Header().Set(echo.HeaderAccessControlAllowOrigin, o)
					break
				}
			}
			res.Header().Set(echo.HeaderAccessControlAllowHeaders, "*")
			res.Header().Set(echo.HeaderAccessControlAllowMethods, "*")

			if c.Request().Method == http.MethodOptions {
				res.Header().Set(echo.HeaderAccessControlMaxAge, maxAge)
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
