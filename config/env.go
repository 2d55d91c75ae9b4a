package config

import (
	"os"
	"strconv"
	"strings"
)

// CLI holds command-line overrides parsed by kong. Each flag also reads the
// matching environment variable, so containers can skip flags entirely.
type CLI struct {
	Port      string `kong:"short='p',help='Listen port.',env='PORT'"`
	PublicURL string `kong:"help='Public base URL used in rewritten playlists.',env='PUBLIC_URL'"`
	LogLevel  string `kong:"help='Log level: debug|info|warn|error.',env='LOG_LEVEL'"`
}

type envConfig struct {
	Port           string
	PublicURL      string
	CorsDomain     string
	LogLevel       string
	LogFormat      string
	RateLimit      float64
	MetricsEnabled bool
}

var Env envConfig

func getEnv(varName, defaultValue string) string {
	value, exists := os.LookupEnv(varName)
	if !exists {
		return defaultValue
	}
	return value
}

func InitConfig(cli *CLI) {
	Env = envConfig{
		Port:           getEnv("PORT", "8080"),
		PublicURL:      getEnv("PUBLIC_URL", ""),
		CorsDomain:     getEnv("CORS_DOMAIN", "*"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		MetricsEnabled: getEnv("METRICS_ENABLED", "true") == "true",
	}
	Env.RateLimit, _ = strconv.ParseFloat(getEnv("RATE_LIMIT", "0"), 64)

	if cli != nil {
		if cli.Port != "" {
			Env.Port = cli.Port
		}
		if cli.PublicURL != "" {
			Env.PublicURL = cli.PublicURL
		}
		if cli.LogLevel != "" {
			Env.LogLevel = cli.LogLevel
		}
	}

	if Env.PublicURL == "" {
		Env.PublicURL = "http://localhost:" + Env.Port
	}
	Env.PublicURL = strings.TrimSuffix(Env.PublicURL, "/")
}
