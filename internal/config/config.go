package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type HTTPConfig struct {
	Port           string
	MetricsEnabled bool
	MetricsToken   string
	RateLimit      int
	RateWindow     time.Duration
}

type StoreConfig struct {
	Driver       string
	ProductsPath string
	DatabaseURL  string
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type Config struct {
	Service  string
	LogLevel string
	HTTP     HTTPConfig
	Store    StoreConfig
	RabbitMQ RabbitMQConfig
}

// Load reads the process environment, after merging an optional .env file
// from the working directory. Variables already set win over .env.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Service:  getenv("SERVICE_NAME", "catalog"),
		LogLevel: getenv("LOG_LEVEL", "info"),
		HTTP: HTTPConfig{
			Port:           getenv("PORT", "8080"),
			MetricsEnabled: getbool("METRICS_ENABLED", false),
			MetricsToken:   getenv("METRICS_TOKEN", ""),
			RateLimit:      getint("RATE_LIMIT", 0),
			RateWindow:     time.Duration(getint("RATE_WINDOW_SECONDS", 60)) * time.Second,
		},
		Store: StoreConfig{
			Driver:       strings.ToLower(getenv("STORE_DRIVER", DriverFile)),
			ProductsPath: getenv("PRODUCTS_PATH", "data/products.json"),
			DatabaseURL:  getenv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getenv("RABBITMQ_URL", ""),
			Exchange: getenv("RABBITMQ_EXCHANGE", "catalog.events"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}

func getbool(k string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}
