package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Kafka          KafkaConfig
	Redis          RedisConfig
	Polygon        PolygonConfig
	StrategyPath   string
	ExportDir      string
	LogLevel       string
	MarketTimezone string
	AccountMaxAge  time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// Addr returns host:port
func (s *ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers        []string
	OrdersTopic    string
	TradesTopic    string
	PositionsTopic string
	GroupID        string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	PriceTTL time.Duration
}

// PolygonConfig holds market data API configuration
type PolygonConfig struct {
	APIKey    string
	BaseURL   string
	RateLimit time.Duration
	Timeout   time.Duration
}

// Load reads configuration from environment variables, after loading .env if present
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "rsitrader"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:        splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			OrdersTopic:    getEnv("KAFKA_ORDERS_TOPIC", "order-requests"),
			TradesTopic:    getEnv("KAFKA_TRADES_TOPIC", "trading.orders"),
			PositionsTopic: getEnv("KAFKA_POSITIONS_TOPIC", "trading.positions"),
			GroupID:        getEnv("KAFKA_GROUP_ID", "rsi-trader"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "rsitrader"),
			PriceTTL: time.Duration(getEnvInt("PRICE_CACHE_SECONDS", 60)) * time.Second,
		},
		Polygon: PolygonConfig{
			APIKey:    getEnv("POLYGON_KEY", ""),
			BaseURL:   getEnv("POLYGON_BASE_URL", "https://api.polygon.io"),
			RateLimit: time.Duration(getEnvInt("RATE_LIMIT_SECONDS", 21)) * time.Second,
			Timeout:   time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		StrategyPath:   getEnv("STRATEGY_CONFIG", "config/strategy.yaml"),
		ExportDir:      getEnv("EXPORT_DIR", "csv"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		MarketTimezone: getEnv("MARKET_TIMEZONE", "America/New_York"),
		AccountMaxAge:  time.Duration(getEnvInt("ACCOUNT_MAX_AGE_SECONDS", 0)) * time.Second,
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
