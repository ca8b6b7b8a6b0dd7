package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"storefront-sync/internal/database"

	"go.uber.org/zap"
)

type Config struct {
	Port       string
	LocalToken string // пустой = локальный API без авторизации

	API           API
	Realtime      Realtime
	Store         Store
	Redis         Redis
	Kafka         Kafka
	Orders        Orders
	Notifications Notifications
}

type API struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

type Realtime struct {
	Transport string // ws | redis
	URL       string
	Prefix    string
}

// Store описывает бэкенд локального хранилища профиля (аналог localStorage).
type Store struct {
	Driver       string // memory | sqlite | postgres | redis
	Prefix       string
	PollInterval time.Duration
	DB           database.Config
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Kafka struct {
	Brokers   []string
	Topic     string
	Recipient string
}

type Orders struct {
	PollInterval time.Duration
}

type Notifications struct {
	Cap int
}

func Load(log *zap.Logger) *Config {
	driver := getEnvDefault("STORE_DRIVER", "sqlite")

	return &Config{
		Port:       getEnvDefault("APP_PORT", ":8090"),
		LocalToken: os.Getenv("LOCAL_API_TOKEN"),
		API: API{
			BaseURL:     getEnv("API_BASE_URL", log),
			AccessToken: getEnv("ACCESS_TOKEN", log),
			Timeout:     parseDuration(getEnvDefault("API_TIMEOUT", "10s"), 10*time.Second),
		},
		Realtime: Realtime{
			Transport: getEnvDefault("REALTIME_TRANSPORT", "ws"),
			URL:       os.Getenv("REALTIME_URL"),
			Prefix:    getEnvDefault("REALTIME_PREFIX", "rt"),
		},
		Store: Store{
			Driver:       driver,
			Prefix:       getEnvDefault("STORE_PREFIX", "storefront"),
			PollInterval: parseDuration(getEnvDefault("STORE_POLL_INTERVAL", "500ms"), 500*time.Millisecond),
			DB: database.Config{
				Driver: driver,
				DSN:    getEnvDefault("STORE_DSN", "storefront.db"),
			},
		},
		Redis: Redis{
			Addr:     getEnvDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       atoiDefault(os.Getenv("REDIS_DB"), 0),
		},
		Kafka: Kafka{
			Brokers:   splitAndTrim(os.Getenv("KAFKA_BROKERS")),
			Topic:     getEnvDefault("KAFKA_TOPIC_NOTIFICATIONS", "storefront.notifications"),
			Recipient: os.Getenv("NOTIFY_RECIPIENT"),
		},
		Orders: Orders{
			PollInterval: parseDuration(getEnvDefault("POLL_INTERVAL", "30s"), 30*time.Second),
		},
		Notifications: Notifications{
			Cap: atoiDefault(os.Getenv("NOTIFICATION_CAP"), 50),
		},
	}
}

func getEnv(key string, log *zap.Logger) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	log.Error("Обязательная переменная окружения не установлена", zap.String("key", key))
	panic("missing required environment variable: " + key)
}

func getEnvDefault(key, def string) string {
	if val, exists := os.LookupEnv(key); exists && val != "" {
		return val
	}
	return def
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(s, ",") {
		pt := strings.TrimSpace(p)
		if pt != "" {
			parts = append(parts, pt)
		}
	}
	return parts
}
