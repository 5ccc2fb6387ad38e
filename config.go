package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kompetch-n/archikoo-shirt-backend/kafka"
	aws_pkg "github.com/kompetch-n/archikoo-shirt-backend/pkg/aws"
	"github.com/kompetch-n/archikoo-shirt-backend/repository"
	"github.com/kompetch-n/archikoo-shirt-backend/services"
)

// Config holds all configuration for the order service.
type Config struct {
	Port            string // Service port (default: 8000)
	AppEnv          string // "production" switches the logger to JSON
	MongoURI        string
	MongoDBName     string
	MongoCollection string

	OrderIDMode        services.OrderIDMode
	StrictSizes        bool
	MaxOrderIDAttempts int

	AllowedOrigins string

	RedisURL      string        // Order cache is disabled when empty
	OrderCacheTTL time.Duration // TTL of cached orders

	EventsTopicArn string   // SNS topic for order events
	KafkaBrokers   []string // Takes precedence over SNS when set
	KafkaTopic     string
}

// LoadConfig loads environment variables into Config struct.
func LoadConfig() (*Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8000"),
		AppEnv:          getEnv("APP_ENV", "development"),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDBName:     getEnv("MONGO_DB_NAME", "shirt_orders"),
		MongoCollection: getEnv("MONGO_COLLECTION", "customers"),
		AllowedOrigins:  getEnv("ALLOWED_ORIGINS", "*"),
		RedisURL:        os.Getenv("REDIS_URL"),
		EventsTopicArn:  os.Getenv("ORDER_EVENTS_TOPIC_ARN"),
		KafkaBrokers:    kafka.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      getEnv("ORDER_EVENTS_KAFKA_TOPIC", "order-events"),
	}

	mode, err := services.ParseOrderIDMode(getEnv("ORDER_ID_MODE", string(services.OrderIDGenerated)))
	if err != nil {
		return nil, err
	}
	cfg.OrderIDMode = mode

	if cfg.StrictSizes, err = strconv.ParseBool(getEnv("STRICT_SIZES", "false")); err != nil {
		return nil, fmt.Errorf("invalid STRICT_SIZES: %w", err)
	}

	if cfg.MaxOrderIDAttempts, err = strconv.Atoi(getEnv("MAX_ORDER_ID_ATTEMPTS", strconv.Itoa(services.DefaultMaxOrderIDAttempts))); err != nil {
		return nil, fmt.Errorf("invalid MAX_ORDER_ID_ATTEMPTS: %w", err)
	}
	if cfg.MaxOrderIDAttempts < 1 {
		return nil, fmt.Errorf("MAX_ORDER_ID_ATTEMPTS must be at least 1")
	}

	if cfg.OrderCacheTTL, err = time.ParseDuration(getEnv("ORDER_CACHE_TTL", repository.DefaultCacheTTL.String())); err != nil {
		return nil, fmt.Errorf("invalid ORDER_CACHE_TTL: %w", err)
	}

	if strings.EqualFold(os.Getenv("AWS_USE_SECRETS"), "true") {
		if awsCfg, err := aws_pkg.LoadAWSConfig(context.Background()); err == nil {
			sm := aws_pkg.NewSecretsClient(awsCfg)

			if uri, err := sm.GetSecret(context.Background(), "orders/MONGO_URI"); err == nil && uri != "" {
				cfg.MongoURI = uri
			}
		}
	}

	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
