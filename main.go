package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kompetch-n/archikoo-shirt-backend/controllers"
	"github.com/kompetch-n/archikoo-shirt-backend/database"
	"github.com/kompetch-n/archikoo-shirt-backend/kafka"
	"github.com/kompetch-n/archikoo-shirt-backend/logger"
	"github.com/kompetch-n/archikoo-shirt-backend/middleware"
	aws_pkg "github.com/kompetch-n/archikoo-shirt-backend/pkg/aws"
	"github.com/kompetch-n/archikoo-shirt-backend/repository"
	"github.com/kompetch-n/archikoo-shirt-backend/routes"
	"github.com/kompetch-n/archikoo-shirt-backend/services"
	"go.uber.org/zap"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		panic("config load failed: " + err.Error())
	}

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- MongoDB ---
	mongoClient, err := database.ConnectMongo(context.Background(), cfg.MongoURI)
	if err != nil {
		log.Fatal("MongoDB connection failed", zap.Error(err))
	}
	coll := mongoClient.Database(cfg.MongoDBName).Collection(cfg.MongoCollection)

	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 10*time.Second)
	if err := database.EnsureOrderIndexes(indexCtx, coll); err != nil {
		cancelIndex()
		log.Fatal("Failed to create order indexes", zap.Error(err))
	}
	cancelIndex()
	log.Info("Connected to MongoDB",
		zap.String("database", cfg.MongoDBName),
		zap.String("collection", cfg.MongoCollection),
	)

	var orderRepo repository.OrderRepository = repository.NewMongoOrderRepository(coll)

	// --- Redis order cache (optional) ---
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Warn("Redis unavailable, order cache disabled (non-fatal)", zap.Error(err))
		} else {
			defer redisClient.Close()
			cache := repository.NewRedisOrderCache(redisClient, cfg.OrderCacheTTL)
			orderRepo = repository.NewCachedOrderRepository(orderRepo, cache, log)
			log.Info("Order cache enabled", zap.Duration("ttl", cfg.OrderCacheTTL))
		}
	}

	// --- Order events (optional): Kafka when brokers are set, otherwise SNS ---
	var publisher services.EventPublisher
	var eventsTopic string
	switch {
	case len(cfg.KafkaBrokers) > 0:
		producer := kafka.NewProducer(cfg.KafkaBrokers)
		defer producer.Close()
		publisher, eventsTopic = producer, cfg.KafkaTopic
		log.Info("Order events enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	case cfg.EventsTopicArn != "":
		awsCfg, err := aws_pkg.LoadAWSConfig(context.Background())
		if err != nil {
			log.Warn("AWS config load failed, order events disabled (non-fatal)", zap.Error(err))
			break
		}
		publisher, eventsTopic = aws_pkg.NewSNSClient(awsCfg), cfg.EventsTopicArn
		log.Info("Order events enabled", zap.String("topic_arn", cfg.EventsTopicArn))
	}

	// --- Service wiring ---
	orderService := services.NewOrderService(orderRepo, publisher, services.Options{
		OrderIDMode:        cfg.OrderIDMode,
		StrictSizes:        cfg.StrictSizes,
		MaxOrderIDAttempts: cfg.MaxOrderIDAttempts,
		EventsTopic:        eventsTopic,
	}, log)
	orderController := controllers.NewOrderController(orderService)

	// --- HTTP router ---
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.AllowedOrigins)))
	r.Use(middleware.Timeout(30 * time.Second))

	routes.RegisterOrderRoutes(r, orderController)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		log.Info("Order Service starting",
			zap.String("port", cfg.Port),
			zap.String("order_id_mode", string(cfg.OrderIDMode)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Order Service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := database.CloseMongo(mongoClient, log); err != nil {
		log.Error("Failed to close MongoDB connection", zap.Error(err))
	}

	log.Info("Order Service stopped gracefully")
}
