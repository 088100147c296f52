package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"crepes-svc/cache"
	"crepes-svc/circuitbreaker"
	"crepes-svc/config"
	"crepes-svc/database"
	"crepes-svc/grpcserver"
	"crepes-svc/handlers"
	"crepes-svc/kafka"
	"crepes-svc/mercadopago"
	"crepes-svc/middleware"
	"crepes-svc/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
)

var (
	// Serve flags
	httpAddr     string
	grpcAddr     string
	serveMigrate bool
	noKafka      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and gRPC health server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if cmd.Flags().Changed("http-addr") {
			cfg.HTTPAddr = httpAddr
		}
		if cmd.Flags().Changed("grpc-addr") {
			cfg.GRPCAddr = grpcAddr
		}
		if noKafka {
			cfg.KafkaEnabled = false
		}
		return runServe(cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP listen address (overrides HTTP_ADDR)")
	serveCmd.Flags().StringVar(&grpcAddr, "grpc-addr", ":50051", "gRPC listen address (overrides GRPC_ADDR)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Create the schema before serving")
	serveCmd.Flags().BoolVar(&noKafka, "no-kafka", false, "Do not publish or consume order events")
}

func runServe(cfg *config.Config) error {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.InitDB(cfg, logger)
	if err != nil {
		return err
	}
	if serveMigrate {
		if err := database.Migrate(ctx, db, logger); err != nil {
			db.Close()
			return err
		}
	}

	// Initialize Redis
	redisClient, err := cache.InitRedis(cfg, logger)
	if err != nil {
		db.Close()
		return err
	}

	// Initialize OpenTelemetry
	shutdownTracing, err := middleware.InitTracing(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
		shutdownTracing = func() {}
	}

	publisher, closeEvents := startEvents(ctx, cfg, logger)

	images := storage.NewLocalStore(cfg.UploadDir, cfg.DefaultImage, logger)
	gateway := mercadopago.NewClient(cfg.MercadoPagoBaseURL, cfg.MercadoPagoToken,
		circuitbreaker.NewCircuitBreaker(5, 30*time.Second), logger)
	if cfg.MercadoPagoToken == "" {
		logger.Warn("MERCADOPAGO_ACCESS_TOKEN is not set; checkout preferences will fail")
	}

	secret := []byte(cfg.JWTSecret)
	h := handlers.Handlers{
		Auth:    handlers.NewAuthHandler(db, secret, cfg.JWTLifetime, logger),
		Catalog: handlers.NewCatalogHandler(db, redisClient, images, logger),
		Cart:    handlers.NewCartHandler(db, cache.NewCartStore(redisClient), logger),
		Orders:  handlers.NewOrderHandler(db, publisher, redisClient, logger),
		Payments: handlers.NewPaymentHandler(db, gateway, redisClient, publisher, handlers.PaymentURLs{
			FrontendURL: cfg.FrontendURL,
			AppURL:      cfg.AppURL,
			Currency:    cfg.Currency,
		}, logger),
		Users:          handlers.NewUserHandler(db, logger),
		PaymentMethods: handlers.NewPaymentMethodHandler(db, images, logger),
		Stats:          handlers.NewStatsHandler(db, logger),
	}

	// Setup REST API with Gin
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Static("/storage", images.Root())

	limiter := middleware.NewRateLimiter(rate.Every(6*time.Second), 10, 10*time.Minute)
	handlers.RegisterRoutes(router, h, secret, limiter.Middleware())

	restSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		if err := restSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("REST server: %w", err)
		}
	}()
	logger.Info("REST API started", zap.String("addr", cfg.HTTPAddr))

	// Start gRPC health server
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on gRPC port: %w", err)
	}
	grpcServer, healthServer := grpcserver.New(cfg.ServiceName)
	if grpcListener != nil {
		go func() {
			if err := grpcServer.Serve(grpcListener); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
		go grpcserver.WatchDatabase(ctx, db, healthServer, cfg.ServiceName, 10*time.Second, logger)
		logger.Info("gRPC health server started", zap.String("addr", cfg.GRPCAddr))
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received. Exiting...")
	case runErr = <-errCh:
		logger.Error("Server failed", zap.Error(runErr))
	}
	stop()

	gracefulShutdown(restSrv, grpcServer, db, redisClient, closeEvents, shutdownTracing, logger)
	return runErr
}

// startEvents wires the order event publisher and the notification consumer.
// Kafka being unreachable is not fatal; events are then dropped.
func startEvents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (handlers.EventPublisher, func()) {
	if !cfg.KafkaEnabled {
		logger.Info("Kafka disabled; order events will not be published")
		return kafka.NopPublisher{}, func() {}
	}

	producer, err := kafka.InitProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Warn("Kafka producer unavailable; order events will not be published", zap.Error(err))
		return kafka.NopPublisher{}, func() {}
	}
	publisher := kafka.NewPublisher(producer, cfg.KafkaTopic, logger)

	consumer, err := kafka.InitConsumer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Warn("Kafka consumer unavailable; notifications disabled", zap.Error(err))
		return publisher, func() { publisher.Close() }
	}

	notifications := kafka.NewNotificationConsumer(consumer, cfg.KafkaTopic, kafka.NewLogNotifier(logger), logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := notifications.Run(ctx); err != nil {
			logger.Error("Kafka consumer error", zap.Error(err))
		}
	}()

	return publisher, func() {
		<-done
		if err := consumer.Close(); err != nil {
			logger.Error("Failed to close Kafka consumer", zap.Error(err))
		}
		if err := publisher.Close(); err != nil {
			logger.Error("Failed to close Kafka producer", zap.Error(err))
		}
	}
}

// gracefulShutdown stops the servers and closes every backing connection.
func gracefulShutdown(
	restSrv *http.Server,
	grpcServer *grpc.Server,
	db *sql.DB,
	redisClient *redis.Client,
	closeEvents func(),
	shutdownTracing func(),
	logger *zap.Logger,
) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop REST server
	if err := restSrv.Shutdown(ctx); err != nil {
		logger.Error("REST server forced to shutdown", zap.Error(err))
	} else {
		logger.Info("REST server stopped gracefully")
	}

	// Stop gRPC server
	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped gracefully")

	closeEvents()

	if err := db.Close(); err != nil {
		logger.Error("Failed to close database", zap.Error(err))
	} else {
		logger.Info("Database connection closed gracefully")
	}

	if err := redisClient.Close(); err != nil {
		logger.Error("Failed to close Redis cache", zap.Error(err))
	} else {
		logger.Info("Redis cache closed gracefully")
	}

	shutdownTracing()
	logger.Info("Crepes service exited gracefully")
}
