/**
 * @description
 * This is the main entry point for the transfer-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * external service clients, the message broker producer, repositories, the core
 * application service, and the HTTP server. It wires everything together and starts
 * the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/accountclient, pkg/authclient: Clients for the account and auth services.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/microbank/transfer-service/internal/api"
	"github.com/microbank/transfer-service/internal/app"
	"github.com/microbank/transfer-service/internal/config"
	"github.com/microbank/transfer-service/internal/store"
	"github.com/microbank/transfer-service/pkg/accountclient"
	"github.com/microbank/transfer-service/pkg/authclient"
	"github.com/microbank/transfer-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.AccountServiceURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"account service url must be configured\" env=ACCOUNT_SERVICE_URL")
	}
	if strings.TrimSpace(cfg.AuthServiceURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"auth service url must be configured\" env=AUTH_SERVICE_URL")
	}

	log.Printf("level=info component=bootstrap msg=\"starting transfer-service\" port=%s", cfg.ServerPort)

	callTimeout := time.Duration(cfg.CallTimeoutSeconds) * time.Second

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish transaction events. A broker
	// outage must not prevent booting; the dispatcher retries in the background.
	var producer app.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.FallbackProducer{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the clients for the account and auth services.
	accountClient := accountclient.NewClient(cfg.AccountServiceURL, callTimeout)
	authClient := authclient.NewClient(cfg.AuthServiceURL, callTimeout)

	// Optional Redis connection for distributed rate limiting.
	var redisClient *redis.Client
	if cfg.TransferRateLimitPerMinute > 0 {
		if cfg.RedisURL == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; transfer rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; transfer rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; transfer rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Start the background event dispatcher.
	dispatcher := app.NewEventDispatcher(
		producer,
		cfg.EventQueueSize,
		2*time.Second,
		500*time.Millisecond,
		cfg.EventPublishRetries,
	)
	dispatcher.Start()
	defer dispatcher.Stop()

	// Initialize the core application service with its dependencies.
	transferService := app.NewService(repository, accountClient, authClient, dispatcher, app.Options{
		CallTimeout:                callTimeout,
		SagaTimeout:                time.Duration(cfg.SagaTimeoutSeconds) * time.Second,
		AdjustRetries:              cfg.AdjustRetries,
		CompensationRetries:        cfg.CompensationRetries,
		RetryBackoffBase:           time.Duration(cfg.RetryBackoffMillis) * time.Millisecond,
		MaxConcurrentTransfers:     cfg.MaxConcurrentTransfers,
		TransferRateLimitPerMinute: cfg.TransferRateLimitPerMinute,
	})
	if redisClient != nil {
		transferService.SetRateLimiter(app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix))
	}

	// Initialize the API handlers.
	transferHandlers := api.NewTransferHandlers(transferService)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/api/v1/transactions", api.TransferRoutes(transferHandlers, api.AuthSettings{
		JWKSURL:  cfg.KeycloakJWKSURL,
		Issuer:   cfg.KeycloakIssuer,
		Audience: cfg.KeycloakAudience,
	}))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
