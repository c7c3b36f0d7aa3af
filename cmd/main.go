/**
 * @description
 * This is the main entry point for the remittance service. It is responsible
 * for initializing all components of the service, including configuration,
 * database connection, external API clients, message brokers, repositories,
 * the core application services, and the HTTP server. It wires everything
 * together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/chatclient, pkg/kycclient, pkg/mailer, pkg/receiptstorage: External API clients.
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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/azeezabass2005/soolution-be/internal/api"
	"github.com/azeezabass2005/soolution-be/internal/app"
	"github.com/azeezabass2005/soolution-be/internal/config"
	"github.com/azeezabass2005/soolution-be/internal/store"
	"github.com/azeezabass2005/soolution-be/pkg/chatclient"
	"github.com/azeezabass2005/soolution-be/pkg/kycclient"
	"github.com/azeezabass2005/soolution-be/pkg/mailer"
	"github.com/azeezabass2005/soolution-be/pkg/rabbitmq"
	"github.com/azeezabass2005/soolution-be/pkg/receiptstorage"
)

func main() {
	// Load an optional .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment variables\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting remittance service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish events. This service only
	// publishes, so an unreachable broker degrades to a logging fallback.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		producer = eventProducer
		defer eventProducer.Close()
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Optional Redis for verification rate limiting and webhook replay
	// suppression. Both features fail open if Redis is not configured.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; rate limiting and replay suppression disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; continuing without redis\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; continuing without redis\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// External API clients.
	kycClient := kycclient.NewClient(cfg.KycAPIBaseURL, cfg.KycPartnerID, cfg.KycAPISecret, cfg.KycCallbackURL)
	storageClient := receiptstorage.NewClient(cfg.StorageBaseURL, cfg.StorageBucket, cfg.StorageAPIKey)
	emailClient := mailer.NewClient(cfg.EmailAPIBaseURL, cfg.EmailAPIKey, cfg.EmailFromAddress)
	chatClient := chatclient.NewClient(cfg.ChatAPIBaseURL, cfg.ChatAPIKey)

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	notifier := app.NewDispatcher(emailClient, chatClient, storageClient)
	remitService := app.NewService(
		repository,
		storageClient,
		app.NewRateConverter(repository),
		notifier,
		producer,
		cfg.SettlementCurrency,
		operatorRecipients(cfg),
	)

	var limiter app.SubmitRateLimiter
	if redisClient != nil {
		limiter = app.NewRedisRateLimiter(redisClient, cfg.KycSubmitLimitPerHour, time.Hour)
	}
	verificationService := app.NewVerificationService(repository, kycClient, limiter, notifier, producer, remitService)

	// Start the stale-verification sweeper.
	sweeper := app.NewSweeper(repository)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"sweeper start failed\" err=%v", err)
	}
	defer sweeper.Stop()

	// Initialize the API handlers and router.
	handlers := api.NewRemittanceHandlers(remitService, verificationService)
	webhook := api.NewWebhookHandler(verificationService, kycClient, redisClient)
	router := api.NewRouter(handlers, webhook, api.RouterConfig{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: config.SplitList(cfg.AllowedOrigins),
	})

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

func operatorRecipients(cfg config.Config) []app.Recipient {
	emails := config.SplitList(cfg.OperatorEmails)
	chats := config.SplitList(cfg.OperatorChatAddresses)

	recipients := make([]app.Recipient, 0, len(emails)+len(chats))
	for i, email := range emails {
		r := app.Recipient{Name: "Operator", Email: email}
		if i < len(chats) {
			r.ChatAddress = chats[i]
		}
		recipients = append(recipients, r)
	}
	// Chat-only operators beyond the email list.
	for i := len(emails); i < len(chats); i++ {
		recipients = append(recipients, app.Recipient{Name: "Operator", ChatAddress: chats[i]})
	}
	return recipients
}
