package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"cdmsuite/config"
	"cdmsuite/middleware"
	"cdmsuite/routes"
	"cdmsuite/utils"
	"cdmsuite/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "CDM: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Sentry when a DSN is configured
	if dsn := config.AppConfig.SentryDSN; dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Panic recovery and CORS
	app.Use(recover.New())
	app.Use(middleware.CORS())

	// Shared delivery clients
	mailer := utils.NewMailer()
	smsClient := utils.NewSMSClient()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sequence worker drives assignment execution
	sequenceWorker := worker.NewSequenceWorker(config.DB, mailer, smsClient, log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags))
	go sequenceWorker.Start(ctx)

	// Outbox worker drains persisted background jobs
	outboxWorker := worker.NewOutboxWorker(config.DB, mailer, log.New(os.Stdout, "OUTBOX: ", log.LstdFlags))
	go outboxWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
