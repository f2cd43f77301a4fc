package main

import (
	"time"

	"cadencecrm/config"
	"cadencecrm/routes"
	"cadencecrm/services"
	"cadencecrm/utils"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig

	logger := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	config.LogConfig(logger)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			logger.WithError(err).Warn("Sentry initialization failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(logger); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	var opts []services.Option
	if mailer := utils.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, cfg.SMTP.FromName); mailer != nil {
		opts = append(opts, services.WithMailer(mailer))
	} else {
		logger.Warn("SMTP_HOST not set; step emails cannot be sent")
	}
	svc := routes.NewServices(config.DB, logger, opts...)

	app := fiber.New(fiber.Config{
		AppName:      "cadencecrm",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})

	routes.SetupRoutes(app, config.DB, cfg, svc, logger)

	logger.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
