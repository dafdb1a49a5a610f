package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"payment-service/config"
	"payment-service/consumers"
	"payment-service/controllers"
	"payment-service/database"
	"payment-service/invoice"
	"payment-service/models"
	"payment-service/notifications"
	"payment-service/rabbitmq"
	"payment-service/reconciliation"
	"payment-service/repository"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and notification consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), config.LoadConfig(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config, migrate bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := slog.Default()

	if err := database.InitDB(cfg); err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	defer database.CloseDB()

	if migrate {
		if _, err := database.MigrateUp(database.DB); err != nil {
			return err
		}
	}

	rmq, err := rabbitmq.NewRabbitMQ(cfg)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer rmq.Close()

	if err := rmq.SetupQueues(); err != nil {
		return fmt.Errorf("failed to setup rabbitmq queues: %w", err)
	}

	storage, err := invoice.NewS3Storage(ctx, invoice.S3StorageConfig{
		Bucket:        cfg.InvoiceBucket,
		Region:        cfg.InvoiceRegion,
		Endpoint:      cfg.InvoiceEndpoint,
		PublicBaseURL: cfg.InvoicePublicBaseURL,
	})
	if err != nil {
		return fmt.Errorf("invoice storage initialization failed: %w", err)
	}
	invoices := invoice.NewService(invoice.NewGenerator(), storage, invoice.NewSigner(cfg.InvoiceLinkSecret, cfg.PublicBaseURL))

	repo := repository.NewOrderRepo(database.DB)
	engine := reconciliation.NewEngine(repo, invoices, notifications.NewPublisher(rmq), reconciliation.Options{
		FallbackAdmins: fallbackAdmins(cfg),
		EffectTimeout:  cfg.SideEffectTimeout,
		Logger:         logger,
	})

	dispatcher := notifications.NewDispatcher(map[models.Channel]notifications.Sender{
		models.ChannelEmail: notifications.LogSender{Channel: models.ChannelEmail, Logger: logger},
		models.ChannelSMS:   notifications.LogSender{Channel: models.ChannelSMS, Logger: logger},
	})
	if err := consumers.StartNotificationConsumer(ctx, rmq.Channel, cfg, dispatcher); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	pc := controllers.NewPaymentController(engine, repo, invoices, cfg, logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           controllers.SetupRouter(pc, cfg.JWTSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("payment service starting", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.SideEffectTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	// Let in-flight notifications reach the broker before it closes.
	engine.Wait()
	return nil
}

func fallbackAdmins(cfg *config.Config) []models.Contact {
	var contacts []models.Contact
	for _, addr := range cfg.AdminEmails {
		contacts = append(contacts, models.Contact{Channel: models.ChannelEmail, Address: addr})
	}
	for _, addr := range cfg.AdminPhones {
		contacts = append(contacts, models.Contact{Channel: models.ChannelSMS, Address: addr})
	}
	return contacts
}
