package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/procureflow/be-approvals/internal/client"
	"github.com/procureflow/be-approvals/internal/config"
	"github.com/procureflow/be-approvals/internal/database"
	"github.com/procureflow/be-approvals/internal/handler"
	"github.com/procureflow/be-approvals/internal/logger"
	"github.com/procureflow/be-approvals/internal/middleware"
	"github.com/procureflow/be-approvals/internal/repository"
	"github.com/procureflow/be-approvals/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
		Version:     cfg.Version,
	})

	log.Info().
		Str("config", cfg.String()).
		Msg("Starting procurement approvals service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{DSN: cfg.DSN()})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	entryRepo := repository.NewEntryRepository(db)

	// Optional NATS notification publisher
	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, notifications disabled")
		} else {
			defer natsConn.Close()
			log.Info().Str("nats_url", cfg.NATSURL).Msg("NATS connection established")
		}
	}
	publisher := client.NewNotificationPublisher(natsConn, log)

	// Initialize services
	perms := service.DefaultPermissions()
	documentService := service.NewDocumentService(documentRepo, userRepo, publisher, log)
	approvalService := service.NewApprovalService(documentRepo, userRepo, perms, publisher, log)
	entryService := service.NewEntryService(entryRepo, userRepo, perms, publisher, cfg.Location(), log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(documentService, approvalService, entryService, log)

	api := http.NewServeMux()
	api.HandleFunc("/api/v1/documents", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			httpHandler.SubmitDocument(w, r)
		case http.MethodDelete:
			httpHandler.DeleteDocument(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	api.HandleFunc("/api/v1/documents/pending", httpHandler.ListPendingDocuments)
	api.HandleFunc("/api/v1/documents/approved", httpHandler.ListApprovedDocuments)
	api.HandleFunc("/api/v1/documents/approve", httpHandler.ApproveDocument)
	api.HandleFunc("/api/v1/approvers", httpHandler.ListApprovers)

	api.HandleFunc("/api/v1/entries", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListEntries(w, r)
		case http.MethodPost:
			httpHandler.CreateEntry(w, r)
		case http.MethodDelete:
			httpHandler.DeleteEntry(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	api.HandleFunc("/api/v1/entries/approve-payment", httpHandler.ApproveEntryPayment)
	api.HandleFunc("/api/v1/entries/approve-receive", httpHandler.ApproveEntryReceive)
	api.HandleFunc("/api/v1/entries/export", httpHandler.ExportEntries)
	api.HandleFunc("/api/v1/entries/import", httpHandler.ImportEntries)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.Handle("/api/v1/", middleware.RequireAuth([]byte(cfg.JWTSecret), api))

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(log)(h)
	h = middleware.Recovery(log)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(cfg.WriteTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
