package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/epeers/navgraph/internal/database"
	"github.com/epeers/navgraph/internal/handlers"
	"github.com/epeers/navgraph/internal/metrics"
	"github.com/epeers/navgraph/internal/repository"
	"github.com/epeers/navgraph/internal/services"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve calculation runs over HTTP",
	Long: `Start the HTTP API. Runs read their ledger from PostgreSQL when PG_URL is
set, otherwise from the SQLite database at SQLITE_PATH.

Routes:
  POST   /runs           start a run
  GET    /runs/:id       run progress
  GET    /runs/:id/rows  calculation rows of a finished run
  DELETE /runs/:id       cancel a run
  GET    /metrics        Prometheus metrics`,
	RunE: runServe,
}

var servePort string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (default PORT or 8080)")
}

func openStore(ctx context.Context) (repository.Store, error) {
	if cfg.PGURL == "" {
		log.Infof("using SQLite store at %s", cfg.SQLitePath)
		return repository.NewSQLiteStore(cfg.SQLitePath)
	}
	db, err := database.New(ctx, cfg.PGURL)
	if err != nil {
		return nil, err
	}
	store, err := repository.NewPostgresStore(ctx, db.Pool)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if cfg.LogLevel < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	m := metrics.New()
	orch := services.NewOrchestrator(cfg.Engine, store, m)
	router := handlers.NewRouter(handlers.NewRunHandler(orch, store, store), m, cfg.APIKey)

	port := servePort
	if port == "" {
		port = cfg.Port
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Infof("Starting server on port %s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second+cfg.Engine.CancelGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited")
	return nil
}
