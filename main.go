package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/gustavo-detarso/atestmed-defender-sub000/adapters/api"
	"github.com/gustavo-detarso/atestmed-defender-sub000/adapters/excel"
	"github.com/gustavo-detarso/atestmed-defender-sub000/adapters/postgres"
	"github.com/gustavo-detarso/atestmed-defender-sub000/adapters/rng"
	"github.com/gustavo-detarso/atestmed-defender-sub000/app"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/config"
	"github.com/gustavo-detarso/atestmed-defender-sub000/ports"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	gin.SetMode(appConfig.Server.GinMode)

	level, _ := internal.ParseLogLevel(appConfig.LogLevel)
	logger := internal.NewLogger(level)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		source ports.ObservationSource
		store  ports.AuditRunStore
	)
	if appConfig.Database.URL != "" {
		db, err := postgres.Open(ctx, appConfig.Database.URL)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
		repo := postgres.NewObservationRepository(db)
		source, store = repo, repo
	} else if appConfig.Data.ObservationFile != "" {
		log.Printf("Using observation file: %s", appConfig.Data.ObservationFile)
		source = excel.NewObservationReader(appConfig.Data.ObservationFile, appConfig.Data.Sheet,
			excel.DefaultColumnMapping(), appConfig.Data.Baseline)
	} else {
		log.Println("No DATABASE_URL or OBSERVATION_FILE configured, serving inline audits only")
	}

	service := app.NewAuditService(rng.New(), appConfig.Analysis, store, logger)
	server := api.NewServer(service, source, store, logger)

	httpServer := &http.Server{
		Addr:    ":" + appConfig.Server.Port,
		Handler: server.Handler(),
	}

	go func() {
		log.Printf("Starting audit server on port %s", appConfig.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}
