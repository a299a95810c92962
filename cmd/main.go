package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rinkhouse/league-system/brackets"
	"github.com/rinkhouse/league-system/config"
	"github.com/rinkhouse/league-system/db"
	"github.com/rinkhouse/league-system/handlers"
	"github.com/rinkhouse/league-system/middleware"
	"github.com/rinkhouse/league-system/repositories"
	"github.com/rinkhouse/league-system/routes"
	"github.com/rinkhouse/league-system/services"
	"github.com/rinkhouse/league-system/storage"
)

// sweepInterval is how often the safety sweeps run: completing tournaments
// whose deciding match is terminal and activating lost bracket resets.
const sweepInterval = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	var uploader storage.FileUploader
	if cfg.R2Configured() {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Warn("R2 storage not configured, logo uploads disabled")
	}

	wsHub := brackets.NewHub(logger)
	go wsHub.Run()
	logger.Info("websocket hub started")

	txManager := repositories.NewTxManager(dbConn)
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	teamRepo := repositories.NewPostgresTeamRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	roleRepo := repositories.NewPostgresRoleRepository(dbConn)
	auditRepo := repositories.NewPostgresAuditRepository(dbConn)
	tiebreakRepo := repositories.NewPostgresTiebreakRepository(dbConn)
	logger.Info("repositories initialized")

	auditService := services.NewAuditService(auditRepo, roleRepo)
	authzService := services.NewAuthorizationService(txManager, roleRepo, userRepo, auditService)
	authService := services.NewAuthService(userRepo)
	tournamentService := services.NewTournamentService(txManager, tournamentRepo, matchRepo, roleRepo, authzService, auditService, logger)
	teamService := services.NewTeamService(teamRepo, tournamentRepo, matchRepo, authzService, uploader, logger)
	bracketService := services.NewBracketService(txManager, tournamentRepo, teamRepo, matchRepo, authzService, auditService, wsHub, logger)
	matchService := services.NewMatchService(txManager, matchRepo, tournamentRepo, authzService, auditService, wsHub, logger)
	standingsService := services.NewStandingsService(txManager, tournamentRepo, teamRepo, matchRepo, tiebreakRepo, authzService, auditService)
	logger.Info("services initialized")

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		logger.Info("consistency sweeps started", slog.Duration("interval", sweepInterval))
		for range ticker.C {
			if err := bracketService.SweepBracketResets(context.Background()); err != nil {
				logger.Error("bracket reset sweep failed", slog.Any("error", err))
			}
			if err := tournamentService.SweepFinished(context.Background()); err != nil {
				logger.Error("finished tournament sweep failed", slog.Any("error", err))
			}
		}
	}()

	authenticator := middleware.NewAuthenticator([]byte(cfg.JWTSecretKey))
	authHandler := handlers.NewAuthHandler(authService, []byte(cfg.JWTSecretKey))
	tournamentHandler := handlers.NewTournamentHandler(tournamentService)
	teamHandler := handlers.NewTeamHandler(teamService)
	bracketHandler := handlers.NewBracketHandler(bracketService)
	matchHandler := handlers.NewMatchHandler(matchService)
	standingsHandler := handlers.NewStandingsHandler(standingsService)
	auditHandler := handlers.NewAuditHandler(auditService)
	roleHandler := handlers.NewRoleHandler(authzService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, tournamentService, logger)
	logger.Info("HTTP handlers initialized")

	router := chi.NewRouter()
	routes.SetupRoutes(
		router,
		authenticator,
		authHandler,
		tournamentHandler,
		teamHandler,
		bracketHandler,
		matchHandler,
		standingsHandler,
		auditHandler,
		roleHandler,
		webSocketHandler,
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
	}
	logger.Info("application exited")
}
