package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatsend/internal/config"
	"chatsend/internal/constants"
	"chatsend/internal/database"
	"chatsend/internal/e2e"
	"chatsend/internal/models"
	"chatsend/internal/privacy"
	"chatsend/internal/retry"
	"chatsend/internal/service"
	"chatsend/internal/tracing"
	"chatsend/pkg/chatapi"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes message bodies and full ids)")
	configPath = flag.String("config", "config.json", "Path to configuration file (JSON or YAML)")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("chatsend %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting chatsend")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyLogLevel(logger, cfg.LogLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - message bodies will be logged")
	}

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	var db *database.Database
	backoffConfig := retry.FromRetryConfig(cfg.Retry)
	backoffConfig.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	err = retry.NewBackoff(backoffConfig).Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database, logger)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	encryptor, err := e2e.NewEncryptor(cfg.E2E, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize e2e encryptor: %w", err)
	}

	client := chatapi.NewClientWithLogger(cfg.Remote.ServerURL, &http.Client{
		Timeout: time.Duration(cfg.Remote.TimeoutSec) * time.Second,
	}, logger)

	session := sessionFromConfig(cfg)
	logger.WithFields(privacy.MaskSensitiveFields(logrus.Fields{
		"server":     session.Server,
		"user_id":    session.UserID,
		"username":   session.User.Username,
		"auth_token": session.AuthToken,
	})).Info("Session configured")
	courier := service.NewCourier(db, encryptor, client, client, logger)
	defer courier.Wait()

	ctxWithVerbose := service.WithVerboseLogging(ctx, *verbose)

	scheduler := service.NewScheduler(courier, session, cfg.Sweep.RunOnStartup(),
		time.Duration(cfg.Sweep.IntervalSec)*time.Second, logger)
	go scheduler.Start(ctxWithVerbose)
	defer scheduler.Stop()

	monitor := service.NewOutboxMonitor(db,
		time.Duration(cfg.Sweep.MonitorIntervalSec)*time.Second,
		time.Duration(cfg.Sweep.StaleThresholdSec)*time.Second, logger)
	go monitor.Start(ctx)
	defer monitor.Stop()

	// SIGUSR1 asks for a sweep, e.g. from a network-up hook.
	resumeCh := make(chan os.Signal, 1)
	signal.Notify(resumeCh, syscall.SIGUSR1)
	defer signal.Stop(resumeCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-resumeCh:
				logger.Info("Resume signal received, requesting recovery sweep")
				scheduler.Trigger()
			}
		}
	}()

	watcher := config.NewWatcher(*configPath, logger)
	watcher.OnConfigChange(func(newCfg *models.Config) {
		if *verbose {
			return
		}
		applyLogLevel(logger, newCfg.LogLevel)
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher stopped")
		}
	}()

	server := NewServer(cfg.Server, session, courier, db, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

func applyLogLevel(logger *logrus.Logger, level string) {
	if level == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	logger.SetLevel(parsed)
}

func sessionFromConfig(cfg *models.Config) models.Session {
	return models.Session{
		Server:    cfg.Remote.ServerURL,
		UserID:    cfg.Session.UserID,
		AuthToken: cfg.Session.AuthToken,
		User: models.UserRef{
			ID:       cfg.Session.UserID,
			Username: cfg.Session.Username,
			Name:     cfg.Session.Name,
		},
	}
}
