package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/agency-crm/automation-core/internal/config"
	"github.com/agency-crm/automation-core/internal/engine"
	"github.com/agency-crm/automation-core/internal/infrastructure/persistence/repository"
	httpserver "github.com/agency-crm/automation-core/internal/interfaces/http"
	"github.com/agency-crm/automation-core/internal/notify"
	"github.com/agency-crm/automation-core/internal/sla"
	"github.com/agency-crm/automation-core/pkg/database"
	"github.com/agency-crm/automation-core/pkg/utils"
)

func main() {
	// Local overrides for development; ignored when no .env exists
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting automation core",
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Path))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	workflowRepo := repository.NewWorkflowRepository(db, logger)
	instanceRepo := repository.NewInstanceRepository(db, logger)
	taskRepo := repository.NewTaskRepository(db, logger)
	logRepo := repository.NewAutomationLogRepository(db, logger)
	notificationRepo := repository.NewNotificationRepository(db, logger)
	warningLedger := repository.NewWarningLedger(db, logger)

	// Core services
	notifier := notify.NewStoreNotifier(notificationRepo, logger)
	workflowEngine := engine.New(workflowRepo, instanceRepo, taskRepo, logRepo, logger)
	monitor := sla.NewMonitor(taskRepo, notifier, logRepo, warningLedger, sla.Config{
		WarningWindowHours: cfg.SLA.WarningWindowHours,
		WarningTTL:         cfg.SLA.WarningTTL,
	}, logger)

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, workflowEngine, monitor, instanceRepo, taskRepo, logRepo, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited")
}
