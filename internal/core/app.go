package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/DevN0mad/SprintPilot/internal/config"
	"github.com/DevN0mad/SprintPilot/internal/server"
	"github.com/DevN0mad/SprintPilot/internal/services"
	"github.com/DevN0mad/SprintPilot/internal/storage"
)

// App представляет основное приложение, управляющее сервисами.
type App struct {
	logger  *slog.Logger
	rootCtx context.Context

	mu             sync.Mutex
	tracker        *services.AzureDevOpsService
	generation     *services.GenerationService
	planner        *services.PlannerService
	reports        *services.ReportService
	history        *storage.HistoryStorage
	apiSrv         *server.APIServer
	servicesCancel context.CancelFunc
}

// NewApp создает новый экземпляр приложения с заданным логгером и корневым контекстом.
func NewApp(ctx context.Context, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &App{
		logger:  logger,
		rootCtx: ctx,
	}
}

// ApplyConfig применяет конфигурацию к приложению, инициализируя/переинициализируя сервисы.
func (a *App) ApplyConfig(cfg config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.servicesCancel != nil {
		a.logger.Info("Stopping previous services")
		a.servicesCancel()
		a.servicesCancel = nil
	}

	ctx, cancel := context.WithCancel(a.rootCtx)

	tracker := services.NewAzureDevOps(cfg.AzureDevOps, a.logger)

	generation, err := services.NewGeneration(ctx, cfg.Generation, a.logger)
	if err != nil {
		cancel()
		return fmt.Errorf("init generation service: %w", err)
	}

	planner := services.NewPlanner(tracker, a.logger)
	reports := services.NewReport(planner, a.logger)

	var history *storage.HistoryStorage
	if cfg.Storage.DBPath != "" {
		history, err = storage.NewHistoryStorage(cfg.Storage.DBPath, a.logger)
		if err != nil {
			cancel()
			return fmt.Errorf("init history storage: %w", err)
		}
	} else {
		a.logger.Info("History storage disabled, no db_path configured")
	}

	// Telegram дайджест поднимается только когда заданы обе секции.
	if cfg.TelegramBot != nil && cfg.DailyJob != nil {
		tg, err := services.NewTelegramBot(*cfg.TelegramBot, a.logger)
		if err != nil {
			cancel()
			return fmt.Errorf("init telegram bot: %w", err)
		}

		dailyJob, err := services.NewDailyJobService(tg, planner, reports, *cfg.DailyJob, a.logger)
		if err != nil {
			cancel()
			return fmt.Errorf("init daily job: %w", err)
		}

		go dailyJob.Start(ctx)
	}

	var historyIface server.History
	if history != nil {
		historyIface = history
	}

	apiSrv := server.NewAPIServer(a.logger, tracker, generation, planner, reports, historyIface, &cfg.HttpServer)

	go func() {
		if err := apiSrv.Start(ctx); err != nil {
			a.logger.Error("API server exited with error", "error", err)
		}
	}()

	a.tracker = tracker
	a.generation = generation
	a.planner = planner
	a.reports = reports
	a.history = history
	a.apiSrv = apiSrv
	a.servicesCancel = cancel

	a.logger.Info("Services reinitialized successfully with configuration")
	return nil
}

// Shutdown останавливает все запущенные сервисы приложения.
func (a *App) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.servicesCancel != nil {
		a.logger.Info("Stopping services on shutdown")
		a.servicesCancel()
		a.servicesCancel = nil
	}
}
