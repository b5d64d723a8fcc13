// -----------------------------------------------------------------------
// App - Service construction and lifecycle wiring
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/handlers"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/services/assets"
	"github.com/ternarybob/atelier/internal/services/events"
	"github.com/ternarybob/atelier/internal/services/report"
	"github.com/ternarybob/atelier/internal/services/status"
	badgerstorage "github.com/ternarybob/atelier/internal/storage/badger"
)

// App holds all application services and handlers
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Services
	EventService   interfaces.EventService
	StorageManager interfaces.StorageManager
	Engine         *status.Engine
	Sweeper        *status.Sweeper
	AssetResolver  *assets.Resolver
	ExportService  interfaces.ExportService

	// Handlers
	WSHandler     *handlers.WebSocketHandler
	WSLogWriter   *handlers.WebSocketWriter
	JobHandler    *handlers.JobHandler
	ClientHandler *handlers.ClientHandler
	ExportHandler *handlers.ExportHandler
	AssetHandler  *handlers.AssetHandler
	APIHandler    *handlers.APIHandler
}

// New creates and wires the application
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: config,
		Logger: logger,
	}

	app.EventService = events.NewService(logger)

	storageManager, err := badgerstorage.NewManager(&config.Storage.Badger, app.EventService, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	// Status reconciliation engine drives the visual stage ladder
	app.Engine = status.NewEngine(status.Schedule{
		AnalyzingDelay:  config.Status.AnalyzingDelay,
		GeneratingDelay: config.Status.GeneratingDelay,
		FinalizingDelay: config.Status.FinalizingDelay,
	}, app.EventService, logger, config.Status.InboxSize)
	if err := app.Engine.Start(); err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to start status engine: %w", err)
	}

	// Re-observe every tracked job on startup so in-flight work resumes
	// its ladder instead of disappearing after a restart
	if err := app.observeStoredJobs(); err != nil {
		logger.Warn().Err(err).Msg("Failed to re-observe stored jobs on startup")
	}

	if config.Sweep.Enabled {
		app.Sweeper = status.NewSweeper(app.Engine, storageManager.JobStorage(), logger)
		if err := app.Sweeper.Start(config.Sweep.Schedule); err != nil {
			app.Engine.Stop()
			storageManager.Close()
			return nil, fmt.Errorf("failed to start status sweeper: %w", err)
		}
	}

	signingKey := config.Assets.SigningKey
	if signingKey == "" {
		// Generated keys invalidate outstanding URLs across restarts,
		// which is acceptable for development
		signingKey = uuid.New().String()
		logger.Warn().Msg("No asset signing key configured, generated an ephemeral key")
	}
	baseURL := fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)
	resolver, err := assets.NewResolver(baseURL, config.Assets.Dir, signingKey, config.Assets.URLTTL, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize asset resolver: %w", err)
	}
	app.AssetResolver = resolver

	sandbox := report.NewSandbox(report.SandboxConfig{
		Width:       config.Export.SandboxWidth,
		RasterScale: config.Export.RasterScale,
		LoadTimeout: config.Export.LoadTimeout,
		SettleDelay: config.Export.SettleDelay,
	}, logger)

	app.ExportService = report.NewService(
		storageManager.JobStorage(),
		storageManager.ClientStorage(),
		resolver,
		sandbox,
		report.PageLayout{
			PageWidth:  config.Export.PageWidth,
			PageHeight: config.Export.PageHeight,
			Margin:     config.Export.Margin,
		},
		config.Export.SandboxWidth,
		logger,
	)

	if err := app.initHandlers(); err != nil {
		app.Close()
		return nil, err
	}

	logger.Info().Msg("Application initialized")
	return app, nil
}

func (a *App) initHandlers() error {
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, &a.Config.WebSocket)

	wsWriter, err := handlers.NewWebSocketWriter(a.WSHandler, arbormodels.WriterConfiguration{
		Type:       arbormodels.LogWriterTypeConsole,
		TimeFormat: "15:04:05",
	}, &a.Config.WebSocket)
	if err != nil {
		return fmt.Errorf("failed to initialize websocket log writer: %w", err)
	}
	a.WSLogWriter = wsWriter

	a.JobHandler = handlers.NewJobHandler(a.StorageManager.JobStorage(), a.StorageManager.ClientStorage(), a.Engine, a.Logger)
	a.ClientHandler = handlers.NewClientHandler(a.StorageManager.ClientStorage(), a.Logger)
	a.ExportHandler = handlers.NewExportHandler(a.ExportService, a.Logger)
	a.AssetHandler = handlers.NewAssetHandler(a.AssetResolver, a.Logger)
	a.APIHandler = handlers.NewAPIHandler()
	return nil
}

// observeStoredJobs feeds persisted jobs back into the engine at startup
func (a *App) observeStoredJobs() error {
	jobs, err := a.StorageManager.JobStorage().ListJobs(context.Background(), nil)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		a.Engine.Observe(job)
	}
	a.Logger.Debug().Int("count", len(jobs)).Msg("Re-observed stored jobs")
	return nil
}

// Close shuts down services in reverse dependency order
func (a *App) Close() {
	if a.WSLogWriter != nil {
		a.WSLogWriter.Close()
	}
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	if a.Engine != nil {
		a.Engine.Stop()
	}
	if a.EventService != nil {
		a.EventService.Close()
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}
	a.Logger.Info().Msg("Application shut down")
}
