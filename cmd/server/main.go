package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/vantage/internal/clients/claude"
	"github.com/aristath/vantage/internal/clients/marketdata"
	"github.com/aristath/vantage/internal/clients/sentimentapi"
	"github.com/aristath/vantage/internal/config"
	"github.com/aristath/vantage/internal/database"
	"github.com/aristath/vantage/internal/database/repositories"
	"github.com/aristath/vantage/internal/events"
	"github.com/aristath/vantage/internal/modules/aggregation"
	"github.com/aristath/vantage/internal/modules/analysis"
	"github.com/aristath/vantage/internal/modules/calibration"
	"github.com/aristath/vantage/internal/modules/industry"
	"github.com/aristath/vantage/internal/modules/macro"
	"github.com/aristath/vantage/internal/modules/report"
	"github.com/aristath/vantage/internal/modules/risk"
	"github.com/aristath/vantage/internal/modules/sentiment"
	"github.com/aristath/vantage/internal/modules/status"
	"github.com/aristath/vantage/internal/scheduler"
	"github.com/aristath/vantage/internal/server"
	"github.com/aristath/vantage/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootstrap := logger.New(logger.Config{Level: "info", Pretty: true})
		bootstrap.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Vantage analysis engine")

	// Load analysis policy
	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load policy")
	}

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	runs := repositories.NewRunRepository(db.Conn(), log)

	// Upstream clients
	market := marketdata.NewClient(cfg.MarketDataBaseURL, log)
	sentimentClient := sentimentapi.NewClient(cfg.SentimentAPIURL, log)

	// The completer interface must stay nil when no key is configured;
	// assigning a nil *claude.Client would defeat the nil check in the
	// industry service.
	var claudeClient *claude.Client
	var completer industry.Completer
	if cfg.AnthropicAPIKey != "" {
		claudeClient = claude.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, log)
		completer = claudeClient
	} else {
		log.Warn().Msg("No Anthropic API key, industry layer uses the sector playbook")
	}

	// Analysis pipeline
	statusCache := status.NewCache(log)
	eventManager := events.NewManager(log)
	layerTimeout := time.Duration(policy.Aggregation.LayerTimeoutSeconds) * time.Second

	analysisSvc := analysis.NewService(analysis.Deps{
		Policy:     policy,
		MarketData: market,
		Calibrator: calibration.NewService(policy.Calibration, log),
		Macro:      macro.NewService(policy.Macro, log),
		Industry:   industry.NewService(completer, log),
		Risk:       risk.NewService(policy.Risk, log),
		Sentiment:  sentiment.NewService(sentimentClient, policy.Sentiment, log),
		Runner:     aggregation.NewRunner(layerTimeout, log),
		Aggregator: aggregation.NewAggregator(policy.Aggregation, log),
		Assembler:  report.NewAssembler(policy.Report, log),
		Runs:       runs,
		Status:     statusCache,
		Events:     eventManager,
		Log:        log,
	})

	// Scheduler and background jobs
	calendar := scheduler.NewTradingCalendar(log)
	sched := scheduler.New(log)

	breakers := func() map[string]string {
		states := map[string]string{
			"sentiment_api": sentimentClient.BreakerState(),
		}
		if claudeClient != nil {
			states["claude"] = claudeClient.BreakerState()
		}
		return states
	}
	probe := func(ctx context.Context) error {
		if _, err := market.FetchDailySeries(ctx, policy.Macro.IndexSymbol, 7*24*time.Hour); err != nil {
			return err
		}
		if claudeClient != nil {
			return claudeClient.Healthy(ctx)
		}
		return nil
	}

	jobsCfg := registerJobsConfig{
		cfg:         cfg,
		policy:      policy,
		log:         log,
		db:          db,
		runs:        runs,
		analysisSvc: analysisSvc,
		calendar:    calendar,
		status:      statusCache,
		events:      eventManager,
		breakers:    breakers,
		probe:       probe,
	}
	healthJob, err := registerJobs(sched, jobsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}

	sched.Start()
	defer sched.Stop()

	// Publishes breaker states and the next fire time right away
	// instead of waiting for the first hourly tick.
	if err := sched.RunNow(healthJob); err != nil {
		log.Warn().Err(err).Msg("Startup health check failed")
	}

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:     cfg.Port,
		Log:      log,
		DB:       db,
		Runs:     runs,
		Status:   statusCache,
		Calendar: calendar,
		Trigger:  analysisSvc,
		DevMode:  cfg.DevMode,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

type registerJobsConfig struct {
	cfg         *config.Config
	policy      *config.Policy
	log         zerolog.Logger
	db          *database.DB
	runs        *repositories.RunRepository
	analysisSvc *analysis.Service
	calendar    *scheduler.TradingCalendar
	status      *status.Cache
	events      *events.Manager
	breakers    func() map[string]string
	probe       func(ctx context.Context) error
}

func registerJobs(sched *scheduler.Scheduler, rc registerJobsConfig) (*scheduler.HealthCheckJob, error) {
	// The run itself is bounded by the per-layer timeouts; the job
	// timeout adds headroom for fetching and persistence.
	runTimeout := time.Duration(rc.policy.Aggregation.LayerTimeoutSeconds)*time.Second + 2*time.Minute

	analysisJob := scheduler.NewAnalysisJob(rc.analysisSvc, rc.calendar, runTimeout, rc.log)
	if err := sched.AddJob(rc.cfg.AnalysisSchedule, analysisJob); err != nil {
		return nil, err
	}

	healthJob := scheduler.NewHealthCheckJob(scheduler.HealthCheckConfig{
		Log:      rc.log,
		DB:       rc.db,
		Probe:    rc.probe,
		Breakers: rc.breakers,
		NextRun:  sched.NextRun,
		Status:   rc.status,
	})
	if err := sched.AddJob("@hourly", healthJob); err != nil {
		return nil, err
	}

	retentionJob := scheduler.NewRetentionJob(rc.runs, rc.policy.Report.RetentionDays, rc.events, rc.log)
	if err := sched.AddJob("0 30 3 * * *", retentionJob); err != nil {
		return nil, err
	}
	return healthJob, nil
}
