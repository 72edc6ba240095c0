package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	dataagg "github.com/yungbote/quizbridge-backend/internal/data/aggregates"
	"github.com/yungbote/quizbridge-backend/internal/data/db"
	"github.com/yungbote/quizbridge-backend/internal/data/repos"
	domainagg "github.com/yungbote/quizbridge-backend/internal/domain/aggregates"
	httpserver "github.com/yungbote/quizbridge-backend/internal/http"
	httpH "github.com/yungbote/quizbridge-backend/internal/http/handlers"
	"github.com/yungbote/quizbridge-backend/internal/jobs/worker"
	quizmod "github.com/yungbote/quizbridge-backend/internal/modules/quiz"
	"github.com/yungbote/quizbridge-backend/internal/modules/quiz/questiontypes"
	"github.com/yungbote/quizbridge-backend/internal/observability"
	"github.com/yungbote/quizbridge-backend/internal/platform/canvas"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
	"github.com/yungbote/quizbridge-backend/internal/platform/openai"
	"github.com/yungbote/quizbridge-backend/internal/realtime/bus"
)

type App struct {
	Log       *logger.Logger
	Cfg       Config
	DB        *gorm.DB
	Repos     repos.Repos
	Lifecycle domainagg.QuizLifecycleAggregate
	Bus       bus.Bus
	Runner    *worker.Runner
	Quiz      quizmod.Usecases
	Server    *httpserver.Server
	Metrics   *observability.Metrics

	realtime     *httpH.RealtimeHandler
	dbService    *db.Service
	otelShutdown func(context.Context) error
	ctx          context.Context
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{Log: log, Cfg: cfg, ctx: ctx, cancel: cancel}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire() error {
	log, cfg := a.Log, a.Cfg

	a.otelShutdown = observability.InitOTel(a.ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
	})
	a.Metrics = observability.Init(log)

	svc, err := db.NewService(cfg.DB, log)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	a.dbService = svc
	a.DB = svc.DB()
	if err := db.Migrate(a.DB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	log.Info("Wiring repos and aggregates...")
	a.Repos = repos.New(a.DB, log)
	txOpts := dataagg.DefaultTxOptions()
	txOpts.Isolation = dataagg.ParseIsolation(cfg.Tx.Isolation)
	txOpts.MaxRetries = cfg.Tx.MaxRetries
	a.Lifecycle = dataagg.NewQuizLifecycleAggregate(dataagg.QuizLifecycleAggregateDeps{
		Base: dataagg.BaseDeps{
			DB:        a.DB,
			Log:       log,
			TxOptions: txOpts,
			Hooks:     dataagg.NewObservabilityHooks(a.Metrics),
		},
		Quizzes:   a.Repos.Quizzes,
		Questions: a.Repos.Questions,
	})

	log.Info("Wiring clients...")
	if cfg.Redis.Addr != "" {
		b, err := bus.NewRedisBus(log, cfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis bus: %w", err)
		}
		a.Bus = b
	} else {
		log.Warn("REDIS_ADDR not set; status events stay in process")
		a.Bus = bus.NewMemoryBus()
	}
	ai, err := openai.NewClient(log, cfg.OpenAI)
	if err != nil {
		return fmt.Errorf("init openai client: %w", err)
	}
	canvasClient := canvas.New(log, cfg.Canvas)

	registry := questiontypes.Default()
	stages := quizmod.NewStages(quizmod.StagesDeps{
		Log:         log,
		Lifecycle:   a.Lifecycle,
		Questions:   a.Repos.Questions,
		Registry:    registry,
		Extractor:   canvasClient,
		Generator:   quizmod.NewLLMGenerator(ai),
		Creator:     canvasClient,
		Exporter:    canvasClient,
		Deleter:     canvasClient,
		Publisher:   a.Bus,
		Limits:      cfg.Limits(),
		Concurrency: cfg.Generation.Concurrency,
		Timeouts:    cfg.StageTimeouts(),
	})
	a.Runner = worker.NewRunner(a.ctx, log, a.Lifecycle)
	a.Quiz = quizmod.NewUsecases(quizmod.UsecasesDeps{
		Log:          log,
		Quizzes:      a.Repos.Quizzes,
		Questions:    a.Repos.Questions,
		Registry:     registry,
		Stages:       stages,
		Runner:       a.Runner,
		Timeouts:     cfg.StageTimeouts(),
		DefaultModel: cfg.OpenAI.Model,
	})

	log.Info("Wiring HTTP...")
	a.realtime = httpH.NewRealtimeHandler(log)
	a.Server = httpserver.NewServer(httpserver.RouterConfig{
		Log:             log,
		ServiceName:     cfg.ServiceName,
		CORSOrigins:     cfg.CORSOrigins,
		Metrics:         a.Metrics,
		HealthHandler:   httpH.NewHealthHandler(a.DB),
		QuizHandler:     httpH.NewQuizHandler(log, a.Quiz),
		RealtimeHandler: a.realtime,
	})
	return nil
}

// Start launches the background collectors and the status forwarder.
func (a *App) Start() error {
	if err := a.Bus.StartForwarder(a.ctx, a.realtime.Dispatch); err != nil {
		return fmt.Errorf("start status forwarder: %w", err)
	}
	a.Metrics.StartServer(a.ctx, a.Log, a.Cfg.MetricsAddr)
	a.Metrics.StartDBCollector(a.ctx, a.Log, a.DB)
	a.Metrics.StartRedisCollector(a.ctx, a.Log, bus.Client(a.Bus), a.Cfg.Redis.Addr)
	return nil
}

// Run serves HTTP until ctx ends.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("server listening", "port", a.Cfg.Port)
	return a.Server.Run(ctx, ":"+a.Cfg.Port)
}

// Close cancels background work, waits for running stages and releases
// connections.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.Runner != nil {
		a.Runner.Wait()
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
