package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"newsmarket/internal/client/gamma"
	"newsmarket/internal/config"
	cronrunner "newsmarket/internal/cron"
	"newsmarket/internal/db"
	"newsmarket/internal/executor"
	"newsmarket/internal/fingerprint"
	"newsmarket/internal/handler"
	"newsmarket/internal/index"
	"newsmarket/internal/ingest"
	"newsmarket/internal/logger"
	"newsmarket/internal/matcher"
	"newsmarket/internal/models"
	"newsmarket/internal/monitor"
	"newsmarket/internal/oracle"
	"newsmarket/internal/pipeline"
	gormrepository "newsmarket/internal/repository/gorm"
	"newsmarket/internal/venue"
)

func main() {
	cfgPath := os.Getenv("NM_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("NM_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	chatAPI, err := oracle.NewChatAPI(cfg.OpenAI)
	if err != nil {
		logger.Fatal("openai client init failed", zap.Error(err))
	}
	embedder := fingerprint.NewOpenAIEmbedder(cfg.OpenAI)
	judge := oracle.NewJudge(chatAPI, cfg.OpenAI.JudgeModel, oracle.PolicyFrom(cfg.Judge.Retry), logger)
	decider := oracle.NewDecider(chatAPI, cfg.OpenAI.DecisionModel, oracle.PolicyFrom(cfg.Decider.Retry), logger)

	gammaClient := gamma.NewClient(cfg.Gamma)
	tradingVenue, err := venue.New(cfg.Venue, gammaClient)
	if err != nil {
		logger.Fatal("venue init failed", zap.Error(err))
	}

	marketIndex := index.NewMemory()
	registrar := ingest.NewRegistrar(store, marketIndex, embedder, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if loaded, err := registrar.Rebuild(ctx); err != nil {
		logger.Fatal("index rebuild failed", zap.Error(err))
	} else {
		logger.Info("index ready", zap.Int("markets", loaded))
	}

	exec := executor.New(store, tradingVenue, oracle.PolicyFrom(cfg.Executor.Retry), logger)
	if _, err := exec.SweepPending(ctx); err != nil {
		logger.Fatal("pending trade sweep failed", zap.Error(err))
	}
	match := matcher.New(marketIndex, store, cfg.Matcher, logger)
	pipe := pipeline.New(store, match, embedder, judge, decider, exec, gammaClient,
		cfg.Pipeline, cfg.Matcher.DedupWindow, logger)

	poller := ingest.NewPoller(store, cfg.NewsFeed, func(ctx context.Context, item models.NewsItem) {
		pipe.Submit(ctx, item)
	}, logger)
	go func() {
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("news poller stopped", zap.Error(err))
		}
	}()

	monitorSvc := monitor.New(store, gammaClient, cfg.Monitor, logger)
	go func() {
		if err := monitorSvc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("monitor stopped", zap.Error(err))
		}
	}()

	cleaner := &ingest.Cleaner{Repo: store, Logger: logger, Retention: cfg.NewsFeed.Retention}
	cronRunner := cronrunner.New(logger, ctx)
	if _, err := cronRunner.Add(cfg.Cron.Cleanup, cleaner.RunOnce); err != nil {
		logger.Fatal("cleanup cron registration failed", zap.Error(err))
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	webhookHandler := &handler.WebhookHandler{Registrar: registrar}
	webhookHandler.Register(engine)
	marketHandler := &handler.MarketHandler{Repo: store, Index: marketIndex}
	marketHandler.Register(engine)
	tradeHandler := &handler.TradeHandler{Repo: store}
	tradeHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// Let in-flight news items reach a terminal state before exit.
	pipe.Wait()
}
