// Command server runs the document catalog's HTTP Surface and Ingestion
// Pipeline worker pool in a single process.
//
// Grounded on the teacher's cmd/main.go wiring order (load config -> open
// DB -> construct services -> construct handlers -> build router -> start
// with graceful shutdown), generalized: the Keycloak/JWT auth stack is
// replaced by the Session Core, and a worker pool + scheduler are started
// alongside the HTTP server rather than wired as services the handlers
// call directly.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/doccat/server/ai"
	"github.com/doccat/server/blob"
	"github.com/doccat/server/broker"
	"github.com/doccat/server/config"
	"github.com/doccat/server/httpapi"
	"github.com/doccat/server/ingestion"
	"github.com/doccat/server/logger"
	"github.com/doccat/server/search"
	"github.com/doccat/server/session"
	"github.com/doccat/server/store"
	"github.com/doccat/server/taxonomy"
)

// defaultAnalysisPrompt is the spec §4.6 step C prompt template: summarize,
// classify, and map the document's keywords onto the taxonomy snapshot.
const defaultAnalysisPrompt = `Analyze the attached document text and return a JSON object with the ` +
	`fields: summary (string), document_type (string), campaign_type ` +
	`(string, if applicable), document_tone (string), categories (array ` +
	`of strings), and keyword_mappings (array of {verbatim_term, ` +
	`mapped_canonical_term}, mapping each salient term to the closest ` +
	`canonical taxonomy term from the provided list when one applies).`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Debug || cfg.Server.Debug); err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	log := logger.New("main")

	ctx := context.Background()

	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseDSN()), &gorm.Config{})
	if err != nil {
		log.Fatalw("connect to database", "error", err)
	}
	pool, err := pgxpool.New(ctx, cfg.GetDatabaseDSN())
	if err != nil {
		log.Fatalw("open pgx pool", "error", err)
	}
	defer pool.Close()

	st, err := store.New(ctx, cfg, db, pool)
	if err != nil {
		log.Fatalw("construct store", "error", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	br := broker.NewRedisBroker(redisClient)

	bl, err := blob.NewFSStore(cfg.Blob.BaseDir)
	if err != nil {
		log.Fatalw("construct blob store", "error", err)
	}

	tax, err := taxonomy.New(ctx, st, br, time.Duration(cfg.Taxonomy.SnapshotRefreshIntervalS)*time.Second)
	if err != nil {
		log.Fatalw("construct taxonomy engine", "error", err)
	}

	gw := ai.NewGateway(cfg.AI, buildProviders())

	sessionMgr, err := session.New(
		br,
		cfg.Session.EncryptionSecret,
		cfg.Session.AppPassword,
		cfg.SessionTTL(),
		time.Duration(cfg.Session.LazyRewriteWindowS)*time.Second,
	)
	if err != nil {
		log.Fatalw("construct session manager", "error", err)
	}
	loginLimiter := session.NewLoginRateLimiter(br, cfg.Session.LoginRateLimitPerMinute)

	enqueuer := ingestion.NewEnqueuer(st, br, time.Duration(cfg.Ingestion.UploadBatchStaggerS)*time.Second)

	pipelineCfg := ingestion.PipelineConfig{
		VectorDim:        cfg.AI.VectorDim,
		RequireEmbedding: cfg.AI.RequireEmbedding,
		AnalysisPrompt:   defaultAnalysisPrompt,
	}
	workerPool := ingestion.NewWorkerPool(st, br, bl, gw, tax, nil, pipelineCfg,
		cfg.Ingestion.WorkerConcurrency,
		time.Duration(cfg.Ingestion.JobVisibilityTimeoutS)*time.Second,
		time.Duration(cfg.Ingestion.NackBackoffBaseS)*time.Second,
		time.Duration(cfg.Ingestion.NackBackoffCapS)*time.Second,
	)
	workerPool.Start(ctx)

	scheduler := ingestion.NewScheduler(st, br, enqueuer,
		time.Duration(cfg.Ingestion.SchedulerIntervalS)*time.Second,
		time.Duration(cfg.Ingestion.StuckSweepIntervalS)*time.Second,
		cfg.Ingestion.QueueDepthWatermark,
	)
	scheduler.Start(ctx)

	searchEngine := search.New(st, br, gw, tax, cfg.Search)

	handlers := httpapi.Handlers{
		Documents: httpapi.NewDocumentHandlers(st, bl, enqueuer, searchEngine, cfg.Ingestion),
		Taxonomy:  httpapi.NewTaxonomyHandlers(tax),
		Auth:      httpapi.NewAuthHandlers(sessionMgr, loginLimiter, cfg.Session),
		Health:    httpapi.NewHealthHandlers(br, sessionMgr, searchEngine),
	}
	router := httpapi.NewRouter(handlers, sessionMgr, cfg)

	srv := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.Infow("document catalog server starting", "address", cfg.GetServerAddress())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server shutdown error", "error", err)
	}

	scheduler.Stop()
	workerPool.Shutdown(time.Duration(cfg.Ingestion.ShutdownGraceS) * time.Second)

	log.Infow("shutdown complete")
}

// buildProviders wires a fixed provider list (anthropic, openai, gemini,
// local-extract, in that order; config.AIConfig.Providers is not
// consulted), reading each provider's endpoint and API key from the
// environment directly
// (spec §4.5 treats provider credentials as deployment secrets, not
// checked-in configuration defaults).
func buildProviders() []ai.Provider {
	providers := []ai.Provider{
		ai.NewAnthropicProvider(
			envOr("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			os.Getenv("ANTHROPIC_API_KEY"),
		),
		ai.NewOpenAIProvider(
			envOr("OPENAI_BASE_URL", "https://api.openai.com"),
			os.Getenv("OPENAI_API_KEY"),
		),
		ai.NewGeminiProvider(
			envOr("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			os.Getenv("GEMINI_API_KEY"),
		),
		ai.NewLocalExtractProvider(nil),
	}
	return providers
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
