// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"divination-ai/internal/config"
	"divination-ai/internal/domain/ports/adapter"
	"divination-ai/internal/domain/ports/repository"
	aiAdapters "divination-ai/internal/infra/adapters/ai"
	"divination-ai/internal/infra/api/apiv1"
	"divination-ai/internal/infra/db/memory"
	pg "divination-ai/internal/infra/db/postgres"
	"divination-ai/internal/infra/logging"
	"divination-ai/internal/infra/metrics"
	red "divination-ai/internal/infra/redis"
	"divination-ai/internal/infra/scheduler"
	"divination-ai/internal/infra/worker"
	"divination-ai/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop AI provider, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	g, ctx := errgroup.WithContext(ctx)

	// ---- Storage ----
	var (
		jobs    repository.JobRepository
		tm      repository.TransactionManager
		limiter repository.RateLimiter
	)
	if cfg.Database.URL != "" {
		pool, err := pg.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		ptm := pg.NewTxManager(pool)
		jobs, tm = pg.NewJobRepo(pool, ptm), ptm
		g.Go(func() error {
			pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)
			return nil
		})
		logger.Info().Msg("job store: postgres")
	} else {
		jobs, tm = memory.NewJobRepo(), memory.TxManager{}
		logger.Warn().Msg("job store: in-memory, jobs are lost on restart")
	}

	// ---- Redis ----
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rc.Close()
		jobs = pg.NewJobRepoCacheDecorator(jobs, rc, cfg.Redis.TTL, logger)
		limiter = red.NewRateLimiter(rc, cfg.RateLimit.Limit, cfg.RateLimit.Window)
		logger.Info().Dur("status_ttl", cfg.Redis.TTL).Int("rate_limit", cfg.RateLimit.Limit).Msg("redis enabled")
	}

	// ---- AI providers ----
	multi, err := buildAI(ctx, cfg, logger)
	if err != nil {
		return err
	}
	ai := aiAdapters.NewLimitedAI(multi, cfg.AI.ConcurrentLimit)

	// ---- Use case ----
	uc := usecase.NewDivinationUseCase(jobs, tm, limiter, usecase.DivinationOptions{
		Providers:       multi.Providers(),
		DefaultProvider: cfg.AI.DefaultProvider,
		MaxQuestionLen:  cfg.Client.MaxQuestionLen,
		Dev:             cfg.Runtime.Dev,
	}, logger)

	// ---- Workers ----
	pool := worker.NewPool(cfg.Worker.Workers, cfg.Worker.QueueSize, logger)
	pool.Start(ctx)
	defer pool.Stop()
	processor := worker.NewJobProcessor(jobs, ai, cfg.Worker.FetchInterval, cfg.AI.Timeout, logger)
	g.Go(func() error {
		processor.Start(ctx, pool)
		return nil
	})

	// Jobs a dead worker left in processing; a live one gives up after AI.Timeout.
	reaper := scheduler.NewScheduler("stale-jobs", time.Minute,
		worker.NewStaleJobReaper(jobs, cfg.AI.Timeout+time.Minute, logger), logger)
	reaper.Start(ctx)
	defer reaper.Stop()

	// ---- HTTP ----
	auth, err := apiv1.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiv1.NewRouter(apiv1.NewServer(uc, logger), auth, cfg.Server.WriteTimeout),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Strs("providers", multi.Providers()).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// ---- Graceful shutdown ----
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutdown requested")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(sctx)
	})

	return g.Wait()
}

// buildAI wires one adapter per configured provider. The noop provider is
// always present in dev mode.
func buildAI(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*aiAdapters.MultiAIAdapter, error) {
	providers := map[string]adapter.AIServiceAdapter{}
	if cfg.AI.GeminiKey != "" {
		a, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, "", cfg.AI.GeminiModel, 0)
		if err != nil {
			return nil, fmt.Errorf("gemini adapter: %w", err)
		}
		providers["gemini"] = a
	}
	if cfg.AI.OpenAIKey != "" {
		a, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.OpenAIModel, 0)
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		providers["openai"] = a
	}
	if cfg.AI.LocalBaseURL != "" {
		a, err := aiAdapters.NewLocalAdapter(cfg.AI.LocalBaseURL, cfg.AI.LocalModel, 0)
		if err != nil {
			return nil, fmt.Errorf("local adapter: %w", err)
		}
		providers["local"] = a
	}
	defaultProvider := cfg.AI.DefaultProvider
	if cfg.Runtime.Dev {
		providers["noop"] = aiAdapters.NewNoopAIAdapter(2*time.Second, logger)
		if _, ok := providers[defaultProvider]; !ok {
			defaultProvider = "noop"
			cfg.AI.DefaultProvider = "noop"
		}
	}
	if _, ok := providers[defaultProvider]; !ok {
		return nil, fmt.Errorf("default AI provider %q is not configured", defaultProvider)
	}
	return aiAdapters.NewMultiAIAdapter(defaultProvider, providers, nil), nil
}
