package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/dripper"
	"github.com/layer-3/dripper/adapters/store"
	"github.com/layer-3/dripper/config"
	"github.com/layer-3/dripper/internal/metrics"
	"github.com/layer-3/dripper/ports"
	transport "github.com/layer-3/dripper/transport/http"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	for _, line := range cfg.SkippedKeyLines {
		logger.Warn("skipping key without 0x prefix", "file", cfg.KeysFile, "line", line)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("dripper stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, publisher, closeBackends, err := backends(cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackends()

	deps := dripper.Deps{
		Store:     st,
		Publisher: publisher,
		Metrics:   metrics.New(),
		Logger:    logger,
	}

	var pipelines []*dripper.Pipeline
	for i, key := range cfg.PrivateKeys {
		p, err := dripper.NewPipeline(ctx, cfg, key, deps)
		if err != nil {
			logger.Error("failed to set up wallet", "index", i, "error", err)
			continue
		}
		defer p.Close()
		pipelines = append(pipelines, p)
	}
	if len(pipelines) == 0 {
		return errors.New("no wallet could be set up")
	}
	logger.Info("starting", "wallets", len(pipelines), "mint_count", cfg.MintCount)

	if cfg.StatusAddr != "" {
		sources := make([]transport.StatusSource, len(pipelines))
		for i, p := range pipelines {
			sources[i] = p
		}
		stopStatus := serveStatus(cfg, transport.RouterConfig{
			Sources: sources,
			Store:   st,
			Metrics: deps.Metrics.Handler(),
			Token:   cfg.StatusToken,
			Logger:  logger,
		}, logger)
		defer stopStatus()
	}

	// a wallet that fails to authenticate stops on its own; the process
	// fails only when no wallet is left running
	var mu sync.Mutex
	running := len(pipelines)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pipelines {
		g.Go(func() error {
			if err := p.Boot(gctx); err != nil {
				logger.Error("boot failed", "wallet", p.Wallet().Hex(), "error", err)

				mu.Lock()
				running--
				last := running == 0
				mu.Unlock()
				if last && gctx.Err() == nil {
					return err
				}
				return nil
			}
			return p.Run(gctx)
		})
	}
	return g.Wait()
}

// backends picks redis when REDIS_URL is set and in-process fallbacks otherwise
func backends(cfg config.Config, logger *slog.Logger) (ports.Store, message.Publisher, func(), error) {
	wmLogger := watermill.NewSlogLogger(logger)

	if cfg.RedisURL == "" {
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		return store.NewMemoryStore(), pubSub, func() { _ = pubSub.Close() }, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	redisClient := redis.NewClient(opts)

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		wmLogger,
	)
	if err != nil {
		_ = redisClient.Close()
		return nil, nil, nil, err
	}

	closeFn := func() {
		_ = publisher.Close()
		_ = redisClient.Close()
	}
	return store.NewRedisStore(redisClient), publisher, closeFn, nil
}

func serveStatus(cfg config.Config, routerCfg transport.RouterConfig, logger *slog.Logger) func() {
	if cfg.LogLevel > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.StatusAddr,
		Handler:           transport.SetupRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("status server listening", "addr", cfg.StatusAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
