package setup

import (
	"context"
	"fmt"
	"net/http"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/cache"
	"github.com/schilling3003/Perplexica/internal/chat"
	"github.com/schilling3003/Perplexica/internal/config"
	"github.com/schilling3003/Perplexica/internal/database"
	"github.com/schilling3003/Perplexica/internal/embedding"
	"github.com/schilling3003/Perplexica/internal/fetch"
	"github.com/schilling3003/Perplexica/internal/ingestion"
	"github.com/schilling3003/Perplexica/internal/provider"
	red "github.com/schilling3003/Perplexica/internal/redis"
	"github.com/schilling3003/Perplexica/internal/registry"
	"github.com/schilling3003/Perplexica/internal/search"
)

// Dependencies is everything a binary needs. Redis, DB, Cache, Chats and
// Pipeline are nil when their backing service is not configured.
type Dependencies struct {
	Config   *Config
	Redis    *goredis.Client
	DB       *database.DB
	Models   *ModelResolver
	Embedder embedding.Embedder
	Cache    cache.SearchCache
	Chats    chat.Store
	Registry *registry.Registry
	Service  *search.Service
	Worker   *search.Worker
	Pipeline *ingestion.Pipeline
	Logger   *zerolog.Logger
}

func Wire(ctx context.Context, cfg *Config, logger *zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, Logger: logger}

	focusConfig, err := config.LoadFocusConfigFromFile(cfg.FocusConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load focus config: %w", err)
	}

	deps.Models = NewModelResolver(cfg)
	deps.Embedder, err = deps.Models.Embedder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	if cfg.RedisAddr != "" {
		client, err := red.Connect(ctx, red.Options{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			MaxRetries: cfg.RedisMaxRetries,
		}, logger)
		if err != nil {
			// Search still works without Redis; only caching and chat history are lost.
			logger.Warn().Err(err).Msg("Redis unavailable, continuing without cache and chat history")
		} else {
			deps.Redis = client
			deps.Cache = cache.NewRedisSearchCache(client, cfg.CachePrefix, cfg.CacheTTL)
		}
	}

	if cfg.NeedsDatabase() {
		db, err := database.NewWithBackoff(ctx, cfg.DatabaseConfig(), cfg.DBMaxRetries, logger)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.DB = db

		if err := db.Migrate(ctx); err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	deps.Chats, err = newChatStore(cfg, deps)
	if err != nil {
		deps.Close()
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	engines := provider.NewRegistry(cfg.SearxngURL, httpClient, deps.Cache, logger)
	engines.Register(provider.NewDuckDuckGo(httpClient))

	var files provider.ChunkSearcher
	if deps.DB != nil {
		files = deps.DB
	}

	deps.Registry, err = registry.Build(focusConfig, registry.Deps{
		Engines: engines,
		Runner:  provider.NewRunner(logger),
		Files:   files,
		Fetcher: fetch.New(httpClient),
		Logger:  logger,
	})
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to build focus mode registry: %w", err)
	}

	var evaluator search.RestaurantEvaluator
	if r := deps.Registry.Restaurant(); r != nil {
		evaluator = r
	}

	deps.Service = search.NewService(deps.Registry, evaluator, deps.Models, deps.Embedder, logger)
	deps.Worker = search.NewWorker(deps.Service, deps.Chats)

	if deps.DB != nil {
		deps.Pipeline, err = ingestion.NewPipeline(
			ingestion.NewParser(),
			ingestion.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
			deps.Embedder,
			deps.DB,
			cfg.UploadWorkers,
			logger,
		)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to create ingestion pipeline: %w", err)
		}
	}

	logger.Info().
		Str("chat_provider", cfg.DefaultProvider).
		Str("embedding_provider", cfg.EmbeddingProvider).
		Bool("redis", deps.Redis != nil).
		Bool("database", deps.DB != nil).
		Bool("chat_history", deps.Chats != nil).
		Int("focus_modes", len(deps.Registry.Modes())).
		Msg("Dependencies wired")

	return deps, nil
}

func newChatStore(cfg *Config, deps *Dependencies) (chat.Store, error) {
	switch cfg.ChatStore {
	case "postgres":
		return chat.NewPostgresStore(deps.DB.Pool), nil
	case "redis":
		if deps.Redis == nil {
			return nil, nil
		}
		return chat.NewRedisStore(deps.Redis, cfg.ChatPrefix, cfg.ChatTTL), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported chat store: %s", cfg.ChatStore)
	}
}

func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Host:       c.DBHost,
		Port:       c.DBPort,
		User:       c.DBUser,
		Password:   c.DBPassword,
		Database:   c.DBName,
		SSLMode:    c.DBSSLMode,
		Dimensions: c.EmbeddingDimensions,
	}
}

// Close releases every connection opened by Wire.
func (d *Dependencies) Close() {
	if d.Pipeline != nil {
		d.Pipeline.Release()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
}
