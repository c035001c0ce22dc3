package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/cordsearch/internal/config"
	"github.com/hyperjump/cordsearch/internal/metrics"
)

// New builds the embedder selected by cfg.Provider. When cfg.CacheSize is positive
// single-text embeddings are memoized in an LRU. Provider construction errors are
// returned as is; there is no fallback to another provider.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		emb Embedder
		err error
	)
	switch cfg.Provider {
	case config.ProviderONNX:
		emb, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case config.ProviderOpenAI:
		emb, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			BatchSize:         cfg.BatchSize,
			Workers:           cfg.Workers,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Logger:            logger,
		})
	case config.ProviderMock:
		emb = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrProvider, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.Provider, err)
	}

	logger.Info("embedder ready",
		zap.String("provider", cfg.Provider),
		zap.Int("dimensions", emb.Dimensions()),
		zap.Int("cache_size", cfg.CacheSize))

	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(emb, cfg.CacheSize, metrics.EmbeddingCacheTotal), nil
	}
	return emb, nil
}
