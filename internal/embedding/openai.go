package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hyperjump/cordsearch/internal/metrics"
	"github.com/hyperjump/cordsearch/pkg/utils"
)

const providerOpenAI = "openai"

// OpenAIConfig holds the settings for an OpenAI-compatible embedding API.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	// BatchSize is the number of texts per API request.
	BatchSize int
	// Workers bounds concurrent API requests within one EmbedBatch call.
	Workers           int
	RequestsPerSecond float64
	Logger            *zap.Logger
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	batchSize  int
	workers    int
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewOpenAIEmbedder creates an embedder for the configured API.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai provider needs an api_key", ErrProvider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: openai provider needs a model", ErrProvider)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		workers:    cfg.Workers,
		limiter:    rate.NewLimiter(limit, cfg.Workers),
		logger:     logger,
	}, nil
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of BatchSize, at most Workers in flight.
// The first failure cancels the remaining requests and is returned.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for start := 0; start < len(texts); start += e.batchSize {
		start := start
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.request(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}
	model := string(e.model)

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerOpenAI, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerOpenAI, model, "api_error").Inc()
		e.logger.Debug("embedding request failed", zap.Int("texts", len(texts)), zap.Duration("duration", duration), zap.Error(err))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, parseAPIError(err)
	}

	vecs, err := e.collect(resp, len(texts))
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerOpenAI, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerOpenAI, model, "bad_response").Inc()
		return nil, err
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerOpenAI, model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerOpenAI, model).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(providerOpenAI, model).Add(float64(resp.Usage.TotalTokens))
	}
	return vecs, nil
}

// collect places response vectors by their index and normalizes them.
func (e *OpenAIEmbedder) collect(resp openai.EmbeddingResponse, n int) ([][]float32, error) {
	if len(resp.Data) != n {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrProvider, len(resp.Data), n)
	}
	vecs := make([][]float32, n)
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= n || vecs[d.Index] != nil {
			return nil, fmt.Errorf("%w: bad embedding index %d", ErrProvider, d.Index)
		}
		if e.dimensions > 0 && len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("%w: embedding has %d dimensions, expected %d", ErrProvider, len(d.Embedding), e.dimensions)
		}
		vec := make([]float32, len(d.Embedding))
		copy(vec, d.Embedding)
		utils.NormalizeL2(vec)
		vecs[d.Index] = vec
	}
	return vecs, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OpenAIEmbedder) Close() error {
	return nil
}

// parseAPIError extracts a readable message from an API error and wraps ErrProvider.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("embedding API error %d: %s: %w", reqErr.HTTPStatusCode, detail, ErrProvider)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, ErrProvider)
	}

	return fmt.Errorf("embedding request failed: %v: %w", err, ErrProvider)
}

// extractDetail reads the "detail" field some OpenAI-compatible servers use for errors.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Detail
	}
	return ""
}
