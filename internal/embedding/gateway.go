package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/agenthands/dsstrack/internal/config"
	"github.com/agenthands/dsstrack/internal/core/common"
	"github.com/agenthands/dsstrack/internal/logger"
)

// Gateway batches texts over an Embedder. A call either returns one vector
// per input text or fails as a whole with common.ErrEmbeddingUnavailable.
type Gateway struct {
	embedder    Embedder
	batchSize   int
	concurrency int
	maxRetries  int
	timeout     time.Duration
	dimensions  int
	limiter     *rate.Limiter
	log         *logger.Logger

	// Backoff is the base delay between retries of one batch.
	Backoff time.Duration
}

func NewGateway(e Embedder, cfg config.EmbeddingConfig, log *logger.Logger) *Gateway {
	g := &Gateway{
		embedder:    e,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		maxRetries:  cfg.MaxRetries,
		timeout:     cfg.Timeout.Std(),
		dimensions:  cfg.Dimensions,
		log:         log,
		Backoff:     250 * time.Millisecond,
	}
	if g.batchSize <= 0 {
		g.batchSize = 64
	}
	if g.concurrency <= 0 {
		g.concurrency = 1
	}
	if cfg.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), g.concurrency)
	}
	if g.log == nil {
		g.log = logger.Nop()
	}
	return g
}

// Available reports whether an embedder is configured.
func (g *Gateway) Available() bool {
	return g != nil && g.embedder != nil
}

// EmbedBatch embeds texts, preserving order. Blank texts are not sent to the
// provider and get all-zero vectors, which are never similar to anything.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !g.Available() {
		return nil, fmt.Errorf("%w: no embedding provider configured", common.ErrEmbeddingUnavailable)
	}
	out := make([][]float32, len(texts))

	var positions []int
	for i, t := range texts {
		if strings.TrimSpace(t) != "" {
			positions = append(positions, i)
		}
	}

	if len(positions) > 0 {
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}

		eg, egctx := errgroup.WithContext(ctx)
		eg.SetLimit(g.concurrency)
		for start := 0; start < len(positions); start += g.batchSize {
			end := min(start+g.batchSize, len(positions))
			idx := positions[start:end]
			eg.Go(func() error {
				batch := make([]string, len(idx))
				for k, pos := range idx {
					batch[k] = texts[pos]
				}
				vecs, err := g.embedWithRetry(egctx, batch)
				if err != nil {
					return fmt.Errorf("batch at %d: %w", start, err)
				}
				for k, pos := range idx {
					out[pos] = vecs[k]
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			g.log.Warn("embedding failed", "count", len(texts), "error", err)
			return nil, fmt.Errorf("%w: %w", common.ErrEmbeddingUnavailable, err)
		}
	}

	dims := g.dimensions
	if len(positions) > 0 {
		dims = len(out[positions[0]])
		if dims == 0 {
			return nil, fmt.Errorf("%w: provider returned empty vectors", common.ErrEmbeddingUnavailable)
		}
		for _, pos := range positions {
			if len(out[pos]) != dims {
				return nil, fmt.Errorf("%w: mixed vector dimensions %d and %d", common.ErrEmbeddingUnavailable, dims, len(out[pos]))
			}
		}
	}
	for i := range out {
		if out[i] == nil {
			out[i] = make([]float32, dims)
		}
	}

	g.log.Debug("embedded texts", "count", len(texts), "sent", len(positions), "dimensions", dims)
	return out, nil
}

func (g *Gateway) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.Join(lastErr, ctx.Err())
			case <-time.After(g.Backoff * time.Duration(attempt)):
			}
		}
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, errors.Join(lastErr, err)
			}
		}

		vecs, err := g.embedder.Embed(ctx, batch)
		if err == nil && len(vecs) != len(batch) {
			err = fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(batch))
		}
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		g.log.Debug("embedding attempt failed", "attempt", attempt+1, "size", len(batch), "error", err)
	}
	return nil, lastErr
}
