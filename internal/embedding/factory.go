package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/dsstrack/internal/config"
	"github.com/agenthands/dsstrack/internal/logger"
)

// NewEmbedder builds the provider named in cfg.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig, log *logger.Logger) (Embedder, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "openai":
		return NewOpenAIEmbedder(cfg.APIKey, cfg.Model, cfg.BaseURL), nil

	case "gemini":
		return NewGeminiEmbedder(ctx, cfg.APIKey, cfg.Model)

	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = fmt.Sprintf("%s/v1", strings.TrimRight(baseURL, "/"))
		}
		log.Info("using ollama through the OpenAI-compatible API", "base_url", baseURL, "model", cfg.Model)

		// Ollama ignores the key but the client requires one.
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		return NewOpenAIEmbedder(apiKey, cfg.Model, baseURL), nil

	case "hash":
		return NewHashEmbedder(cfg.Dimensions), nil

	case "claude", "anthropic":
		return nil, fmt.Errorf("provider %s has no embeddings API", provider)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}
