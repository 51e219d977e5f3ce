package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/dsstrack/internal/config"
	"github.com/agenthands/dsstrack/internal/logger"
)

func TestNewEmbedder(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default().Embedding

	cfg.Provider = "hash"
	e, err := NewEmbedder(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &HashEmbedder{}, e)

	cfg.Provider = "OpenAI"
	e, err = NewEmbedder(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &OpenAIEmbedder{}, e)

	cfg.Provider = "ollama"
	e, err = NewEmbedder(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &OpenAIEmbedder{}, e)

	cfg.Provider = "claude"
	_, err = NewEmbedder(ctx, cfg, logger.Nop())
	assert.Error(t, err)

	cfg.Provider = "word2vec"
	_, err = NewEmbedder(ctx, cfg, logger.Nop())
	assert.Error(t, err)
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		// out of order on purpose
		_, _ = w.Write([]byte(`{"object":"list","model":"all-minilm","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		],"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder("ollama", "all-minilm", srv.URL+"/v1")
	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, "all-minilm", got["model"])
	assert.Equal(t, []any{"first", "second"}, got["input"])
}

func TestOpenAIEmbedder_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIEmbedder("k", "m", srv.URL).Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestOpenAIEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIEmbedder("k", "m", srv.URL).Embed(context.Background(), []string{"a"})
	assert.Error(t, err)
}
