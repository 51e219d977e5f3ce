package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/dsstrack/internal/config"
	"github.com/agenthands/dsstrack/internal/core/common"
	"github.com/agenthands/dsstrack/internal/logger"
)

const csv = "name\nApple Inc.\napple inc\nBanana Co\n"

func TestNew_HashProvider(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Embedding.Provider = "hash"
	cfg.Embedding.Dimensions = 128

	a, err := New(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	defer a.Close(ctx)
	assert.True(t, a.Gateway.Available())

	info, err := a.Service.CreateSession(ctx, "c.csv", []byte(csv))
	require.NoError(t, err)
	res, err := a.Service.Analyze(ctx, info.SessionID, []string{"name"}, 0.9)
	require.NoError(t, err)
	require.Len(t, res.DuplicateGroups, 1)
	assert.Equal(t, []int{0, 1}, res.DuplicateGroups[0].Indices())
}

func TestNew_UnavailableProviderStillServes(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Embedding.Provider = "claude"

	a, err := New(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	assert.False(t, a.Gateway.Available())

	info, err := a.Service.CreateSession(ctx, "c.csv", []byte(csv))
	require.NoError(t, err)
	_, err = a.Service.Analyze(ctx, info.SessionID, []string{"name"}, 0.9)
	assert.True(t, errors.Is(err, common.ErrEmbeddingUnavailable))
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "sqlite"
	_, err := New(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}
