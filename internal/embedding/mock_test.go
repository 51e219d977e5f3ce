package embedding

import (
	"context"
	"strings"
	"sync"
)

// MockEmbedder maps every text to a two-dimensional vector and records the
// batches it saw.
type MockEmbedder struct {
	mu      sync.Mutex
	Batches [][]string
	Fail    int
	Err     error
	Short   bool
	Dims    int
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.Batches = append(m.Batches, append([]string(nil), texts...))
	if m.Fail > 0 {
		m.Fail--
		m.mu.Unlock()
		return nil, m.Err
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(texts)
	if m.Short {
		n--
	}
	dims := m.Dims
	if dims == 0 {
		dims = 2
	}
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dims)
		v[0] = float32(len(texts[i]))
		if strings.HasPrefix(texts[i], "b") {
			v[1] = 1
		}
		out[i] = v
	}
	return out, nil
}

func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Batches)
}
