package core

import (
	"context"
	"sync"
)

// MockVectorSource returns a fixed vector per text and counts calls.
type MockVectorSource struct {
	mu      sync.Mutex
	Vectors map[string][]float32
	Err     error
	Calls   int
	Texts   [][]string
	Block   chan struct{}
}

func (m *MockVectorSource) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.Block != nil {
		<-m.Block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.Texts = append(m.Texts, texts)
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := m.Vectors[t]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}
