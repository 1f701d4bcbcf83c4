package embedding

import (
	"context"
	"fmt"
	"sync"
)

// mockProvider returns configured errors first, then configured responses.
// With neither configured it echoes one single-element vector per input.
type mockProvider struct {
	mu        sync.Mutex
	name      string
	responses [][][]float32
	errors    []error
	calls     int
	inputs    [][]string
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.inputs = append(m.inputs, append([]string(nil), texts...))

	if len(m.errors) > 0 {
		err := m.errors[0]
		m.errors = m.errors[1:]
		return nil, err
	}
	if len(m.responses) > 0 {
		resp := m.responses[0]
		m.responses = m.responses[1:]
		return resp, nil
	}
	if m.responses == nil {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			out[i] = []float32{float32(len(t))}
		}
		return out, nil
	}
	return nil, fmt.Errorf("mock: no more responses configured")
}
