package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	goredis "github.com/redis/go-redis/v9"

	"github.com/agenthands/dsstrack/internal/core/common"
	"github.com/agenthands/dsstrack/internal/core/model"
)

type MockPersister struct {
	mu      sync.Mutex
	Data    map[string]*model.Snapshot
	SaveErr error
	Saves   int
	Loads   int

	IdleBefore []time.Time
	IdleErr    error
}

func NewMockPersister() *MockPersister {
	return &MockPersister{Data: map[string]*model.Snapshot{}}
}

func (m *MockPersister) Save(ctx context.Context, snap *model.Snapshot, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	var have int64
	if cur, ok := m.Data[snap.ID]; ok {
		have = cur.Version
	}
	if have != expected {
		return common.ErrSessionConflict
	}
	m.Data[snap.ID] = snap
	return nil
}

func (m *MockPersister) Load(ctx context.Context, id string) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Loads++
	snap, ok := m.Data[id]
	if !ok {
		return nil, common.ErrUnknownSession
	}
	return snap, nil
}

func (m *MockPersister) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Data[id]; !ok {
		return common.ErrUnknownSession
	}
	delete(m.Data, id)
	return nil
}

func (m *MockPersister) DeleteIdle(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IdleBefore = append(m.IdleBefore, before)
	return 0, m.IdleErr
}

// MockRedis runs the persister's two scripts against in-memory hashes.
type MockRedis struct {
	mu       sync.Mutex
	Versions map[string]string
	Payloads map[string]string
	TTLs     map[string]time.Duration
	Err      error
}

func NewMockRedis() *MockRedis {
	return &MockRedis{
		Versions: map[string]string{},
		Payloads: map[string]string{},
		TTLs:     map[string]time.Duration{},
	}
}

func (m *MockRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return goredis.NewCmdResult(nil, m.Err)
	}
	key := keys[0]

	switch script {
	case saveScript:
		cur, ok := m.Versions[key]
		if !ok {
			cur = "0"
		}
		if cur != args[0].(string) {
			return goredis.NewCmdResult(int64(0), nil)
		}
		m.Versions[key] = args[1].(string)
		m.Payloads[key] = args[2].(string)
		if ms := args[3].(int64); ms > 0 {
			m.TTLs[key] = time.Duration(ms) * time.Millisecond
		}
		return goredis.NewCmdResult(int64(1), nil)

	case loadScript:
		data, ok := m.Payloads[key]
		if !ok {
			return goredis.NewCmdResult(nil, goredis.Nil)
		}
		if ms := args[0].(int64); ms > 0 {
			m.TTLs[key] = time.Duration(ms) * time.Millisecond
		}
		return goredis.NewCmdResult(data, nil)
	}
	return goredis.NewCmdResult(nil, errors.New("unexpected script"))
}

func (m *MockRedis) Del(ctx context.Context, keys ...string) *goredis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return goredis.NewIntResult(0, m.Err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := m.Payloads[k]; ok {
			delete(m.Payloads, k)
			delete(m.Versions, k)
			delete(m.TTLs, k)
			n++
		}
	}
	return goredis.NewIntResult(n, nil)
}

type MockDriver struct {
	Queries     []string
	QueryParams map[string]interface{}
	MockResult  neo4j.EagerResult
	Err         error
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.Queries = append(m.Queries, query)
	m.QueryParams = params
	if m.Err != nil {
		return neo4j.EagerResult{}, m.Err
	}
	return m.MockResult, nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error {
	return nil
}

func (m *MockDriver) Close(ctx context.Context) error {
	return nil
}
