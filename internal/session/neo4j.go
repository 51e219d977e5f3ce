package session

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/dsstrack/internal/core/common"
	"github.com/agenthands/dsstrack/internal/core/model"
	"github.com/agenthands/dsstrack/internal/driver"
)

// GraphPersister stores each session as a :DedupSession node whose payload
// property holds the JSON snapshot. Timestamps are RFC3339 UTC strings so
// they compare in order.
type GraphPersister struct {
	driver driver.GraphDriver
	now    func() time.Time
}

func NewGraphPersister(d driver.GraphDriver) *GraphPersister {
	return &GraphPersister{driver: d, now: time.Now}
}

func (p *GraphPersister) timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func (p *GraphPersister) Save(ctx context.Context, snap *model.Snapshot, expected int64) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	params := map[string]interface{}{
		"uuid":       snap.ID,
		"version":    snap.Version,
		"expected":   expected,
		"filename":   snap.Filename,
		"created_at": p.timestamp(snap.CreatedAt),
		"updated_at": p.timestamp(p.now()),
		"analyzed":   snap.Analysis != nil,
		"payload":    string(data),
	}
	query := driver.UpdateSessionQuery
	if expected == 0 {
		query = driver.CreateSessionQuery
	}
	res, err := p.driver.ExecuteQuery(ctx, query, params)
	if err != nil {
		return fmt.Errorf("save session node: %w", err)
	}
	if count(res, "saved") == 0 {
		return fmt.Errorf("%w: %s", common.ErrSessionConflict, snap.ID)
	}
	return nil
}

func (p *GraphPersister) Load(ctx context.Context, id string) (*model.Snapshot, error) {
	params := map[string]interface{}{"uuid": id, "accessed_at": p.timestamp(p.now())}
	res, err := p.driver.ExecuteQuery(ctx, driver.GetSessionQuery, params)
	if err != nil {
		return nil, fmt.Errorf("load session node: %w", err)
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownSession, id)
	}
	raw, ok := res.Records[0].Get("payload")
	payload, isString := raw.(string)
	if !ok || !isString {
		return nil, fmt.Errorf("session node %s has no payload", id)
	}
	return decode([]byte(payload))
}

func (p *GraphPersister) Delete(ctx context.Context, id string) error {
	res, err := p.driver.ExecuteQuery(ctx, driver.DeleteSessionQuery, map[string]interface{}{"uuid": id})
	if err != nil {
		return fmt.Errorf("delete session node: %w", err)
	}
	if len(res.Records) > 0 && count(res, "deleted") == 0 {
		return fmt.Errorf("%w: %s", common.ErrUnknownSession, id)
	}
	return nil
}

// DeleteIdle removes sessions not read or written since before.
func (p *GraphPersister) DeleteIdle(ctx context.Context, before time.Time) (int, error) {
	res, err := p.driver.ExecuteQuery(ctx, driver.DeleteIdleSessionsQuery, map[string]interface{}{"cutoff": p.timestamp(before)})
	if err != nil {
		return 0, fmt.Errorf("delete idle session nodes: %w", err)
	}
	return int(count(res, "deleted")), nil
}

func count(res neo4j.EagerResult, key string) int64 {
	if len(res.Records) == 0 {
		return 0
	}
	v, ok := res.Records[0].Get(key)
	if !ok {
		return 0
	}
	n, _ := v.(int64)
	return n
}
