package session

import (
	"encoding/json"
	"fmt"

	"github.com/agenthands/dsstrack/internal/core/model"
)

// Snapshots are stored as JSON. Vectors are included so a session loaded from
// the backend can re-analyze the same columns without calling the embedding provider.
func encode(snap *model.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", snap.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &snap, nil
}
