package cloudsync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ayash-Bera/metricslab/backend/internal/experiment"
	"github.com/tidwall/gjson"
)

// remoteDocument is the body pushed to the remote document service.
type remoteDocument struct {
	State     experiment.State `json:"state"`
	UpdatedAt string           `json:"updatedAt"`
}

func encodeRemote(state experiment.State, now time.Time) ([]byte, error) {
	data, err := json.Marshal(remoteDocument{
		State:     state,
		UpdatedAt: now.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode remote document: %w", err)
	}
	return data, nil
}

// decodeRemote extracts the experiment state from a stored document. Current
// documents nest it under "state"; older ones stored the state at the root.
// A document matching neither shape counts as absent.
func decodeRemote(data []byte) (experiment.State, bool) {
	if !gjson.ValidBytes(data) {
		return experiment.State{}, false
	}

	raw := ""
	if nested := gjson.GetBytes(data, "state"); nested.IsObject() {
		raw = nested.Raw
	} else if gjson.GetBytes(data, "metricsVisited").IsObject() || gjson.GetBytes(data, "chatEntries").IsArray() {
		raw = string(data)
	}
	if raw == "" {
		return experiment.State{}, false
	}
	return experiment.NormalizeJSON([]byte(raw)), true
}
