package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TrialEnd is the trial_end request field, which is either an epoch second
// or the literal string "now".
type TrialEnd struct {
	Now       bool
	Timestamp int64
}

func (t *TrialEnd) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte(`"now"`)) {
		t.Now = true
		return nil
	}
	var ts int64
	if err := json.Unmarshal(data, &ts); err != nil {
		return fmt.Errorf("trial_end must be a timestamp or \"now\"")
	}
	t.Timestamp = ts
	return nil
}

func (t TrialEnd) MarshalJSON() ([]byte, error) {
	if t.Now {
		return []byte(`"now"`), nil
	}
	return json.Marshal(t.Timestamp)
}
