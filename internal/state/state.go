// File path: internal/state/state.go
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Pulse is the single persisted state record for a deployment: read at the
// start of a pulse, mutated in place by the engines, written back at the
// end. At most one pulse runs at a time; the record is not shared between
// concurrent pulses.
type Pulse struct {
	Data Data `json:"data"`
}

// Data is the data agent's slice of the pulse state.
type Data struct {
	LastSync       string               `json:"last_sync,omitempty"`
	MonitorValues  map[string]float64   `json:"monitor_values,omitempty"`
	MonitorHistory map[string][]float64 `json:"monitor_history,omitempty"`
}

// Load reads the pulse state record. A missing file yields empty state.
func Load(path string) (*Pulse, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Pulse{}, nil
		}
		return nil, fmt.Errorf("read state %s: %w", path, err)
	}
	var pulse Pulse
	if err := json.Unmarshal(raw, &pulse); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}
	return &pulse, nil
}

// Save writes the pulse state record back to disk.
func (p *Pulse) Save(path string) error {
	if p == nil {
		return errors.New("nil pulse state")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write state %s: %w", path, err)
	}
	return nil
}

// LastSyncTime parses the recorded last-sync timestamp; the zero time when
// no sync has happened yet or the record is unreadable.
func (d *Data) LastSyncTime() time.Time {
	if d == nil || d.LastSync == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, d.LastSync)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// SetLastSync records the completion time of a sync.
func (d *Data) SetLastSync(t time.Time) {
	d.LastSync = t.UTC().Format(time.RFC3339)
}

// PreviousValue returns the last observed value for a metric key.
func (d *Data) PreviousValue(key string) (float64, bool) {
	if d == nil || d.MonitorValues == nil {
		return 0, false
	}
	value, ok := d.MonitorValues[key]
	return value, ok
}

// RecordValue sets the new baseline for a metric key and appends it to the
// bounded history, evicting the oldest entry beyond the cap. Errored
// metrics never reach this point, so a transient query failure does not
// poison the trend line.
func (d *Data) RecordValue(key string, value float64, limit int) {
	if d.MonitorValues == nil {
		d.MonitorValues = make(map[string]float64)
	}
	d.MonitorValues[key] = value
	if d.MonitorHistory == nil {
		d.MonitorHistory = make(map[string][]float64)
	}
	history := append(d.MonitorHistory[key], value)
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	d.MonitorHistory[key] = history
}
