// File path: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulseos/pulse/internal/common"
	"github.com/pulseos/pulse/internal/source"
)

const (
	defaultSyncIntervalHours = 6
	defaultHistoryPulses     = 10
	defaultMaxResults        = 100
)

// Config is the top-level pulse configuration loaded from config.yaml.
type Config struct {
	Data Data `yaml:"data"`
}

// Data configures the data agent for one pulse.
type Data struct {
	Enabled           bool    `yaml:"enabled"`
	SyncOnPulse       *bool   `yaml:"sync_on_pulse"`
	ForceSync         bool    `yaml:"force_sync"`
	SyncIntervalHours float64 `yaml:"sync_interval_hours"`
	Monitor           Monitor `yaml:"monitor"`
	CLI               CLI     `yaml:"cli"`
}

// Monitor configures the monitoring engine.
type Monitor struct {
	Enabled       *bool `yaml:"enabled"`
	HistoryPulses int   `yaml:"history_pulses"`
}

// CLI configures answer-pipeline result shaping.
type CLI struct {
	MaxResults int `yaml:"max_results"`
}

// Sources is the contents of data-sources.yaml: the data source descriptors
// plus the monitor definitions that run against them.
type Sources struct {
	Databases []source.Source `yaml:"databases"`
	Monitors  []MonitorDef    `yaml:"monitors"`
}

// MonitorDef binds an ordered list of scalar queries to one source.
type MonitorDef struct {
	Source  string         `yaml:"source"`
	Queries []MonitorQuery `yaml:"queries"`
}

// MonitorQuery is one named scalar metric query with an optional alert rule
// of the form "field operator threshold".
type MonitorQuery struct {
	Name      string `yaml:"name"`
	SQL       string `yaml:"sql"`
	AlertWhen string `yaml:"alert_when"`
}

// SyncInterval returns the minimum interval between real syncs.
func (d Data) SyncInterval() time.Duration {
	hours := d.SyncIntervalHours
	if hours <= 0 {
		hours = defaultSyncIntervalHours
	}
	return time.Duration(hours * float64(time.Hour))
}

// SyncEnabled reports whether sync runs as part of the pulse (default true).
func (d Data) SyncEnabled() bool {
	return d.SyncOnPulse == nil || *d.SyncOnPulse
}

// MonitorEnabled reports whether monitors run as part of the pulse (default true).
func (d Data) MonitorEnabled() bool {
	return d.Monitor.Enabled == nil || *d.Monitor.Enabled
}

// HistoryCap returns the bounded length of per-metric value history.
func (d Data) HistoryCap() int {
	if d.Monitor.HistoryPulses > 0 {
		return d.Monitor.HistoryPulses
	}
	return defaultHistoryPulses
}

// MaxResults returns the answer-pipeline row cap.
func (d Data) MaxResults() int {
	if d.CLI.MaxResults > 0 {
		return d.CLI.MaxResults
	}
	return defaultMaxResults
}

var envPattern = regexp.MustCompile(`\{\{\s*env\(['"](\w+)['"]\)\s*\}\}`)

// interpolateEnv substitutes {{ env('VAR') }} placeholders with process
// environment values. Unset variables interpolate to the empty string with
// a logged warning, matching the loader contract.
func interpolateEnv(text string) string {
	return envPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		value, ok := os.LookupEnv(name)
		if !ok {
			common.Logger().Warn("config: env var not set", "var", name)
			return ""
		}
		return value
	})
}

func loadYAML(path string, out interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(raw))), out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Load reads config.yaml from the config directory under root, preferring a
// config.local.yaml override when present.
func Load(root string) (Config, error) {
	path := filepath.Join(root, "config", "config.yaml")
	if local := filepath.Join(root, "config", "config.local.yaml"); fileExists(local) {
		path = local
	}
	var cfg Config
	if err := loadYAML(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadSources reads data-sources.yaml with env interpolation.
func LoadSources(root string) (Sources, error) {
	var sources Sources
	if err := loadYAML(filepath.Join(root, "config", "data-sources.yaml"), &sources); err != nil {
		return Sources{}, err
	}
	return sources, nil
}

// LoadRules reads data-rules.md as opaque free text injected verbatim into
// answer prompts. A missing rules file is not an error.
func LoadRules(root string) string {
	raw, err := os.ReadFile(filepath.Join(root, "config", "data-rules.md"))
	if err != nil {
		return ""
	}
	return string(raw)
}

// FindSource resolves a source descriptor by name.
func (s Sources) FindSource(name string) (source.Source, bool) {
	for _, src := range s.Databases {
		if src.Name == name {
			return src, true
		}
	}
	return source.Source{}, false
}

// SourceNames lists the configured source names in declaration order.
func (s Sources) SourceNames() []string {
	names := make([]string, 0, len(s.Databases))
	for _, src := range s.Databases {
		names = append(names, src.Name)
	}
	return names
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
