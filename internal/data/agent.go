// File path: internal/data/agent.go
package data

import (
	"context"
	"log/slog"

	"github.com/pulseos/pulse/internal/brief"
	"github.com/pulseos/pulse/internal/common"
	"github.com/pulseos/pulse/internal/config"
	"github.com/pulseos/pulse/internal/monitor"
	"github.com/pulseos/pulse/internal/schemasync"
	"github.com/pulseos/pulse/internal/snapshot"
	"github.com/pulseos/pulse/internal/source"
	"github.com/pulseos/pulse/internal/state"
)

// Stats summarizes one pulse for the briefing consumer.
type Stats struct {
	TotalSources      int `json:"total_sources"`
	TotalTables       int `json:"total_tables"`
	KPIsTracked       int `json:"kpis_tracked"`
	AnomaliesDetected int `json:"anomalies_detected"`
}

// PulseResult is everything the data agent contributes to one pulse.
type PulseResult struct {
	KPIs          []monitor.KPI     `json:"kpis"`
	Anomalies     []monitor.Anomaly `json:"anomalies"`
	SchemaChanges []schemasync.Change `json:"schema_changes"`
	Brief         []brief.Section   `json:"brief"`
	Stats         Stats             `json:"stats"`
}

// Agent composes the sync engine, the monitoring engine, and the briefing
// projector over one shared state object and snapshot store.
type Agent struct {
	cfg      config.Data
	sources  config.Sources
	syncer   *schemasync.Engine
	monitors *monitor.Engine
	logger   *slog.Logger
}

// New wires a data agent. Both engines share the executor registry; they
// touch disjoint parts of the pulse state so the caller may run the agent
// concurrently with unrelated agents, but not with another pulse.
func New(cfg config.Data, sources config.Sources, store *snapshot.Store, exec source.Executor) (*Agent, error) {
	syncer, err := schemasync.New(store, exec)
	if err != nil {
		return nil, err
	}
	return &Agent{
		cfg:      cfg,
		sources:  sources,
		syncer:   syncer,
		monitors: monitor.New(exec),
		logger:   common.ComponentLogger("data"),
	}, nil
}

// RunPulse performs one scheduled run: sync schema context, run monitors,
// project the briefing. Engine failures degrade to partial results; the
// pulse itself never aborts because one source is down.
func (a *Agent) RunPulse(ctx context.Context, st *state.Data) PulseResult {
	if !a.cfg.Enabled {
		a.logger.Info("disabled in config")
		return PulseResult{
			KPIs:          []monitor.KPI{},
			Anomalies:     []monitor.Anomaly{},
			SchemaChanges: []schemasync.Change{},
			Brief:         []brief.Section{},
		}
	}

	var syncResult schemasync.Result
	if a.cfg.SyncEnabled() {
		result, err := a.syncer.Run(ctx, schemasync.Config{
			Interval: a.cfg.SyncInterval(),
			Force:    a.cfg.ForceSync,
		}, a.sources.Databases, st)
		if err != nil {
			a.logger.Error("sync failed", "error", err)
		}
		syncResult = result
	}

	var monitorResult monitor.Result
	if a.cfg.MonitorEnabled() {
		monitorResult = a.monitors.Run(ctx, a.sources.Monitors, a.sources, st, a.cfg.HistoryCap())
	}

	return PulseResult{
		KPIs:          monitorResult.KPIs,
		Anomalies:     monitorResult.Anomalies,
		SchemaChanges: syncResult.Changes,
		Brief:         brief.Generate(monitorResult, syncResult),
		Stats: Stats{
			TotalSources:      syncResult.SourcesChecked,
			TotalTables:       syncResult.TotalTables,
			KPIsTracked:       len(monitorResult.KPIs),
			AnomaliesDetected: len(monitorResult.Anomalies),
		},
	}
}
