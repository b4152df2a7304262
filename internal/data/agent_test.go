// File path: internal/data/agent_test.go
package data

import (
	"context"
	"fmt"
	"testing"

	"github.com/pulseos/pulse/internal/config"
	"github.com/pulseos/pulse/internal/snapshot"
	"github.com/pulseos/pulse/internal/source"
	"github.com/pulseos/pulse/internal/state"
)

type fakeExecutor struct {
	introspection *source.Introspection
	values        map[string]float64
}

func (f *fakeExecutor) Introspect(ctx context.Context, src source.Source) (*source.Introspection, error) {
	if f.introspection == nil {
		return nil, fmt.Errorf("introspect %s: unavailable", src.Name)
	}
	return f.introspection, nil
}

func (f *fakeExecutor) Query(ctx context.Context, src source.Source, sql string) (*source.Result, error) {
	value, ok := f.values[sql]
	if !ok {
		return nil, fmt.Errorf("query %s: unexpected sql %q", src.Name, sql)
	}
	return &source.Result{
		Columns: []string{"value"},
		Rows:    []map[string]interface{}{{"value": value}},
	}, nil
}

func testSources() config.Sources {
	return config.Sources{
		Databases: []source.Source{{Name: "orders", Type: "postgres"}},
		Monitors: []config.MonitorDef{{
			Source: "orders",
			Queries: []config.MonitorQuery{{
				Name:      "daily_count",
				SQL:       "SELECT COUNT(*) AS value FROM orders",
				AlertWhen: "change_pct < -50",
			}},
		}},
	}
}

func testIntrospection() *source.Introspection {
	return &source.Introspection{
		Schemas: []source.Schema{{
			Name: "public",
			Tables: []source.Table{{
				Name:     "orders",
				RowCount: 200,
				Columns:  []source.Column{{Name: "order_id", Type: "bigint"}},
			}},
		}},
	}
}

func newTestAgent(t *testing.T, cfg config.Data, exec source.Executor) *Agent {
	t.Helper()
	store, err := snapshot.New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	agent, err := New(cfg, testSources(), store, exec)
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	return agent
}

func TestRunPulseDisabled(t *testing.T) {
	exec := &fakeExecutor{}
	agent := newTestAgent(t, config.Data{Enabled: false}, exec)

	st := &state.Data{}
	result := agent.RunPulse(context.Background(), st)

	if len(result.KPIs) != 0 || len(result.Anomalies) != 0 || len(result.SchemaChanges) != 0 || len(result.Brief) != 0 {
		t.Errorf("disabled agent produced output: %+v", result)
	}
	if result.KPIs == nil || result.Anomalies == nil {
		t.Error("disabled result must carry empty slices, not nil")
	}
	if st.LastSync != "" {
		t.Errorf("disabled agent touched state: last_sync = %q", st.LastSync)
	}
}

func TestRunPulseEndToEnd(t *testing.T) {
	exec := &fakeExecutor{
		introspection: testIntrospection(),
		values:        map[string]float64{"SELECT COUNT(*) AS value FROM orders": 40},
	}
	agent := newTestAgent(t, config.Data{Enabled: true}, exec)

	st := &state.Data{
		MonitorValues: map[string]float64{"orders.daily_count": 200},
	}
	result := agent.RunPulse(context.Background(), st)

	if len(result.KPIs) != 1 {
		t.Fatalf("got %d KPIs, want 1", len(result.KPIs))
	}
	kpi := result.KPIs[0]
	if kpi.Error != "" {
		t.Fatalf("kpi errored: %s", kpi.Error)
	}
	if kpi.Value == nil || *kpi.Value != 40 {
		t.Errorf("kpi value = %v, want 40", kpi.Value)
	}
	if kpi.ChangePct == nil || *kpi.ChangePct != -80 {
		t.Errorf("change_pct = %v, want -80", kpi.ChangePct)
	}
	if len(result.Anomalies) != 1 {
		t.Fatalf("got %d anomalies, want 1", len(result.Anomalies))
	}
	if result.Anomalies[0].Severity != "high" {
		t.Errorf("severity = %q, want high", result.Anomalies[0].Severity)
	}

	if len(result.SchemaChanges) != 1 {
		t.Fatalf("got %d schema changes, want 1", len(result.SchemaChanges))
	}
	change := result.SchemaChanges[0]
	if change.DB != "orders" || change.Schema != "public" || change.Table != "orders" {
		t.Errorf("unexpected change %+v", change)
	}

	if len(result.Brief) == 0 {
		t.Error("pulse with anomalies and changes must produce brief sections")
	}

	want := Stats{TotalSources: 1, TotalTables: 1, KPIsTracked: 1, AnomaliesDetected: 1}
	if result.Stats != want {
		t.Errorf("stats = %+v, want %+v", result.Stats, want)
	}

	if st.LastSync == "" {
		t.Error("successful sync must stamp last_sync")
	}
	if st.MonitorValues["orders.daily_count"] != 40 {
		t.Errorf("baseline = %v, want 40", st.MonitorValues["orders.daily_count"])
	}
}

func TestRunPulseSyncDisabled(t *testing.T) {
	off := false
	exec := &fakeExecutor{
		values: map[string]float64{"SELECT COUNT(*) AS value FROM orders": 40},
	}
	agent := newTestAgent(t, config.Data{Enabled: true, SyncOnPulse: &off}, exec)

	st := &state.Data{}
	result := agent.RunPulse(context.Background(), st)

	if len(result.SchemaChanges) != 0 {
		t.Errorf("sync disabled but got %d schema changes", len(result.SchemaChanges))
	}
	if st.LastSync != "" {
		t.Errorf("sync disabled but last_sync = %q", st.LastSync)
	}
	if len(result.KPIs) != 1 {
		t.Errorf("monitors must still run: got %d KPIs", len(result.KPIs))
	}
}
