// File path: internal/answer/answer_test.go
package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pulseos/pulse/internal/config"
	"github.com/pulseos/pulse/internal/llm"
	"github.com/pulseos/pulse/internal/snapshot"
	"github.com/pulseos/pulse/internal/source"
)

type stubProvider struct {
	response   string
	err        error
	lastSystem string
}

func (s *stubProvider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	for _, msg := range messages {
		if msg.Role == "system" {
			s.lastSystem = msg.Content
		}
	}
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubProvider) Name() string { return "stub" }

type stubExecutor struct {
	result *source.Result
	err    error
}

func (s *stubExecutor) Introspect(ctx context.Context, src source.Source) (*source.Introspection, error) {
	return nil, errors.New("not implemented")
}

func (s *stubExecutor) Query(ctx context.Context, src source.Source, sql string) (*source.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func crmSources() config.Sources {
	return config.Sources{Databases: []source.Source{
		{Name: "crm", Type: "sqlite"},
		{Name: "warehouse", Type: "duckdb"},
	}}
}

func newTestPipeline(t *testing.T, provider llm.Provider, exec source.Executor, maxResults int) (*Pipeline, *snapshot.Store) {
	t.Helper()
	store, err := snapshot.New(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return New(store, crmSources(), exec, provider, "Fiscal year starts in February.", maxResults), store
}

func writeDoc(t *testing.T, store *snapshot.Store, rel, content string) {
	t.Helper()
	if _, err := store.WriteIfChanged(rel, content); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestRetrievalUnionsKeywordMatches(t *testing.T) {
	provider := &stubProvider{response: `{"source": "crm", "sql": "SELECT 1", "explanation": "probe"}`}
	pipeline, store := newTestPipeline(t, provider, &stubExecutor{result: &source.Result{}}, 100)

	writeDoc(t, store, "databases/type=sqlite/database=crm/schema=main/table=invoices/schema.md", "# invoices table\n")
	writeDoc(t, store, "databases/type=duckdb/database=warehouse/schema=main/table=shipments/schema.md", "# shipments table\n")

	result := pipeline.Answer(context.Background(), "compare invoices against shipments")
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}

	invoices := strings.Count(provider.lastSystem, "table=invoices/schema.md")
	shipments := strings.Count(provider.lastSystem, "table=shipments/schema.md")
	if invoices != 1 || shipments != 1 {
		t.Fatalf("prompt contains invoices doc %d time(s) and shipments doc %d time(s), want exactly 1 each", invoices, shipments)
	}
	if !strings.Contains(provider.lastSystem, "Fiscal year starts in February.") {
		t.Error("business rules missing from prompt")
	}
	if !strings.Contains(provider.lastSystem, "- **crm** (sqlite)") {
		t.Error("source list missing from prompt")
	}
}

func TestEmptyStoreIsTerminalRetrievalError(t *testing.T) {
	provider := &stubProvider{response: `{"source": "crm", "sql": "SELECT 1", "explanation": ""}`}
	pipeline, _ := newTestPipeline(t, provider, &stubExecutor{result: &source.Result{}}, 100)

	result := pipeline.Answer(context.Background(), "how many invoices")
	if result.Error == "" || !strings.Contains(result.Error, "sync") {
		t.Fatalf("expected sync-required error, got %q", result.Error)
	}
	if provider.lastSystem != "" {
		t.Error("reasoning service must not be called with an empty store")
	}
}

func TestGenerationFailureIsTerminal(t *testing.T) {
	tests := []struct {
		name     string
		provider *stubProvider
	}{
		{"service error", &stubProvider{err: errors.New("rate limited")}},
		{"unparseable output", &stubProvider{response: "```json\n{}\n```ish"}},
		{"local stub echo", &stubProvider{response: "[local-stub] how many invoices"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline, store := newTestPipeline(t, tt.provider, &stubExecutor{result: &source.Result{}}, 100)
			writeDoc(t, store, "databases/type=sqlite/database=crm/schema=main/table=invoices/schema.md", "# invoices\n")

			result := pipeline.Answer(context.Background(), "count invoices")
			if !strings.HasPrefix(result.Error, "SQL generation failed") {
				t.Fatalf("error = %q, want generation-stage error", result.Error)
			}
			if result.Results != nil {
				t.Error("no results expected on generation failure")
			}
		})
	}
}

func TestUnknownSourceReportsAvailableNames(t *testing.T) {
	provider := &stubProvider{response: `{"source": "nonexistent", "sql": "SELECT 1", "explanation": "x"}`}
	pipeline, store := newTestPipeline(t, provider, &stubExecutor{result: &source.Result{}}, 100)
	writeDoc(t, store, "databases/type=sqlite/database=crm/schema=main/table=invoices/schema.md", "# invoices\n")

	result := pipeline.Answer(context.Background(), "count invoices")
	if !strings.Contains(result.Error, "data source not found: nonexistent") {
		t.Fatalf("error = %q, want source-not-found", result.Error)
	}
	if !strings.Contains(result.Error, "crm, warehouse") {
		t.Errorf("error must list available sources, got %q", result.Error)
	}
}

func TestExecutionFailurePreservesQueryForDiagnosis(t *testing.T) {
	provider := &stubProvider{response: `{"source": "crm", "sql": "SELECT nope", "explanation": "broken"}`}
	pipeline, store := newTestPipeline(t, provider, &stubExecutor{err: errors.New("no such column: nope")}, 100)
	writeDoc(t, store, "databases/type=sqlite/database=crm/schema=main/table=invoices/schema.md", "# invoices\n")

	result := pipeline.Answer(context.Background(), "count invoices")
	if !strings.HasPrefix(result.Error, "SQL execution failed") {
		t.Fatalf("error = %q, want execution-stage error", result.Error)
	}
	if result.SQL != "SELECT nope" || result.Explanation != "broken" {
		t.Errorf("query and explanation must survive an execution failure, got %+v", result)
	}
}

func TestTruncationCapsRowsAndReportsCap(t *testing.T) {
	rows := make([]map[string]interface{}, 250)
	for i := range rows {
		rows[i] = map[string]interface{}{"n": float64(i)}
	}
	provider := &stubProvider{response: `{"source": "crm", "sql": "SELECT n FROM big", "explanation": "all rows"}`}
	pipeline, store := newTestPipeline(t, provider, &stubExecutor{result: &source.Result{Columns: []string{"n"}, Rows: rows}}, 100)
	writeDoc(t, store, "databases/type=sqlite/database=crm/schema=main/table=big/schema.md", "# big\n")

	result := pipeline.Answer(context.Background(), "list big rows")
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if len(result.Results) != 100 {
		t.Fatalf("got %d rows, want 100", len(result.Results))
	}
	if !result.Truncated {
		t.Error("expected truncated flag")
	}
	if result.TotalRows != "100+ (truncated)" {
		t.Errorf("total_rows = %q, want %q", result.TotalRows, "100+ (truncated)")
	}
}

func TestUntruncatedResultReportsTrueCount(t *testing.T) {
	provider := &stubProvider{response: `{"source": "crm", "sql": "SELECT 1", "explanation": "one"}`}
	exec := &stubExecutor{result: &source.Result{Columns: []string{"n"}, Rows: []map[string]interface{}{{"n": 1.0}}}}
	pipeline, store := newTestPipeline(t, provider, exec, 100)
	writeDoc(t, store, "databases/type=sqlite/database=crm/schema=main/table=big/schema.md", "# big\n")

	result := pipeline.Answer(context.Background(), "one big row")
	if result.Truncated {
		t.Error("unexpected truncation")
	}
	if result.TotalRows != "1" {
		t.Errorf("total_rows = %q, want %q", result.TotalRows, "1")
	}
	if result.Source != "crm" {
		t.Errorf("source = %q, want crm", result.Source)
	}
}
