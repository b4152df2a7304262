// File path: internal/schemasync/sync.go
package schemasync

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"reflect"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/pulseos/pulse/internal/common"
	"github.com/pulseos/pulse/internal/common/telemetry"
	"github.com/pulseos/pulse/internal/snapshot"
	"github.com/pulseos/pulse/internal/source"
	"github.com/pulseos/pulse/internal/state"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// databasesPrefix is where database snapshots live inside the store.
const databasesPrefix = "databases"

// Config controls one sync run.
type Config struct {
	Interval time.Duration
	Force    bool
}

// Change identifies a table whose snapshot documents were created or
// modified during a sync.
type Change struct {
	DB     string `json:"db"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

// Result summarizes one sync run.
type Result struct {
	SourcesChecked int      `json:"sources_checked"`
	TotalTables    int      `json:"total_tables"`
	Changes        []Change `json:"changes"`
	Skipped        bool     `json:"skipped,omitempty"`
}

// Engine drives introspection, renders snapshot documents, and reconciles
// the store against the live source set.
type Engine struct {
	store     *snapshot.Store
	exec      source.Executor
	templates map[string]*template.Template
	logger    *slog.Logger
	now       func() time.Time
}

// New builds a sync engine over a snapshot store and an executor.
func New(store *snapshot.Store, exec source.Executor) (*Engine, error) {
	templates, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:     store,
		exec:      exec,
		templates: templates,
		logger:    common.ComponentLogger("data/sync"),
		now:       time.Now,
	}, nil
}

func loadTemplates() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"json": func(v interface{}) string {
			raw, err := json.Marshal(v)
			if err != nil {
				return ""
			}
			return string(raw)
		},
		"length": func(v interface{}) int {
			value := reflect.ValueOf(v)
			switch value.Kind() {
			case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
				return value.Len()
			default:
				return 0
			}
		},
	}
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	templates := make(map[string]*template.Template, len(entries))
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".tmpl")
		raw, err := templateFS.ReadFile(path.Join("templates", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", entry.Name(), err)
		}
		parsed, err := template.New(name).Funcs(funcs).Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", entry.Name(), err)
		}
		templates[name] = parsed
	}
	return templates, nil
}

// documentContext is the normalized rendering context shared by every
// template: its JSON-stable fields make re-rendering an unchanged table
// byte-identical.
type documentContext struct {
	DB     source.Source
	Schema source.Schema
	Table  source.Table
}

// Run syncs every configured source into the snapshot store. Introspection
// failures skip that source only; after all sources are processed, stale
// table directories are pruned.
func (e *Engine) Run(ctx context.Context, cfg Config, sources []source.Source, st *state.Data) (Result, error) {
	if len(sources) == 0 {
		return Result{}, nil
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if !cfg.Force && e.now().Sub(st.LastSyncTime()) < interval {
		e.logger.Info("skipping sync, within interval window")
		return Result{Skipped: true}, nil
	}

	ctx, finish := telemetry.StartSpan(ctx, "data.sync")
	result := Result{SourcesChecked: len(sources)}
	active := make(map[string]bool)

	for _, src := range sources {
		e.logger.Info("syncing source", "source", src.Name, "type", src.Type)
		introspection, err := e.exec.Introspect(ctx, src)
		if err != nil {
			e.logger.Error("introspection failed", "source", src.Name, "error", err)
			continue
		}
		for _, schema := range introspection.Schemas {
			for _, table := range schema.Tables {
				result.TotalTables++
				tablePath := tablePath(src, schema.Name, table.Name)
				active[tablePath] = true

				docCtx := documentContext{
					DB:     src,
					Schema: source.Schema{Name: schema.Name},
					Table:  normalizeTable(table),
				}

				changed, err := e.renderTable(tablePath, docCtx)
				if err != nil {
					e.logger.Error("render failed", "source", src.Name, "table", table.Name, "error", err)
					continue
				}
				if changed {
					result.Changes = append(result.Changes, Change{DB: src.Name, Schema: schema.Name, Table: table.Name})
				}
			}
		}
	}

	if err := e.store.PruneStale(databasesPrefix, active); err != nil {
		return result, fmt.Errorf("reconcile snapshot store: %w", err)
	}

	st.SetLastSync(e.now())
	telemetry.RecordSyncRun(result.TotalTables, len(result.Changes))
	finish("tables", result.TotalTables, "changes", len(result.Changes))
	e.logger.Info("sync complete",
		"sources", result.SourcesChecked,
		"tables", result.TotalTables,
		"changes", len(result.Changes))
	return result, nil
}

// renderTable renders every template for one table, writing only documents
// whose content differs from the stored copy. Templates render in name
// order so document writes are deterministic.
func (e *Engine) renderTable(tablePath string, docCtx documentContext) (bool, error) {
	names := make([]string, 0, len(e.templates))
	for name := range e.templates {
		names = append(names, name)
	}
	sort.Strings(names)

	changed := false
	for _, name := range names {
		var rendered strings.Builder
		if err := e.templates[name].Execute(&rendered, docCtx); err != nil {
			return changed, fmt.Errorf("render %s: %w", name, err)
		}
		wrote, err := e.store.WriteIfChanged(path.Join(databasesPrefix, tablePath, name), rendered.String())
		if err != nil {
			return changed, err
		}
		if wrote {
			changed = true
		}
	}
	return changed, nil
}

func tablePath(src source.Source, schemaName, tableName string) string {
	return path.Join(
		"type="+src.Type,
		"database="+src.Name,
		"schema="+schemaName,
		"table="+tableName,
	)
}

// normalizeTable fills derived fields so rendering is a pure function of
// the snapshot: column count defaults to len(columns), preview to an empty
// slice.
func normalizeTable(table source.Table) source.Table {
	if table.ColumnCount == 0 {
		table.ColumnCount = len(table.Columns)
	}
	if table.Preview == nil {
		table.Preview = []map[string]interface{}{}
	}
	return table
}
