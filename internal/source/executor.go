// File path: internal/source/executor.go
package source

import (
	"context"
	"fmt"
)

// Executor is the query-execution boundary shared by the sync engine, the
// monitoring engine, and the answer pipeline: synchronous, at-most-once
// calls with no partial results on failure.
type Executor interface {
	Introspect(ctx context.Context, src Source) (*Introspection, error)
	Query(ctx context.Context, src Source, sql string) (*Result, error)
}

// Registry routes a source descriptor to the executor handling its type.
// SQLite sources run in-process; every other type is proxied to the sidecar.
type Registry struct {
	sidecar Executor
	sqlite  Executor
}

// NewRegistry builds the default routing table.
func NewRegistry(sidecar, sqlite Executor) *Registry {
	return &Registry{sidecar: sidecar, sqlite: sqlite}
}

// ForSource picks the executor for a descriptor.
func (r *Registry) ForSource(src Source) (Executor, error) {
	if r == nil {
		return nil, fmt.Errorf("executor registry not initialised")
	}
	if src.Type == "sqlite" && r.sqlite != nil {
		return r.sqlite, nil
	}
	if r.sidecar == nil {
		return nil, fmt.Errorf("no executor for source type %q", src.Type)
	}
	return r.sidecar, nil
}

// Introspect dispatches to the executor for the source type.
func (r *Registry) Introspect(ctx context.Context, src Source) (*Introspection, error) {
	exec, err := r.ForSource(src)
	if err != nil {
		return nil, err
	}
	return exec.Introspect(ctx, src)
}

// Query dispatches to the executor for the source type.
func (r *Registry) Query(ctx context.Context, src Source, sql string) (*Result, error) {
	exec, err := r.ForSource(src)
	if err != nil {
		return nil, err
	}
	return exec.Query(ctx, src, sql)
}
