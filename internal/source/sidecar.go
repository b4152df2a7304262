// File path: internal/source/sidecar.go
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/pulseos/pulse/internal/common"
)

const defaultSidecarTimeout = 60 * time.Second

// SidecarClient proxies introspection and query execution to the Python
// database sidecar: one short-lived process per call, JSON over
// stdin/stdout, stderr carried back as the error message.
type SidecarClient struct {
	python  string
	script  string
	timeout time.Duration
}

// SidecarOption mutates a SidecarClient during construction.
type SidecarOption func(*SidecarClient)

// WithTimeout overrides the per-call deadline.
func WithTimeout(timeout time.Duration) SidecarOption {
	return func(c *SidecarClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewSidecarClient builds a client for the sidecar script at the given
// path. The Python binary comes from PYTHON_PATH, falling back to py on
// Windows and python3 elsewhere.
func NewSidecarClient(script string, opts ...SidecarOption) *SidecarClient {
	python := strings.TrimSpace(os.Getenv("PYTHON_PATH"))
	if python == "" {
		if runtime.GOOS == "windows" {
			python = "py"
		} else {
			python = "python3"
		}
	}
	client := &SidecarClient{python: python, script: script, timeout: defaultSidecarTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Introspect returns the normalized schema snapshot for a source.
func (c *SidecarClient) Introspect(ctx context.Context, src Source) (*Introspection, error) {
	raw, err := c.call(ctx, "introspect", src.Payload())
	if err != nil {
		return nil, err
	}
	var introspection Introspection
	if err := json.Unmarshal(raw, &introspection); err != nil {
		return nil, fmt.Errorf("decode introspection for %s: %w", src.Name, err)
	}
	return &introspection, nil
}

// Query executes SQL against a source through the sidecar. The sidecar
// replies with {"columns": [...], "rows": [...]}; a bare record array is
// accepted for older sidecars, losing column order.
func (c *SidecarClient) Query(ctx context.Context, src Source, sql string) (*Result, error) {
	payload := map[string]interface{}{"config": src.Payload(), "sql": sql}
	raw, err := c.call(ctx, "query", payload)
	if err != nil {
		return nil, err
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err == nil && (result.Rows != nil || result.Columns != nil) {
		return &result, nil
	}
	var rows []map[string]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode query result for %s: %w", src.Name, err)
	}
	return &Result{Rows: rows}, nil
}

func (c *SidecarClient) call(ctx context.Context, command string, payload interface{}) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("sidecar client not initialised")
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode sidecar payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.python, c.script, command)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	common.Logger().Debug("source: invoking sidecar", "command", command)
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("sidecar %s failed: %s", command, msg)
	}
	out := bytes.TrimSpace(stdout.Bytes())
	if !json.Valid(out) {
		preview := string(out)
		if len(preview) > 500 {
			preview = preview[:500]
		}
		return nil, fmt.Errorf("invalid JSON from sidecar: %s", preview)
	}
	return out, nil
}
