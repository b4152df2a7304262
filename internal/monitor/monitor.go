// File path: internal/monitor/monitor.go
package monitor

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/pulseos/pulse/internal/common"
	"github.com/pulseos/pulse/internal/common/telemetry"
	"github.com/pulseos/pulse/internal/config"
	"github.com/pulseos/pulse/internal/source"
	"github.com/pulseos/pulse/internal/state"
)

// Severity tiers for anomalies. The thresholds in severityFor are design
// constants, not configuration.
const (
	SeverityInfo   = "info"
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// KPI is one metric observation: current value, previous baseline, percent
// change, and an error when the query failed. Nil pointers encode
// "undefined" — a missing baseline is never conflated with zero change.
type KPI struct {
	Source    string   `json:"source"`
	Name      string   `json:"name"`
	Value     *float64 `json:"value"`
	Previous  *float64 `json:"previous"`
	ChangePct *float64 `json:"change_pct"`
	Error     string   `json:"error,omitempty"`
}

// Key returns the metric key used to track history across pulses.
func (k KPI) Key() string {
	return k.Source + "." + k.Name
}

// Anomaly is a KPI that satisfied its alert rule.
type Anomaly struct {
	KPI
	AlertRule string `json:"alert_rule"`
	Severity  string `json:"severity"`
}

// Result is the outcome of one monitoring run.
type Result struct {
	KPIs      []KPI     `json:"kpis"`
	Anomalies []Anomaly `json:"anomalies"`
}

// Engine executes monitor queries and evaluates alert rules.
type Engine struct {
	exec   source.Executor
	logger *slog.Logger
}

// New builds a monitoring engine over the query-execution boundary.
func New(exec source.Executor) *Engine {
	return &Engine{exec: exec, logger: common.ComponentLogger("data/monitor")}
}

// Run executes every query of every monitor definition. An unknown source
// name skips that monitor with a warning; a failed query records an errored
// KPI and moves on. Successful values update the bounded history in st.
func (e *Engine) Run(ctx context.Context, monitors []config.MonitorDef, sources config.Sources, st *state.Data, historyCap int) Result {
	result := Result{KPIs: []KPI{}, Anomalies: []Anomaly{}}
	if len(monitors) == 0 {
		return result
	}

	for _, mon := range monitors {
		src, ok := sources.FindSource(mon.Source)
		if !ok {
			e.logger.Warn("monitor source not found", "source", mon.Source)
			continue
		}

		for _, query := range mon.Queries {
			kpi := KPI{Source: mon.Source, Name: query.Name}

			started := time.Now()
			res, err := e.exec.Query(ctx, src, query.SQL)
			telemetry.RecordSourceQuery(mon.Source, time.Since(started), err != nil)
			if err != nil {
				kpi.Error = err.Error()
				e.logger.Error("monitor query failed", "key", kpi.Key(), "error", err)
			} else {
				kpi.Value = ScalarValue(res)
			}

			if previous, ok := st.PreviousValue(kpi.Key()); ok {
				kpi.Previous = &previous
			}
			kpi.ChangePct = changePct(kpi.Value, kpi.Previous)
			result.KPIs = append(result.KPIs, kpi)

			if kpi.Error == "" && EvaluateAlert(query.AlertWhen, kpi) {
				result.Anomalies = append(result.Anomalies, Anomaly{
					KPI:       kpi,
					AlertRule: query.AlertWhen,
					Severity:  severityFor(kpi),
				})
			}

			if kpi.Error == "" && kpi.Value != nil {
				st.RecordValue(kpi.Key(), *kpi.Value, historyCap)
			}
		}
	}

	e.logger.Info("monitors complete", "kpis", len(result.KPIs), "anomalies", len(result.Anomalies))
	return result
}

// changePct computes (current - previous) / |previous| * 100, undefined
// (nil) when either side is missing or the baseline is zero.
func changePct(current, previous *float64) *float64 {
	if current == nil || previous == nil || *previous == 0 {
		return nil
	}
	pct := (*current - *previous) / math.Abs(*previous) * 100
	return &pct
}

// ScalarValue extracts the metric value from a query result as one total
// function with a fixed fallback order: the first row's "value" field, else
// its first column, else undefined. Text coerces through a float parse;
// unparseable text and non-scalar values are undefined.
func ScalarValue(res *source.Result) *float64 {
	if res == nil || len(res.Rows) == 0 {
		return nil
	}
	row := res.Rows[0]
	if raw, ok := row["value"]; ok {
		return coerceNumeric(raw)
	}
	if len(res.Columns) > 0 {
		if raw, ok := row[res.Columns[0]]; ok {
			return coerceNumeric(raw)
		}
	}
	return nil
}

func coerceNumeric(raw interface{}) *float64 {
	switch v := raw.(type) {
	case float64:
		return &v
	case float32:
		f := float64(v)
		return &f
	case int:
		f := float64(v)
		return &f
	case int32:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		return &parsed
	default:
		return nil
	}
}

var alertPattern = regexp.MustCompile(`^(\w+)\s*([<>]=?)\s*(-?[\d.]+)$`)

// EvaluateAlert parses a rule of the form "field operator threshold" and
// applies it to the KPI. Unrecognized syntax, unknown fields, and undefined
// field values never fire: rule validation happens at evaluation time, so a
// misconfigured rule is inert rather than fatal.
func EvaluateAlert(rule string, kpi KPI) bool {
	if rule == "" {
		return false
	}
	groups := alertPattern.FindStringSubmatch(rule)
	if groups == nil {
		return false
	}
	threshold, err := strconv.ParseFloat(groups[3], 64)
	if err != nil {
		return false
	}

	var actual *float64
	switch groups[1] {
	case "value":
		actual = kpi.Value
	case "change_pct":
		actual = kpi.ChangePct
	default:
		return false
	}
	if actual == nil {
		return false
	}

	switch groups[2] {
	case "<":
		return *actual < threshold
	case ">":
		return *actual > threshold
	case "<=":
		return *actual <= threshold
	case ">=":
		return *actual >= threshold
	default:
		return false
	}
}

func severityFor(kpi KPI) string {
	if kpi.ChangePct == nil {
		return SeverityInfo
	}
	abs := math.Abs(*kpi.ChangePct)
	switch {
	case abs > 50:
		return SeverityHigh
	case abs > 20:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
