// File path: internal/brief/brief.go
package brief

import (
	"fmt"
	"strings"

	"github.com/pulseos/pulse/internal/monitor"
	"github.com/pulseos/pulse/internal/schemasync"
)

// Section is one prioritized briefing block consumed by the pulse driver.
type Section struct {
	Priority string   `json:"priority"`
	Category string   `json:"category"`
	Title    string   `json:"title"`
	Items    []string `json:"items"`
}

// Generate projects monitor and sync results into briefing sections:
// anomalies are urgent, monitor errors need action, KPI values and schema
// changes are informational. Errored KPIs get their own section so
// operational failures are never silently dropped from the report.
func Generate(monitorResult monitor.Result, syncResult schemasync.Result) []Section {
	var sections []Section

	if len(monitorResult.Anomalies) > 0 {
		items := make([]string, 0, len(monitorResult.Anomalies))
		for _, a := range monitorResult.Anomalies {
			items = append(items, fmt.Sprintf("[%s] %s = %s%s — triggered: %s",
				strings.ToUpper(a.Severity), a.Key(), formatValue(a.Value), formatChange(a.ChangePct, " vs last pulse"), a.AlertRule))
		}
		sections = append(sections, Section{Priority: "urgent", Category: "data", Title: "Data Anomalies", Items: items})
	}

	if len(monitorResult.KPIs) > 0 {
		var healthy, errored []monitor.KPI
		for _, k := range monitorResult.KPIs {
			if k.Error == "" {
				healthy = append(healthy, k)
			} else {
				errored = append(errored, k)
			}
		}
		if len(healthy) > 0 {
			items := make([]string, 0, len(healthy))
			for _, k := range healthy {
				items = append(items, fmt.Sprintf("%s: %s%s", k.Name, formatValue(k.Value), formatChange(k.ChangePct, "")))
			}
			sections = append(sections, Section{Priority: "fyi", Category: "data", Title: "KPI Summary", Items: items})
		}
		if len(errored) > 0 {
			items := make([]string, 0, len(errored))
			for _, k := range errored {
				items = append(items, fmt.Sprintf("%s: %s", k.Key(), k.Error))
			}
			sections = append(sections, Section{Priority: "action", Category: "data", Title: "Monitor Errors", Items: items})
		}
	}

	if len(syncResult.Changes) > 0 {
		items := make([]string, 0, len(syncResult.Changes))
		for _, c := range syncResult.Changes {
			items = append(items, fmt.Sprintf("%s.%s.%s — context updated", c.DB, c.Schema, c.Table))
		}
		sections = append(sections, Section{Priority: "fyi", Category: "data", Title: "Schema Changes", Items: items})
	}

	return sections
}

func formatValue(value *float64) string {
	if value == nil {
		return "null"
	}
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", *value), "0"), ".")
}

// formatChange renders a signed percent change, or nothing when the change
// is undefined. A missing baseline is not 0%.
func formatChange(changePct *float64, suffix string) string {
	if changePct == nil {
		return ""
	}
	sign := ""
	if *changePct > 0 {
		sign = "+"
	}
	return fmt.Sprintf(" (%s%.1f%%%s)", sign, *changePct, suffix)
}
