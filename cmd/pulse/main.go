// File path: cmd/pulse/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/pulseos/pulse/internal/common"
	"github.com/pulseos/pulse/internal/config"
	"github.com/pulseos/pulse/internal/data"
	"github.com/pulseos/pulse/internal/snapshot"
	"github.com/pulseos/pulse/internal/source"
	"github.com/pulseos/pulse/internal/state"
)

func main() {
	logger := common.Logger()
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logger.Debug("pulse: .env file not loaded", "error", err)
	}

	root := flag.String("root", ".", "project root holding config/, state/, and data/")
	forceSync := flag.Bool("force-sync", false, "sync schema context even within the interval window")
	sidecar := flag.String("sidecar", "", "path to the database sidecar script (default <root>/integrations/sidecar.py)")
	flag.Parse()

	cfg, err := config.Load(*root)
	if err != nil {
		logger.Error("pulse: config load failed", "error", err)
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	if *forceSync {
		cfg.Data.ForceSync = true
	}
	sources, err := config.LoadSources(*root)
	if err != nil {
		logger.Error("pulse: data sources load failed", "error", err)
		fmt.Fprintln(os.Stderr, "data sources error:", err)
		os.Exit(1)
	}

	store, err := snapshot.New(filepath.Join(*root, "data", "context"))
	if err != nil {
		logger.Error("pulse: snapshot store open failed", "error", err)
		fmt.Fprintln(os.Stderr, "snapshot store error:", err)
		os.Exit(1)
	}

	script := strings.TrimSpace(*sidecar)
	if script == "" {
		script = filepath.Join(*root, "integrations", "sidecar.py")
	}
	registry := source.NewRegistry(source.NewSidecarClient(script), source.NewSQLiteExecutor())

	statePath := filepath.Join(*root, "state", "last_pulse_state.json")
	pulseState, err := state.Load(statePath)
	if err != nil {
		logger.Error("pulse: state load failed", "error", err)
		fmt.Fprintln(os.Stderr, "state error:", err)
		os.Exit(1)
	}

	agent, err := data.New(cfg.Data, sources, store, registry)
	if err != nil {
		logger.Error("pulse: agent init failed", "error", err)
		fmt.Fprintln(os.Stderr, "agent error:", err)
		os.Exit(1)
	}

	result := agent.RunPulse(ctx, &pulseState.Data)
	printBrief(result)

	if err := pulseState.Save(statePath); err != nil {
		logger.Error("pulse: state save failed", "error", err)
		fmt.Fprintln(os.Stderr, "state save error:", err)
		os.Exit(1)
	}
	logger.Info("pulse: complete",
		"sources", result.Stats.TotalSources,
		"tables", result.Stats.TotalTables,
		"kpis", result.Stats.KPIsTracked,
		"anomalies", result.Stats.AnomaliesDetected)
}

func printBrief(result data.PulseResult) {
	if len(result.Brief) == 0 {
		fmt.Println("No briefing items this pulse.")
		return
	}
	for _, section := range result.Brief {
		fmt.Printf("## %s [%s]\n", section.Title, section.Priority)
		for _, item := range section.Items {
			fmt.Println("-", item)
		}
		fmt.Println()
	}
}
