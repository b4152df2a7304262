// File path: cmd/dataq/main.go
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/pulseos/pulse/internal/answer"
	"github.com/pulseos/pulse/internal/common"
	"github.com/pulseos/pulse/internal/config"
	"github.com/pulseos/pulse/internal/llm"
	"github.com/pulseos/pulse/internal/snapshot"
	"github.com/pulseos/pulse/internal/source"
)

const replPreviewRows = 20

func main() {
	logger := common.Logger()
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logger.Debug("dataq: .env file not loaded", "error", err)
	}

	root := flag.String("root", ".", "project root holding config/ and data/")
	casesDir := flag.String("cases", "", "run YAML eval cases from this directory instead of the REPL")
	sidecar := flag.String("sidecar", "", "path to the database sidecar script (default <root>/integrations/sidecar.py)")
	flag.Parse()

	cfg, err := config.Load(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	sources, err := config.LoadSources(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, "data sources error:", err)
		os.Exit(1)
	}
	store, err := snapshot.New(filepath.Join(*root, "data", "context"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "snapshot store error:", err)
		os.Exit(1)
	}

	script := strings.TrimSpace(*sidecar)
	if script == "" {
		script = filepath.Join(*root, "integrations", "sidecar.py")
	}
	registry := source.NewRegistry(source.NewSidecarClient(script), source.NewSQLiteExecutor())

	pipeline := answer.New(store, sources, registry, llm.NewProvider(), config.LoadRules(*root), cfg.Data.MaxResults())

	if strings.TrimSpace(*casesDir) != "" {
		os.Exit(runCases(ctx, pipeline, *casesDir))
	}
	runREPL(ctx, pipeline, sources)
}

func runCases(ctx context.Context, pipeline *answer.Pipeline, dir string) int {
	cases, err := answer.LoadCases(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cases error:", err)
		return 1
	}
	if len(cases) == 0 {
		fmt.Println("No eval cases found.")
		return 0
	}

	fmt.Printf("Running %d eval case(s)...\n\n", len(cases))
	passed := 0
	for _, result := range pipeline.RunCases(ctx, cases) {
		switch {
		case result.Passed:
			fmt.Printf("  %s... PASS\n", result.Name)
			passed++
		case result.Error != "":
			fmt.Printf("  %s... FAIL (%s)\n", result.Name, result.Error)
		default:
			fmt.Printf("  %s... FAIL\n", result.Name)
			fmt.Printf("    Expected SQL: %s\n", strings.TrimSpace(result.ExpectedSQL))
			fmt.Printf("    Actual SQL:   %s\n", result.ActualSQL)
		}
	}
	failed := len(cases) - passed
	fmt.Printf("\n%d/%d passed", passed, len(cases))
	if failed > 0 {
		fmt.Printf(", %d failed", failed)
	}
	fmt.Println()
	if failed > 0 {
		return 1
	}
	return 0
}

func runREPL(ctx context.Context, pipeline *answer.Pipeline, sources config.Sources) {
	fmt.Println("Data Q&A — ask questions about your data")
	fmt.Println(`Commands: "exit" to quit, "sources" to list data sources`)
	fmt.Println()
	if len(sources.Databases) == 0 {
		fmt.Println("Warning: no data sources configured. Edit config/data-sources.yaml to add databases.")
		fmt.Println()
	} else {
		printSources(sources)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("data> ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "exit", "quit":
			return
		case "sources":
			printSources(sources)
			continue
		}

		fmt.Println("Thinking...")
		fmt.Println()
		printAnswer(pipeline.Answer(ctx, input))
	}
}

func printSources(sources config.Sources) {
	for _, src := range sources.Databases {
		fmt.Printf("  %s (%s)\n", src.Name, src.Type)
	}
	fmt.Println()
}

func printAnswer(result answer.Answer) {
	if result.Error != "" {
		fmt.Printf("Error: %s\n\n", result.Error)
		return
	}
	if result.SQL != "" {
		fmt.Printf("SQL: %s\n\n", result.SQL)
	}
	if len(result.Results) > 0 {
		shown := result.Results
		if len(shown) > replPreviewRows {
			shown = shown[:replPreviewRows]
		}
		for _, row := range shown {
			raw, err := json.Marshal(row)
			if err != nil {
				continue
			}
			fmt.Println(" ", string(raw))
		}
		fmt.Printf("(showing %d of %s rows)\n", len(shown), result.TotalRows)
	}
	if result.Explanation != "" {
		fmt.Printf("\n%s\n", result.Explanation)
	}
	fmt.Println()
}
