// File path: internal/answer/answer.go
package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pulseos/pulse/internal/common"
	"github.com/pulseos/pulse/internal/common/telemetry"
	"github.com/pulseos/pulse/internal/config"
	"github.com/pulseos/pulse/internal/llm"
	"github.com/pulseos/pulse/internal/snapshot"
	"github.com/pulseos/pulse/internal/source"
)

// Answer is the result of one natural-language question: the generated
// query, the executed rows (possibly truncated), and an explanation. Error
// is terminal for the question; the stage it came from is distinguishable
// from its message.
type Answer struct {
	Question    string                   `json:"question"`
	Source      string                   `json:"source,omitempty"`
	SQL         string                   `json:"sql,omitempty"`
	Results     []map[string]interface{} `json:"results,omitempty"`
	Explanation string                   `json:"explanation,omitempty"`
	Truncated   bool                     `json:"truncated,omitempty"`
	TotalRows   string                   `json:"total_rows,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

// proposal is the structured object the reasoning service must return.
type proposal struct {
	Source      string `json:"source"`
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

// Pipeline answers free-form data questions: retrieve snapshot documents,
// assemble a prompt, delegate SQL synthesis, execute, shape.
type Pipeline struct {
	store      *snapshot.Store
	sources    config.Sources
	exec       source.Executor
	provider   llm.Provider
	rules      string
	maxResults int
	logger     *slog.Logger
}

// New builds an answer pipeline. rules is the opaque business-rule document
// injected verbatim into prompts; maxResults caps returned rows.
func New(store *snapshot.Store, sources config.Sources, exec source.Executor, provider llm.Provider, rules string, maxResults int) *Pipeline {
	if maxResults <= 0 {
		maxResults = 100
	}
	return &Pipeline{
		store:      store,
		sources:    sources,
		exec:       exec,
		provider:   provider,
		rules:      rules,
		maxResults: maxResults,
		logger:     common.ComponentLogger("data/answer"),
	}
}

// Answer runs the full pipeline for one question. Each stage produces a
// distinct terminal error so callers can tell a retrieval gap from a bad
// generation from a failing query.
func (p *Pipeline) Answer(ctx context.Context, question string) Answer {
	result := Answer{Question: question}

	docs, err := p.findRelevantDocs(question)
	if err != nil {
		result.Error = fmt.Sprintf("context search failed: %v", err)
		return result
	}
	if len(docs) == 0 {
		entries, err := p.store.List("databases")
		if err != nil || len(entries) == 0 {
			result.Explanation = "No data context available. Run sync first."
			result.Error = "no snapshot documents found; run the data agent sync first"
			return result
		}
	}

	system := p.buildSystemPrompt(docs)

	started := time.Now()
	raw, err := p.provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: question},
	})
	telemetry.RecordLLMRequest(time.Since(started))
	if err != nil {
		result.Error = fmt.Sprintf("SQL generation failed: %v", err)
		return result
	}
	var prop proposal
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &prop); err != nil {
		result.Error = fmt.Sprintf("SQL generation failed: unparseable response: %v", err)
		return result
	}
	result.Source = prop.Source
	result.SQL = prop.SQL
	result.Explanation = prop.Explanation

	src, ok := p.sources.FindSource(prop.Source)
	if !ok {
		result.Error = fmt.Sprintf("SQL execution failed: data source not found: %s. Available: %s",
			prop.Source, strings.Join(p.sources.SourceNames(), ", "))
		return result
	}
	queryStart := time.Now()
	res, err := p.exec.Query(ctx, src, prop.SQL)
	telemetry.RecordSourceQuery(src.Name, time.Since(queryStart), err != nil)
	if err != nil {
		result.Error = fmt.Sprintf("SQL execution failed: %v", err)
		return result
	}

	rows := res.Rows
	if len(rows) > p.maxResults {
		rows = rows[:p.maxResults]
		result.Truncated = true
		result.TotalRows = fmt.Sprintf("%d+ (truncated)", p.maxResults)
	} else {
		result.TotalRows = strconv.Itoa(len(rows))
	}
	result.Results = rows
	return result
}

// findRelevantDocs retrieves snapshot documents by keyword: the question is
// tokenized into lowercase words longer than two characters, each word is
// searched across every document, and the per-word matches are unioned by
// path. Broad recall is deliberate; the reasoning step discards noise.
func (p *Pipeline) findRelevantDocs(question string) ([]snapshot.Match, error) {
	seen := make(map[string]bool)
	var docs []snapshot.Match
	for _, word := range strings.Fields(strings.ToLower(question)) {
		if len(word) <= 2 {
			continue
		}
		matches, err := p.store.Search(word, "")
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if !seen[match.Path] {
				seen[match.Path] = true
				docs = append(docs, match)
			}
		}
	}
	return docs, nil
}

func (p *Pipeline) buildSystemPrompt(docs []snapshot.Match) string {
	var b strings.Builder
	b.WriteString("You are a data analyst agent. Answer questions by writing SQL.\n\n")

	b.WriteString("## Available Data Sources\n")
	for _, src := range p.sources.Databases {
		fmt.Fprintf(&b, "- **%s** (%s)\n", src.Name, src.Type)
	}

	b.WriteString("\n## Business Rules\n")
	b.WriteString(p.rules)

	b.WriteString("\n\n## Schema Context\nThe following schema information is available:\n\n")
	for _, doc := range docs {
		content, err := p.store.Read(doc.Path)
		if err != nil {
			// Skip unreadable documents
			continue
		}
		fmt.Fprintf(&b, "### %s\n%s\n\n", doc.Path, content)
	}

	b.WriteString(`
## Instructions
1. Identify which data source to query
2. Write a single SQL query that answers the question
3. Return your answer in this exact JSON format:
{"source": "<source_name>", "sql": "<your SQL query>", "explanation": "<brief explanation of what the query does>"}

Only return the JSON. No markdown fences, no extra text.`)
	return b.String()
}
