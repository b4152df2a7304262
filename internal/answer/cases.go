// File path: internal/answer/cases.go
package answer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Case is one YAML eval case: a prompt plus the expected generated SQL and,
// optionally, the expected source.
type Case struct {
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
	Source string `yaml:"source"`
	SQL    string `yaml:"sql"`
}

// CaseResult records one eval case outcome.
type CaseResult struct {
	Name        string
	Passed      bool
	Error       string
	ExpectedSQL string
	ActualSQL   string
}

// LoadCases reads every .yml/.yaml case file in a directory, using the file
// name when a case omits its own.
func LoadCases(dir string) ([]Case, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read cases directory: %w", err)
	}
	var cases []Case
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yml") && !strings.HasSuffix(name, ".yaml")) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read case %s: %w", name, err)
		}
		var c Case
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("parse case %s: %w", name, err)
		}
		if c.Name == "" {
			c.Name = name
		}
		cases = append(cases, c)
	}
	return cases, nil
}

var sqlWhitespace = regexp.MustCompile(`\s+`)

// NormalizeSQL canonicalizes SQL for comparison: trimmed, whitespace
// collapsed, lowercased, trailing semicolon stripped.
func NormalizeSQL(sql string) string {
	normalized := strings.ToLower(sqlWhitespace.ReplaceAllString(strings.TrimSpace(sql), " "))
	return strings.TrimSuffix(normalized, ";")
}

// RunCases answers each case's prompt and compares normalized SQL plus
// source (when the case names one).
func (p *Pipeline) RunCases(ctx context.Context, cases []Case) []CaseResult {
	results := make([]CaseResult, 0, len(cases))
	for _, c := range cases {
		answer := p.Answer(ctx, c.Prompt)
		result := CaseResult{Name: c.Name, ExpectedSQL: c.SQL, ActualSQL: answer.SQL}
		if answer.Error != "" {
			result.Error = answer.Error
		} else {
			sqlMatch := NormalizeSQL(c.SQL) == NormalizeSQL(answer.SQL)
			sourceMatch := c.Source == "" || c.Source == answer.Source
			result.Passed = sqlMatch && sourceMatch
		}
		results = append(results, result)
	}
	return results
}
