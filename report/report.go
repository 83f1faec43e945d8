// Package report renders suite results: a console summary, a JSON export
// and an optional markdown report.
package report

import (
	"fmt"
	"os"
	"sort"

	"github.com/aymerick/raymond"
	"github.com/bytedance/sonic"

	"github.com/mykhaliev/timeline-evals/model"
	"github.com/mykhaliev/timeline-evals/version"
)

// AgentStats holds aggregated statistics for one agent under test.
type AgentStats struct {
	AgentName     string  `json:"agentName"`
	Total         int     `json:"total"`
	Passed        int     `json:"passed"`
	Failed        int     `json:"failed"`
	SuccessRate   float64 `json:"successRate"`
	AvgDurationMs int64   `json:"avgDurationMs"`
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// CollectAgentStats aggregates per-agent pass rates out of a suite result.
func (g *Generator) CollectAgentStats(suite *model.SuiteResult) []AgentStats {
	byAgent := map[string]*AgentStats{}
	for _, sr := range suite.Results {
		stats, ok := byAgent[sr.Agent]
		if !ok {
			stats = &AgentStats{AgentName: sr.Agent}
			byAgent[sr.Agent] = stats
		}
		stats.Total++
		if sr.Passed {
			stats.Passed++
		} else {
			stats.Failed++
		}
		stats.AvgDurationMs += sr.DurationMs
	}

	out := make([]AgentStats, 0, len(byAgent))
	for _, stats := range byAgent {
		if stats.Total > 0 {
			stats.SuccessRate = float64(stats.Passed) / float64(stats.Total) * 100
			stats.AvgDurationMs /= int64(stats.Total)
		}
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentName < out[j].AgentName })
	return out
}

// PrintSummary writes the human-readable run summary to stdout.
func (g *Generator) PrintSummary(suite *model.SuiteResult) {
	fmt.Println("\n═══════════════════════════════════════════════════════════════")
	fmt.Println("                  SCENARIO EVALUATION SUMMARY")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("Run: %s", suite.RunID)
	if suite.SuiteName != "" {
		fmt.Printf("  Suite: %s", suite.SuiteName)
	}
	fmt.Println()

	for _, sr := range suite.Results {
		status := "\033[32m✓ PASS\033[0m"
		detail := fmt.Sprintf("alternative %d", sr.PassedAlternative)
		if !sr.Passed {
			status = "\033[31m✗ FAIL\033[0m"
			detail = fmt.Sprintf("%d alternative(s) unmet", len(sr.Alternatives))
		}
		fmt.Printf("  %s  %-40s %s\n", status, sr.ScenarioID, detail)

		if !sr.Passed {
			for _, alt := range sr.Alternatives {
				for _, failure := range alt.Failures {
					fmt.Printf("        [alt %d][%s] %s\n", alt.Index, failure.SubSpec, failure.Reason)
				}
			}
		}
	}

	rateColor := "\033[32m"
	if suite.SuccessRate < 100 && suite.SuccessRate >= 50 {
		rateColor = "\033[33m"
	} else if suite.SuccessRate < 50 {
		rateColor = "\033[31m"
	}
	fmt.Println("───────────────────────────────────────────────────────────────")
	fmt.Printf("Total: %d  Passed: %d  Failed: %d  %sSuccess rate: %.1f%%\033[0m\n",
		suite.Total, suite.Passed, suite.Failed, rateColor, suite.SuccessRate)
	if suite.Criteria.SuccessRate != "" {
		verdict := "\033[31mNOT MET\033[0m"
		if suite.CriteriaMet {
			verdict = "\033[32mMET\033[0m"
		}
		fmt.Printf("Criteria: success_rate >= %s%%  %s\n", suite.Criteria.SuccessRate, verdict)
	}
	fmt.Println("═══════════════════════════════════════════════════════════════")
}

// WriteJSON exports the full suite result as JSON.
func (g *Generator) WriteJSON(suite *model.SuiteResult, path string) error {
	data, err := sonic.MarshalIndent(suite, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal suite result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}
	return nil
}

const markdownTemplate = `# Scenario Evaluation Report

- Run: {{runId}}
{{#if suiteName}}- Suite: {{suiteName}}
{{/if}}- Generator: timeline-evals {{generatorVersion}}
- Scenarios: {{total}} total, {{passed}} passed, {{failed}} failed
- Success rate: {{successRate}}%

## Agents

| Agent | Scenarios | Passed | Failed | Success rate |
|-------|-----------|--------|--------|--------------|
{{#each agents}}| {{AgentName}} | {{Total}} | {{Passed}} | {{Failed}} | {{rate SuccessRate}}% |
{{/each}}

## Scenarios

{{#each results}}### {{ScenarioID}}: {{#if Passed}}PASS (alternative {{PassedAlternative}}){{else}}FAIL{{/if}}

{{#unless Passed}}{{#each Alternatives}}{{#each Failures}}- alt {{../Index}} [{{SubSpec}}] {{Reason}}
{{/each}}{{/each}}{{/unless}}
{{/each}}`

// WriteMarkdown renders the markdown report.
func (g *Generator) WriteMarkdown(suite *model.SuiteResult, path string) error {
	tpl, err := raymond.Parse(markdownTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse report template: %w", err)
	}
	tpl.RegisterHelper("rate", func(rate float64) string {
		return fmt.Sprintf("%.1f", rate)
	})

	out, err := tpl.Exec(map[string]any{
		"runId":            suite.RunID,
		"suiteName":        suite.SuiteName,
		"generatorVersion": version.Version,
		"total":            suite.Total,
		"passed":           suite.Passed,
		"failed":           suite.Failed,
		"successRate":      fmt.Sprintf("%.1f", suite.SuccessRate),
		"agents":           g.CollectAgentStats(suite),
		"results":          suite.Results,
	})
	if err != nil {
		return fmt.Errorf("failed to render report template: %w", err)
	}

	if err := os.WriteFile(path, []byte(out), 0644); err != nil {
		return fmt.Errorf("failed to write markdown report: %w", err)
	}
	return nil
}
