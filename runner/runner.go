// Package runner pairs loaded scenarios with captured execution traces
// and evaluates them. Evaluation is read-only and stateless across
// calls, so scenarios are scored concurrently with no shared mutable
// state beyond the pre-sized result slice.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mykhaliev/timeline-evals/eval"
	"github.com/mykhaliev/timeline-evals/logger"
	"github.com/mykhaliev/timeline-evals/model"
	"github.com/mykhaliev/timeline-evals/registry"
)

const DefaultMaxConcurrency = 8

type Runner struct {
	registry *registry.Registry
	traceDir string
	settings model.Settings
	criteria model.Criteria
	resolver *eval.Resolver
}

func New(reg *registry.Registry, traceDir string, settings model.Settings, criteria model.Criteria) *Runner {
	return &Runner{
		registry: reg,
		traceDir: traceDir,
		settings: settings,
		criteria: criteria,
		resolver: eval.NewResolver(),
	}
}

// Run evaluates every registered scenario against its captured trace.
// Traces are expected at <trace_dir>/<scenario-id>.json; a missing or
// unreadable trace is scored as a timeout-kind failure, it never aborts
// the suite.
func (r *Runner) Run(ctx context.Context, suiteName string) *model.SuiteResult {
	scenarios := r.registry.All()

	result := &model.SuiteResult{
		RunID:     uuid.New().String(),
		SuiteName: suiteName,
		StartTime: time.Now(),
		Results:   make([]model.ScenarioResult, len(scenarios)),
		Total:     len(scenarios),
		Criteria:  r.criteria,
	}

	concurrency := r.settings.MaxConcurrency
	if concurrency <= 0 {
		concurrency = DefaultMaxConcurrency
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i := range scenarios {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(idx int, scenario model.Scenario) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result.Results[idx] = r.evaluateOne(&scenario)
		}(i, scenarios[i])
	}
	wg.Wait()

	result.EndTime = time.Now()
	for _, sr := range result.Results {
		if sr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	if result.Total > 0 {
		result.SuccessRate = float64(result.Passed) / float64(result.Total) * 100
	}
	result.CriteriaMet = r.criteriaMet(result)

	logger.Logger.Info("Suite evaluation finished",
		"run_id", result.RunID,
		"total", result.Total,
		"passed", result.Passed,
		"failed", result.Failed,
		"success_rate", fmt.Sprintf("%.1f%%", result.SuccessRate),
		"criteria_met", result.CriteriaMet)
	return result
}

func (r *Runner) evaluateOne(scenario *model.Scenario) model.ScenarioResult {
	start := time.Now()

	trace, err := r.loadTrace(scenario.ID)
	if err != nil {
		logger.Logger.Warn("Trace unavailable for scenario",
			"scenario", scenario.ID, "error", err)
		trace = nil
	}

	sr := r.resolver.Evaluate(scenario, trace)
	sr.DurationMs = time.Since(start).Milliseconds()

	if sr.Passed {
		logger.Logger.Debug("Scenario passed",
			"scenario", scenario.ID,
			"alternative", sr.PassedAlternative)
	} else {
		logger.Logger.Debug("Scenario failed",
			"scenario", scenario.ID,
			"alternatives_tried", len(sr.Alternatives))
	}
	return sr
}

func (r *Runner) loadTrace(scenarioID string) (*model.Trace, error) {
	path := filepath.Join(r.traceDir, scenarioID+".json")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("trace file %s: %w", path, err)
	}
	return model.ParseTrace(path)
}

// criteriaMet applies the suite success-rate criteria. An empty criteria
// requires every scenario to pass.
func (r *Runner) criteriaMet(result *model.SuiteResult) bool {
	if r.criteria.SuccessRate == "" {
		return result.Failed == 0
	}
	threshold, err := strconv.ParseFloat(r.criteria.SuccessRate, 64)
	if err != nil {
		logger.Logger.Error("Failed to parse criteria success rate",
			"value", r.criteria.SuccessRate, "error", err)
		return result.Failed == 0
	}
	return result.SuccessRate >= threshold
}
