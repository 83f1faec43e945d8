// Package registry loads scenario definitions from disk into an
// immutable collection. Registries are built explicitly once at process
// start; there is no import-time aggregation of scenarios.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mykhaliev/timeline-evals/logger"
	"github.com/mykhaliev/timeline-evals/model"
	"github.com/mykhaliev/timeline-evals/templates"
)

// Registry is an immutable, validated collection of scenarios grouped by
// id and agent. All accessors return copies; the backing slices are
// never exposed for mutation.
type Registry struct {
	scenarios []model.Scenario
	byID      map[string]int
	byAgent   map[string][]int
}

// Load reads every *.yaml / *.yml file under the given directories,
// expands suite variables, validates each scenario and fails fast on the
// first malformed definition.
func Load(variables map[string]string, dirs ...string) (*Registry, error) {
	engine := templates.NewTemplateEngine()
	render := func(text string) (string, error) {
		return engine.Render(text, variables)
	}

	reg := &Registry{
		byID:    map[string]int{},
		byAgent: map[string][]int{},
	}

	for _, dir := range dirs {
		files, err := listScenarioFiles(dir)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			scenarios, err := model.ParseScenarioFile(file)
			if err != nil {
				return nil, fmt.Errorf("scenario file %s: %w", file, err)
			}

			for _, scenario := range scenarios {
				scenario.ExpandVariables(render)
				if err := scenario.Validate(); err != nil {
					return nil, fmt.Errorf("scenario file %s: %w", file, err)
				}
				if _, exists := reg.byID[scenario.ID]; exists {
					return nil, fmt.Errorf("%w: duplicate scenario id %q in %s", model.ErrMalformedSpec, scenario.ID, file)
				}

				idx := len(reg.scenarios)
				reg.scenarios = append(reg.scenarios, scenario)
				reg.byID[scenario.ID] = idx
				reg.byAgent[scenario.Agent] = append(reg.byAgent[scenario.Agent], idx)
			}

			logger.Logger.Debug("Loaded scenario file", "file", file, "scenarios", len(scenarios))
		}
	}

	logger.Logger.Info("Scenario registry built",
		"scenarios", len(reg.scenarios),
		"agents", len(reg.byAgent))
	return reg, nil
}

func listScenarioFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scenario dir not found: %w", err)
	}
	if !info.IsDir() {
		return []string{dir}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenario dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// All returns every scenario in load order.
func (r *Registry) All() []model.Scenario {
	out := make([]model.Scenario, len(r.scenarios))
	copy(out, r.scenarios)
	return out
}

// Get returns the scenario with the given id.
func (r *Registry) Get(id string) (model.Scenario, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return model.Scenario{}, false
	}
	return r.scenarios[idx], true
}

// ByAgent returns the scenarios declared for one agent, in load order.
func (r *Registry) ByAgent(agent string) []model.Scenario {
	indices := r.byAgent[agent]
	out := make([]model.Scenario, 0, len(indices))
	for _, idx := range indices {
		out = append(out, r.scenarios[idx])
	}
	return out
}

// Agents returns the distinct agent identifiers, sorted.
func (r *Registry) Agents() []string {
	agents := make([]string, 0, len(r.byAgent))
	for agent := range r.byAgent {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	return agents
}

// Len reports the number of loaded scenarios.
func (r *Registry) Len() int {
	return len(r.scenarios)
}
