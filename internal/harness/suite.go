package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int                `json:"total_scenarios"`
	Passed         int                `json:"passed"`
	Failed         int                `json:"failed"`
	Skipped        int                `json:"skipped"` // filtered out by name
	Failures       []ScenarioFailure  `json:"failures,omitempty"`
	Results        map[string]*Result `json:"-"`
}

// ScenarioFailure represents a failed scenario.
type ScenarioFailure struct {
	Scenario     string `json:"scenario"`
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// FindScenarios returns the .yaml and .yml files under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// RunSuite loads and runs every scenario under dir. Scenarios whose name
// does not contain filter are skipped; an empty filter runs all.
//
// For each scenario file:
// 1. Load the scenario with paths relative to its file
// 2. Run it via Run
// 3. Collect and report results
func RunSuite(ctx context.Context, dir, filter string, opts ...Option) (*SuiteResult, error) {
	paths, err := FindScenarios(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan scenarios: %w", err)
	}

	result := &SuiteResult{Results: map[string]*Result{}}
	for _, path := range paths {
		scenario, err := LoadScenario(path)
		if err != nil {
			result.TotalScenarios++
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Scenario:     filepath.Base(path),
				ScenarioPath: path,
				Error:        fmt.Sprintf("failed to load scenario: %v", err),
			})
			continue
		}

		if filter != "" && !strings.Contains(scenario.Name, filter) {
			result.Skipped++
			continue
		}
		result.TotalScenarios++

		runResult, err := Run(ctx, scenario, opts...)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Scenario:     scenario.Name,
				ScenarioPath: path,
				Error:        fmt.Sprintf("scenario execution failed: %v", err),
			})
			continue
		}
		result.Results[scenario.Name] = runResult

		if !runResult.Pass {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Scenario:     scenario.Name,
				ScenarioPath: path,
				Error:        fmt.Sprintf("scenario assertions failed: %v", runResult.Errors),
			})
			continue
		}

		result.Passed++
	}

	return result, nil
}
