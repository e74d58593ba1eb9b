package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/loadplan/internal/ir"
)

// Snapshot captures the plans and statements of a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type Snapshot struct {
	ScenarioName string                 `json:"scenario_name"`
	Plans        map[string]ir.IRObject `json:"plans"`
	Statements   []RecordedStatement    `json:"statements"`
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON serialization.
func (s *Snapshot) toCanonicalMap() map[string]any {
	statements := make([]any, len(s.Statements))
	for i, stmt := range s.Statements {
		statements[i] = map[string]any{
			"serializer": stmt.Serializer,
			"sql":        stmt.SQL,
		}
	}
	plans := make(map[string]any, len(s.Plans))
	for name, p := range s.Plans {
		plans[name] = p
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"plans":         plans,
		"statements":    statements,
	}
}

// MarshalSnapshot renders the canonical golden form of a result.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := Snapshot{
		ScenarioName: scenarioName,
		Plans:        result.Plans,
		Statements:   result.Statements,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its plans and statements
// against a golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the
// golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
