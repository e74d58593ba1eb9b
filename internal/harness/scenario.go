package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a query-count test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs is the directory of CUE declarations to compile.
	// Relative paths are resolved against the scenario file location.
	Specs string `yaml:"specs"`

	// Fixtures are rows to insert, keyed by table name. Tables are
	// filled in entity declaration order.
	Fixtures map[string][]map[string]any `yaml:"fixtures,omitempty"`

	// Assertions are evaluated in order against one database.
	Assertions []Assertion `yaml:"assertions"`

	// RequestPrefix seeds the request id sequence.
	// Defaults to "test-request".
	RequestPrefix string `yaml:"request_prefix,omitempty"`
}

// Assertion checks one serializer.
type Assertion struct {
	// Type specifies the assertion type:
	// - "plan": compare select lists per include path
	// - "query_count": count collection statements
	// - "verify": run the serializer query test
	// - "render": compare rendered output
	// - "statement_contains": search collection statements
	Type string `yaml:"type"`

	// Serializer is the serializer under test (all types).
	Serializer string `yaml:"serializer"`

	// Entity overrides the serializer's entity (query_count, verify,
	// render, statement_contains).
	Entity string `yaml:"entity,omitempty"`

	// Select maps include paths to expected select lists (plan).
	Select map[string][]string `yaml:"select,omitempty"`

	// Count is the expected number of statements (query_count).
	Count int `yaml:"count,omitempty"`

	// Contains lists expected statement fragments (statement_contains).
	Contains []string `yaml:"contains,omitempty"`

	// Expect is the expected rendered collection (render).
	Expect any `yaml:"expect,omitempty"`

	// IgnoreColumns, SkipColumnsCheck and AllowQueriesPerRecord tune the
	// check (verify). An unset AllowQueriesPerRecord falls back to the
	// run's default.
	IgnoreColumns         []string `yaml:"ignore_columns,omitempty"`
	SkipColumnsCheck      bool     `yaml:"skip_columns_check,omitempty"`
	AllowQueriesPerRecord *int     `yaml:"allow_queries_per_record,omitempty"`

	// ExpectError is the failure kind the check must report (verify), or
	// an error code such as RECURSION the plan must fail with (plan).
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion type constants.
const (
	AssertPlan              = "plan"
	AssertQueryCount        = "query_count"
	AssertVerify            = "verify"
	AssertRender            = "render"
	AssertStatementContains = "statement_contains"
)

// LoadScenario reads and parses a scenario YAML file, resolving the specs
// directory relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the specs directory relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Specs != "" && !filepath.IsAbs(scenario.Specs) && basePath != "" {
		scenario.Specs = filepath.Join(basePath, scenario.Specs)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Specs == "" {
		return fmt.Errorf("specs directory is required")
	}
	if info, err := os.Stat(s.Specs); err != nil || !info.IsDir() {
		return fmt.Errorf("specs directory not found: %s", s.Specs)
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for table, rows := range s.Fixtures {
		for i, row := range rows {
			if len(row) == 0 {
				return fmt.Errorf("fixtures.%s[%d]: row must have at least one column", table, i)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Serializer == "" {
		return fmt.Errorf("assertions[%d]: serializer is required", index)
	}

	switch a.Type {
	case AssertPlan:
		if len(a.Select) == 0 && a.ExpectError == "" {
			return fmt.Errorf("assertions[%d]: select or expect_error is required for plan", index)
		}
	case AssertQueryCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for query_count", index)
		}
	case AssertVerify:
		if a.AllowQueriesPerRecord != nil && *a.AllowQueriesPerRecord < 0 {
			return fmt.Errorf("assertions[%d]: allow_queries_per_record must be non-negative", index)
		}
	case AssertRender:
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for render", index)
		}
	case AssertStatementContains:
		if len(a.Contains) == 0 {
			return fmt.Errorf("assertions[%d]: contains list is required for statement_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
