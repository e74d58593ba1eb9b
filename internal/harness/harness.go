package harness

import (
	"context"
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/roach88/loadplan/internal/compiler"
	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/loader"
	"github.com/roach88/loadplan/internal/plan"
	"github.com/roach88/loadplan/internal/render"
	"github.com/roach88/loadplan/internal/schema"
	"github.com/roach88/loadplan/internal/serializer"
	"github.com/roach88/loadplan/internal/store"
	"github.com/roach88/loadplan/internal/testutil"
	"github.com/roach88/loadplan/internal/verify"
)

// Harness is the scenario execution environment: one seeded database and
// the planning, loading and rendering stack over it.
type Harness struct {
	store    *store.Store
	registry *serializer.Registry
	builder  *plan.Builder
	bridge   *loader.Bridge
	renderer *render.Renderer
	tester   *verify.Tester
	logger   *zap.Logger

	allowQueriesPerRecord int

	collections map[string]*collectionRun
}

// collectionRun is the cached outcome of rendering one serializer's
// collection. Assertions on the same serializer share it.
type collectionRun struct {
	output     ir.IRArray
	statements []string
	err        error
}

type runOptions struct {
	logger       *zap.Logger
	maxDepth     int
	allowQueries int
}

// Option configures Run.
type Option func(*runOptions)

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(o *runOptions) { o.logger = l }
}

// WithMaxDepth sets the plan depth limit. Defaults to plan.DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(o *runOptions) { o.maxDepth = n }
}

// WithAllowQueriesPerRecord sets the per-record query budget of verify
// assertions that do not set their own. Defaults to 0.
func WithAllowQueriesPerRecord(n int) Option {
	return func(o *runOptions) { o.allowQueries = n }
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Compile the CUE declarations in scenario.Specs
// 2. Create the tables and insert the fixture rows
// 3. Evaluate assertions in order
// 4. Return result with pass/fail, plans, statements and errors
//
// An error is returned only when the environment cannot be set up;
// assertion failures are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := runOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	bundle, errs := compiler.LoadDir(scenario.Specs, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return nil, errors.Wrapf(errs[0], "load specs (%d errors)", len(errs))
	}
	registry, err := bundle.Registry(serializer.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, store.Options{Logger: o.logger})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create in-memory store")
	}
	defer st.Close()

	if err := st.ApplySchema(ctx, registry.Catalog()); err != nil {
		return nil, err
	}
	if err := seedFixtures(ctx, st, registry.Catalog(), scenario.Fixtures); err != nil {
		return nil, errors.Wrap(err, "failed to seed fixtures")
	}

	h := newHarness(st, registry, o, scenario.RequestPrefix)

	result := NewResult()
	for i, a := range scenario.Assertions {
		if err := h.evaluate(ctx, result, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d] %s %s: %v", i, a.Type, a.Serializer, err))
		}
	}

	o.logger.Info("scenario finished",
		zap.String("scenario", scenario.Name),
		zap.Bool("pass", result.Pass),
		zap.Int("statements", len(result.Statements)))
	return result, nil
}

func newHarness(st *store.Store, registry *serializer.Registry, o runOptions, requestPrefix string) *Harness {
	var planOpts []plan.Option
	planOpts = append(planOpts, plan.WithLogger(o.logger))
	if o.maxDepth > 0 {
		planOpts = append(planOpts, plan.WithMaxDepth(o.maxDepth))
	}
	builder := plan.NewBuilder(registry, planOpts...)
	bridge := loader.NewBridge(st, registry.Catalog(), loader.WithLogger(o.logger))
	renderer := render.NewRenderer(registry, builder, bridge,
		render.WithLogger(o.logger),
		render.WithIDGenerator(testutil.NewSequenceIDGenerator(requestPrefix)))

	return &Harness{
		store:       st,
		registry:    registry,
		builder:     builder,
		bridge:      bridge,
		renderer:    renderer,
		tester:      verify.NewTester(st, registry, renderer, verify.WithLogger(o.logger)),
		logger:      o.logger,
		collections: map[string]*collectionRun{},

		allowQueriesPerRecord: o.allowQueries,
	}
}

// seedFixtures inserts fixture rows table by table in entity declaration
// order.
func seedFixtures(ctx context.Context, st *store.Store, catalog *schema.Catalog, fixtures map[string][]map[string]any) error {
	tables := lo.Map(catalog.Entities(), func(e ir.EntitySpec, _ int) string { return e.Table })
	for table := range fixtures {
		if !slices.Contains(tables, table) {
			return errors.Newf("fixture table %q is not declared by any entity", table)
		}
	}

	for _, e := range catalog.Entities() {
		rows := fixtures[e.Table]
		converted := make([]ir.IRObject, len(rows))
		for i, row := range rows {
			obj, err := convertArgsToIRObject(row)
			if err != nil {
				return errors.Wrapf(err, "%s[%d]", e.Table, i)
			}
			for name := range obj {
				col, ok := schema.Column(e, name)
				if !ok {
					return errors.Newf("%s[%d]: %s has no column %q", e.Table, i, e.Name, name)
				}
				obj[name] = schema.Coerce(col, obj[name])
			}
			converted[i] = obj
		}
		if err := st.InsertAll(ctx, e.Table, converted); err != nil {
			return err
		}
	}
	return nil
}

// entityFor returns the assertion's entity, defaulting to the
// serializer's.
func (h *Harness) entityFor(a Assertion) (string, error) {
	if a.Entity != "" {
		return a.Entity, nil
	}
	desc, err := h.registry.Describe(a.Serializer)
	if err != nil {
		return "", err
	}
	return desc.Entity.Name, nil
}

// collection renders every record of the serializer's entity once per
// scenario and records the statements it issued.
func (h *Harness) collection(ctx context.Context, result *Result, a Assertion) *collectionRun {
	entity, err := h.entityFor(a)
	if err != nil {
		return &collectionRun{err: err}
	}
	key := a.Serializer + "@" + entity
	if run, ok := h.collections[key]; ok {
		return run
	}

	rec := h.store.Record()
	out, err := h.renderer.Collection(ctx, loader.All(entity), render.Options{EachSerializer: a.Serializer})
	rec.Stop()

	run := &collectionRun{output: out, statements: rec.SQL(), err: err}
	h.collections[key] = run
	result.AddStatements(a.Serializer, run.statements)
	return run
}

// convertArgsToIRObject converts a map[string]any to ir.IRObject.
// This handles YAML-parsed values and converts them to proper IRValue types.
func convertArgsToIRObject(args map[string]any) (ir.IRObject, error) {
	if args == nil {
		return ir.IRObject{}, nil
	}

	result := make(ir.IRObject)
	for key, val := range args {
		irVal, err := convertToIRValue(val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		result[key] = irVal
	}
	return result, nil
}

// convertToIRValue converts a YAML-parsed value to an IRValue.
// YAML null becomes IRNull; floats are rejected.
func convertToIRValue(val any) (ir.IRValue, error) {
	if val == nil {
		return ir.IRNull{}, nil
	}

	switch v := val.(type) {
	case string:
		return ir.IRString(v), nil
	case int:
		return ir.IRInt(int64(v)), nil
	case int64:
		return ir.IRInt(v), nil
	case uint64:
		return ir.IRInt(int64(v)), nil
	case float64:
		if v == float64(int64(v)) {
			return ir.IRInt(int64(v)), nil
		}
		return nil, fmt.Errorf("floats are forbidden in IR: %v", v)
	case bool:
		return ir.IRBool(v), nil
	case []any:
		arr := make(ir.IRArray, len(v))
		for i, elem := range v {
			irElem, err := convertToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj, err := convertArgsToIRObject(v)
		if err != nil {
			return nil, err
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", val)
	}
}
