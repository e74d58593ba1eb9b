package verify

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/roach88/loadplan/internal/loader"
	"github.com/roach88/loadplan/internal/render"
	"github.com/roach88/loadplan/internal/serializer"
	"github.com/roach88/loadplan/internal/store"
)

// Options tune one TestSerializerQueries call.
type Options struct {
	// IgnoreColumns are never reported as unused.
	IgnoreColumns []string
	// SkipColumnsCheck disables the unused column check.
	SkipColumnsCheck bool
	// AllowQueriesPerRecord is the query budget for rendering one record.
	AllowQueriesPerRecord int
}

// Tester runs query-count checks and remembers which serializers passed.
//
// Thread-safety: All methods are safe for concurrent use, but concurrent
// checks against the same store count each other's statements.
type Tester struct {
	store    *store.Store
	registry *serializer.Registry
	renderer *render.Renderer
	logger   *zap.Logger

	mu     sync.Mutex
	tested map[string]bool
}

// Option configures a Tester.
type Option func(*Tester)

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(t *Tester) { t.logger = l }
}

// NewTester returns a Tester counting statements on s.
func NewTester(s *store.Store, registry *serializer.Registry, renderer *render.Renderer, opts ...Option) *Tester {
	t := &Tester{
		store:    s,
		registry: registry,
		renderer: renderer,
		logger:   zap.L(),
		tested:   map[string]bool{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Report summarizes a passing check.
type Report struct {
	Serializer string
	Entity     string
	Records    int
	// PlanQueries is the number of statements that loaded the records.
	PlanQueries int
	Fetched     []string
	Accessed    []string
}

// TestSerializerQueries verifies that serializerName renders every entity
// record within opts.AllowQueriesPerRecord queries and reads every raw
// column it fetched.
func (t *Tester) TestSerializerQueries(ctx context.Context, serializerName, entity string, opts Options) (*Report, error) {
	desc, err := t.registry.Describe(serializerName)
	if err != nil {
		return nil, err
	}
	if desc.Entity.Name != entity {
		return nil, errors.Newf("serializer %s renders %s, not %s", serializerName, desc.Entity.Name, entity)
	}
	renderOpts := render.Options{EachSerializer: serializerName}

	rec := t.store.Record()
	records, err := t.renderer.Materialize(ctx, loader.All(entity), renderOpts)
	rec.Stop()
	if err != nil {
		return nil, errors.Wrapf(err, "load %s for %s", entity, serializerName)
	}
	report := &Report{Serializer: serializerName, Entity: entity, Records: len(records), PlanQueries: rec.Count()}

	if len(records) == 0 {
		return nil, withHints(&VerificationError{
			Kind:       FailureNoRecords,
			Serializer: serializerName,
			Entity:     entity,
			Message:    fmt.Sprintf("not enough records to test %s", serializerName),
			Hints:      []string{fmt.Sprintf("create at least 1 %s", entity)},
		})
	}

	for _, r := range records {
		r.ResetAccessed()
	}

	for _, r := range records {
		rec := t.store.Record()
		_, err := t.renderer.One(ctx, r, serializerName)
		rec.Stop()
		if err != nil {
			return nil, errors.Wrapf(err, "render %s", serializerName)
		}
		if rec.Count() != opts.AllowQueriesPerRecord {
			return nil, &VerificationError{
				Kind:       FailureQueryCount,
				Serializer: serializerName,
				Entity:     entity,
				Message: fmt.Sprintf("unexpected queries rendering %s record %v: %d, allowed %d",
					entity, r.Key(), rec.Count(), opts.AllowQueriesPerRecord),
				Queries: rec.SQL(),
			}
		}
	}

	// Rendering may have cached lazily loaded associations on records, so
	// the collection pass starts from a fresh load.
	fresh, err := t.renderer.Materialize(ctx, loader.All(entity), renderOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "reload %s for %s", entity, serializerName)
	}
	rec = t.store.Record()
	_, err = t.renderer.Collection(ctx, fresh, renderOpts)
	rec.Stop()
	if err != nil {
		return nil, errors.Wrapf(err, "render %s collection", serializerName)
	}
	if want := len(fresh) * opts.AllowQueriesPerRecord; rec.Count() != want {
		return nil, &VerificationError{
			Kind:       FailureCollectionQueries,
			Serializer: serializerName,
			Entity:     entity,
			Message: fmt.Sprintf("unexpected queries rendering %s collection: %d, allowed %d",
				entity, rec.Count(), want),
			Queries: rec.SQL(),
		}
	}

	// Columns are checked against what the plan fetched, not the whole table:
	// a skipped column cannot be an unnecessary select.
	fetched := records[0].Fetched()
	accessed := lo.Union(lo.FlatMap(records, func(r *loader.Record, _ int) []string {
		return r.Accessed()
	}))
	slices.Sort(accessed)
	report.Fetched, report.Accessed = fetched, accessed

	if !opts.SkipColumnsCheck {
		unused := lo.Without(fetched, slices.Concat(accessed, opts.IgnoreColumns)...)
		if len(unused) > 0 {
			return nil, unusedColumnsError(serializerName, entity, unused, opts.IgnoreColumns)
		}
	}

	t.mu.Lock()
	t.tested[serializerName] = true
	t.mu.Unlock()

	t.logger.Debug("serializer queries verified",
		zap.String("serializer", serializerName),
		zap.String("entity", entity),
		zap.Int("records", len(records)),
		zap.Int("plan_queries", report.PlanQueries))
	return report, nil
}

// Tested returns the serializers that passed, sorted.
func (t *Tester) Tested() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := lo.Keys(t.tested)
	slices.Sort(out)
	return out
}

// AssertAllSerializersTested fails when a serializer in namespace never
// passed TestSerializerQueries. An empty namespace selects serializers
// without a namespace; "*" selects all.
func (t *Tester) AssertAllSerializersTested(namespace string) error {
	t.mu.Lock()
	untested := lo.Reject(t.registry.Names(namespace), func(name string, _ int) bool {
		return t.tested[name]
	})
	t.mu.Unlock()

	if len(untested) == 0 {
		return nil
	}
	return &VerificationError{
		Kind:    FailureUntested,
		Message: fmt.Sprintf("serializers not tested: %s", strings.Join(untested, ", ")),
		Columns: untested,
	}
}
