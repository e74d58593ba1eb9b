package cli

import (
	"github.com/cockroachdb/errors"

	"github.com/roach88/loadplan/internal/compiler"
	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/plan"
	"github.com/roach88/loadplan/internal/serializer"
)

// CLI error codes beyond the compiler's load codes.
const (
	ErrCodeWriteFailed = "E007" // Output file could not be written
	ErrCodeRegistry    = "E008" // Declarations compiled but could not be registered
	ErrCodeStore       = "E009" // Store could not be opened
	ErrCodeTestRun     = "E_TEST_FAILED"
)

// workspace is a compiled declarations directory ready for planning.
type workspace struct {
	bundle   *compiler.Bundle
	registry *serializer.Registry
	builder  *plan.Builder
}

// loadWorkspace compiles specsDir and declares every serializer. Errors are
// written through formatter and returned as exit code 2.
func loadWorkspace(opts *RootOptions, formatter *OutputFormatter, specsDir string) (*workspace, error) {
	bundle, loadErrors := compiler.LoadDir(specsDir, compiler.LoadModeCollectAll)
	if len(loadErrors) > 0 {
		if bundle == nil || len(loadErrors) == 1 {
			code, message := parseCompileError(loadErrors[0])
			return nil, outputCompileError(formatter, code, message, nil)
		}
		return nil, outputCompileErrors(formatter, loadErrors)
	}
	formatter.VerboseLog("Loaded %d entity(ies) and %d serializer(s) from %s",
		len(bundle.Entities), len(bundle.Serializers), specsDir)

	logger := opts.log()
	registry, err := bundle.Registry(serializer.WithLogger(logger))
	if err != nil {
		return nil, outputError(formatter, ErrCodeRegistry, err)
	}
	builder := plan.NewBuilder(registry,
		plan.WithLogger(logger),
		plan.WithMaxDepth(opts.settings().Plan.MaxDepth))

	return &workspace{bundle: bundle, registry: registry, builder: builder}, nil
}

// outputError writes err with its code and hint and returns exit code 2.
// Configuration errors report their own code.
func outputError(formatter *OutputFormatter, code string, err error) error {
	if ce, ok := ir.AsConfigError(err); ok {
		code = string(ce.Code)
	}
	hint := ""
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		hint = hints[0]
	}
	_ = formatter.ErrorWithHint(code, err.Error(), hint, nil)
	return WrapExitError(ExitCommandError, code, err)
}
