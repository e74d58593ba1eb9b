package cli

import (
	"fmt"

	"cuelang.org/go/cue/token"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/roach88/loadplan/internal/compiler"
	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/serializer"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate declarations without emitting IR",
		Long: `Validate CUE entity and serializer declarations.

Performs syntax checking, structural validation and association
resolution, then reports serializers that embed each other in a cycle.
Cycles are warnings: they only fail when such a serializer is planned.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	bundle, loadErrors := compiler.LoadDir(specsDir, compiler.LoadModeCollectAll)
	if bundle == nil && len(loadErrors) > 0 {
		code, message := parseCompileError(loadErrors[0])
		return outputValidateError(formatter, code, message, nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", bundle.FileCount, specsDir)

	var validationErrors []compiler.ValidationError
	for _, err := range loadErrors {
		code, message := parseCompileError(err)
		var pos token.Pos
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) {
			pos = loadErr.Pos
		}
		validationErrors = append(validationErrors, compiler.ValidationError{
			Field:   "load",
			Message: message,
			Code:    code,
			Line:    lineOf(pos),
		})
	}
	validationErrors = append(validationErrors, validateAll(bundle, formatter)...)

	if len(validationErrors) == 0 {
		// Cross-declaration checks need a consistent bundle.
		registry, err := bundle.Registry(serializer.WithLogger(opts.log()))
		if err != nil {
			validationErrors = append(validationErrors, registryError(err))
		} else {
			validationErrors = append(validationErrors, describeAll(registry)...)
		}
	}

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	catalog, _ := bundle.Catalog()
	warnings := compiler.AnalyzeCycles(bundle.Serializers, catalog)
	return outputValidateSuccess(formatter, warnings)
}

// validateAll runs structural validation over every compiled declaration.
func validateAll(bundle *compiler.Bundle, formatter *OutputFormatter) []compiler.ValidationError {
	var all []compiler.ValidationError
	for _, e := range bundle.Entities {
		formatter.VerboseLog("Validating entity: %s", e.Name)
		all = append(all, prefixed("entity."+e.Name, compiler.Validate(e))...)
	}
	for _, s := range bundle.Serializers {
		formatter.VerboseLog("Validating serializer: %s", s.Name)
		all = append(all, prefixed("serializer."+s.Name, compiler.Validate(s))...)
	}
	return all
}

// describeAll resolves every serializer's associations against the catalog.
func describeAll(registry *serializer.Registry) []compiler.ValidationError {
	var all []compiler.ValidationError
	for _, s := range registry.Specs() {
		if _, err := registry.Describe(s.Name); err != nil {
			ve := registryError(err)
			ve.Field = "serializer." + s.Name
			all = append(all, ve)
		}
	}
	return all
}

func registryError(err error) compiler.ValidationError {
	code := ErrCodeRegistry
	if ce, ok := ir.AsConfigError(err); ok {
		code = string(ce.Code)
	}
	return compiler.ValidationError{Field: "registry", Message: err.Error(), Code: code}
}

func prefixed(prefix string, errs []compiler.ValidationError) []compiler.ValidationError {
	for i := range errs {
		errs[i].Field = prefix + "." + errs[i].Field
	}
	return errs
}

// lineOf extracts the line number from a CUE position.
func lineOf(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, warnings []compiler.CycleWarning) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Warnings: warnings})
	}

	fmt.Fprintln(formatter.Writer, "✓ All declarations valid")
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "⚠ %s\n", w.Message)
	}
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Unloadable specs are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
