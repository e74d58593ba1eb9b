package ir

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ConfigErrorCode classifies declaration-time errors.
type ConfigErrorCode string

const (
	ErrCodeUnsupportedSpecType      ConfigErrorCode = "UNSUPPORTED_SPEC_TYPE"
	ErrCodeUnknownAssociationTarget ConfigErrorCode = "UNKNOWN_ASSOCIATION_TARGET"
	ErrCodeRecursion                ConfigErrorCode = "RECURSION"
)

// ConfigError is raised when serializer or include declarations cannot be
// turned into a select tree. It is always a programmer error in the
// declarations, never a runtime data error.
type ConfigError struct {
	Code    ConfigErrorCode
	Subject string   // serializer, association, or directive involved
	Message string
	Path    []string // serializer chain for RECURSION
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if len(e.Path) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Path, " -> "))
	}
	return b.String()
}

// NewUnsupportedSpecType reports an include directive of an unsupported shape.
func NewUnsupportedSpecType(v any) error {
	return errors.WithHint(&ConfigError{
		Code:    ErrCodeUnsupportedSpecType,
		Subject: fmt.Sprintf("%T", v),
		Message: fmt.Sprintf("unknown includes value type %T (%v)", v, v),
	}, "includes accept a name, a mapping of name to nested includes, or a list of those")
}

// NewUnknownAssociationTarget reports an association whose target entity or
// serializer cannot be resolved.
func NewUnknownAssociationTarget(owner, association, detail string) error {
	return errors.WithHint(&ConfigError{
		Code:    ErrCodeUnknownAssociationTarget,
		Subject: owner + "." + association,
		Message: fmt.Sprintf("cannot resolve association %q on %s: %s", association, owner, detail),
	}, "if the association is renamed, map it with relation: <entity relation>")
}

// NewRecursionError reports an association cycle during tree construction.
func NewRecursionError(entity string, path []string) error {
	return &ConfigError{
		Code:    ErrCodeRecursion,
		Subject: entity,
		Message: fmt.Sprintf("recursive association involving %s", entity),
		Path:    path,
	}
}

// AsConfigError extracts a ConfigError from err's chain.
func AsConfigError(err error) (*ConfigError, bool) {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsUnsupportedSpecType reports whether err is an UNSUPPORTED_SPEC_TYPE error.
func IsUnsupportedSpecType(err error) bool { return hasCode(err, ErrCodeUnsupportedSpecType) }

// IsUnknownAssociationTarget reports whether err is an UNKNOWN_ASSOCIATION_TARGET error.
func IsUnknownAssociationTarget(err error) bool {
	return hasCode(err, ErrCodeUnknownAssociationTarget)
}

// IsRecursionError reports whether err is a RECURSION error.
func IsRecursionError(err error) bool { return hasCode(err, ErrCodeRecursion) }

func hasCode(err error, code ConfigErrorCode) bool {
	ce, ok := AsConfigError(err)
	return ok && ce.Code == code
}
