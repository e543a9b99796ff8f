package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/go-utils/errs"
)

// =============================================================================
// ERROR CODES
// =============================================================================

// Error code constants for structured errors.
const (
	CodeDuplicateName       = "DUPLICATE_NAME"
	CodeNotFound            = "NOT_FOUND"
	CodeAmbiguousDependency = "AMBIGUOUS_DEPENDENCY"
	CodeMissingDependency   = "MISSING_DEPENDENCY"
	CodeCircularDependency  = "CIRCULAR_DEPENDENCY"
	CodeTimeout             = "TIMEOUT"
	CodeTransactionState    = "TRANSACTION_STATE"
	CodeBuildError          = "BUILD_ERROR"
	CodeRegistryFrozen      = "REGISTRY_FROZEN"
	CodeInvalidUnit         = "INVALID_UNIT"
	CodeInterceptorError    = "INTERCEPTOR_ERROR"
	CodeConnectionError     = "CONNECTION_ERROR"
	CodeConfigError         = "CONFIG_ERROR"
)

// Standard container errors.
var (
	ErrInvalidConstructor = errs.New("constructor must be a function")
	ErrProceedTwice       = errs.New("proceed called more than once")
	ErrPoolClosed         = errs.New("pool is closed")
	ErrNotPoolConnection  = errs.New("connection does not belong to this pool")
)

// CrucibleError represents a structured error with a machine-readable code.
type CrucibleError = errs.Error

// ErrDuplicateName reports a second registration under an existing logical name.
func ErrDuplicateName(name string) *CrucibleError {
	return errs.NewError(CodeDuplicateName, "component '"+name+"' already registered", nil)
}

// ErrNotFound reports a lookup of an unknown logical name.
func ErrNotFound(name string) *CrucibleError {
	return errs.NewError(CodeNotFound, "component '"+name+"' not found", nil)
}

// ErrAmbiguousDependency reports a dependency with more than one viable
// candidate and no single primary among them.
func ErrAmbiguousDependency(component, dependency string, candidates []string) *CrucibleError {
	return errs.NewError(CodeAmbiguousDependency,
		fmt.Sprintf("ambiguous dependency '%s' of component '%s': candidates [%s]",
			dependency, component, strings.Join(candidates, ", ")), nil)
}

// ErrMissingDependency reports a dependency that resolves to no candidate.
func ErrMissingDependency(component, dependency string) *CrucibleError {
	return errs.NewError(CodeMissingDependency,
		fmt.Sprintf("missing dependency '%s' of component '%s'", dependency, component), nil)
}

// ErrCircularDependency reports a dependency cycle with no deferred edge.
// Every member of the cycle appears in the message.
func ErrCircularDependency(cycle []string) *CrucibleError {
	return errs.NewError(CodeCircularDependency,
		"circular dependency detected: "+strings.Join(cycle, " -> "), nil)
}

// ErrTimeout reports an operation that exceeded its deadline, typically
// pool exhaustion. Recoverable by the caller.
func ErrTimeout(operation string, timeout time.Duration) *CrucibleError {
	return errs.NewError(CodeTimeout, "timeout during "+operation+" after "+timeout.String(), nil)
}

// ErrTransactionState reports commit or rollback on a non-ACTIVE context.
func ErrTransactionState(operation, state string) *CrucibleError {
	return errs.NewError(CodeTransactionState,
		fmt.Sprintf("cannot %s transaction in state %s", operation, state), nil)
}

// ErrBuildError wraps a failure during container build. Build errors are
// fatal: a partially wired container is never returned.
func ErrBuildError(component string, cause error) *CrucibleError {
	return errs.NewError(CodeBuildError, "failed to build component '"+component+"'", cause)
}

// ErrRegistryFrozen reports registration after the scan phase completed.
func ErrRegistryFrozen(name string) *CrucibleError {
	return errs.NewError(CodeRegistryFrozen,
		"cannot register component '"+name+"': registry is frozen", nil)
}

// ErrInvalidUnit reports a unit declaration the scanner cannot accept.
func ErrInvalidUnit(name string, cause error) *CrucibleError {
	return errs.NewError(CodeInvalidUnit, "invalid unit declaration '"+name+"'", cause)
}

// ErrInterceptorError wraps a failure inside an interceptor chain.
func ErrInterceptorError(interceptor string, cause error) *CrucibleError {
	return errs.NewError(CodeInterceptorError, "interceptor '"+interceptor+"' failed", cause)
}

// ErrConnectionError wraps a failure on the underlying resource handle.
func ErrConnectionError(operation string, cause error) *CrucibleError {
	return errs.NewError(CodeConnectionError, "connection error during "+operation, cause)
}

// ErrConfigError creates a config error.
func ErrConfigError(message string, cause error) *CrucibleError {
	return errs.NewError(CodeConfigError, message, cause)
}

// =============================================================================
// STANDARD ERRORS PACKAGE INTEGRATION
// =============================================================================

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around errors.Is from the standard library.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target, and if so,
// sets target to that error value and returns true. Otherwise, it returns false.
// This is a convenience wrapper around errors.As from the standard library.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err, if err's
// type contains an Unwrap method returning error. Otherwise, Unwrap returns nil.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// New returns an error that formats as the given text.
// This is a convenience wrapper around errors.New from the standard library.
func New(text string) error {
	return errors.New(text)
}

// Join returns an error that wraps the given errors.
// Any nil error values are discarded.
func Join(errList ...error) error {
	return errors.Join(errList...)
}

// =============================================================================
// SENTINEL ERRORS (for use with Is)
// =============================================================================

// Sentinel errors that can be used with errors.Is comparisons.
var (
	// ErrDuplicateNameSentinel matches duplicate registration errors.
	ErrDuplicateNameSentinel = &CrucibleError{Code: CodeDuplicateName}

	// ErrNotFoundSentinel matches unknown-name lookup errors.
	ErrNotFoundSentinel = &CrucibleError{Code: CodeNotFound}

	// ErrAmbiguousDependencySentinel matches ambiguous dependency errors.
	ErrAmbiguousDependencySentinel = &CrucibleError{Code: CodeAmbiguousDependency}

	// ErrMissingDependencySentinel matches missing dependency errors.
	ErrMissingDependencySentinel = &CrucibleError{Code: CodeMissingDependency}

	// ErrCircularDependencySentinel matches circular dependency errors.
	ErrCircularDependencySentinel = &CrucibleError{Code: CodeCircularDependency}

	// ErrTimeoutSentinel matches timeout errors.
	ErrTimeoutSentinel = &CrucibleError{Code: CodeTimeout}

	// ErrTransactionStateSentinel matches transaction state errors.
	ErrTransactionStateSentinel = &CrucibleError{Code: CodeTransactionState}

	// ErrBuildErrorSentinel matches container build errors.
	ErrBuildErrorSentinel = &CrucibleError{Code: CodeBuildError}

	// ErrRegistryFrozenSentinel matches post-freeze registration errors.
	ErrRegistryFrozenSentinel = &CrucibleError{Code: CodeRegistryFrozen}
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsDuplicateName checks if the error is a duplicate registration error.
func IsDuplicateName(err error) bool {
	return Is(err, ErrDuplicateNameSentinel)
}

// IsNotFound checks if the error is an unknown-name lookup error.
func IsNotFound(err error) bool {
	return Is(err, ErrNotFoundSentinel)
}

// IsAmbiguousDependency checks if the error is an ambiguous dependency error.
func IsAmbiguousDependency(err error) bool {
	return Is(err, ErrAmbiguousDependencySentinel)
}

// IsMissingDependency checks if the error is a missing dependency error.
func IsMissingDependency(err error) bool {
	return Is(err, ErrMissingDependencySentinel)
}

// IsCircularDependency checks if the error is a circular dependency error.
func IsCircularDependency(err error) bool {
	return Is(err, ErrCircularDependencySentinel)
}

// IsTimeout checks if the error is a timeout error.
func IsTimeout(err error) bool {
	return Is(err, ErrTimeoutSentinel)
}

// IsTransactionState checks if the error is a transaction state error.
func IsTransactionState(err error) bool {
	return Is(err, ErrTransactionStateSentinel)
}
