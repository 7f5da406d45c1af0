// Package errors provides categorized errors with optional telemetry reporting.
//
// Migration phases build their failures through the fluent builder so that
// every error carries the component and category the CLI and Sentry group on:
//
//	return errors.New(err).
//	    Component("migration").
//	    Category(errors.CategoryMigration).
//	    Context("phase", "validate").
//	    Build()
//
// Is, As, Join and Unwrap forward to the standard library so callers need
// only one errors import.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors for metrics and Sentry.
type ErrorCategory string

const (
	CategoryGeneric       ErrorCategory = "generic"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryNetwork       ErrorCategory = "network"
	CategoryDatabase      ErrorCategory = "database"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryState         ErrorCategory = "state"
	CategoryRetry         ErrorCategory = "retry"

	CategoryLegacyStore      ErrorCategory = "legacy-store"
	CategoryMigration        ErrorCategory = "migration"
	CategoryPhotoMigration   ErrorCategory = "photo-migration"
	CategoryCanonicalization ErrorCategory = "canonicalization"
	CategoryArchive          ErrorCategory = "archive"
	CategoryRecovery         ErrorCategory = "recovery"
)

// ComponentUnknown is used when no registered package matches the caller.
const ComponentUnknown = "unknown"

// EnhancedError is an error with a component, a category and free-form
// context. It unwraps to the error it was built from.
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time

	reported atomic.Bool
}

func (ee *EnhancedError) Error() string {
	if ee.Err == nil {
		return string(ee.Category)
	}
	return ee.Err.Error()
}

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is matches another EnhancedError of the same category.
func (ee *EnhancedError) Is(target error) bool {
	other, ok := target.(*EnhancedError)
	return ok && other.Category == ee.Category
}

// GetContext returns a copy of the context map.
func (ee *EnhancedError) GetContext() map[string]any {
	return maps.Clone(ee.Context)
}

// ErrorBuilder collects the metadata of an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts a builder for err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts a builder for a formatted error.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component names the component. Left empty, it is taken from the
// package that calls Build.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the category. Left empty, it is inherited from a wrapped
// EnhancedError or defaults to generic.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context attaches one key/value pair.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Build creates the error, runs the registered hooks and hands it to the
// telemetry reporter.
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  eb.category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
	if ee.Component == "" {
		ee.Component = callerComponent()
	}
	if ee.Category == "" {
		ee.Category = inheritedCategory(eb.err)
	}

	hooksMu.RLock()
	hooks := errorHooks
	hooksMu.RUnlock()
	for _, h := range hooks {
		h(ee)
	}
	reportToTelemetry(ee)

	return ee
}

func inheritedCategory(err error) ErrorCategory {
	var inner *EnhancedError
	if stderrors.As(err, &inner) && inner.Category != "" {
		return inner.Category
	}
	return CategoryGeneric
}

// ErrorHook observes every built error while registered.
type ErrorHook func(ee *EnhancedError)

var (
	hooksMu    sync.RWMutex
	errorHooks []ErrorHook
)

// AddErrorHook registers hook. The run command counts errors per category
// with one.
func AddErrorHook(hook ErrorHook) {
	if hook == nil {
		return
	}
	hooksMu.Lock()
	errorHooks = append(errorHooks, hook)
	hooksMu.Unlock()
}

// ClearErrorHooks removes every hook.
func ClearErrorHooks() {
	hooksMu.Lock()
	errorHooks = nil
	hooksMu.Unlock()
}

// componentPackages maps package path fragments to component names. The
// longest matching fragment wins.
var componentPackages = map[string]string{
	"internal/datastore/legacy":       "legacy-store",
	"internal/datastore/v2/migration": "migration",
	"internal/datastore/v2.":          "target-store",
	"internal/datastore/v2only":       "fresh-install",
	"internal/archive":                "archive",
	"internal/remote":                 "remote-recovery",
	"internal/conf":                   "configuration",
	"internal/observability":          "metrics",
}

const thisPackage = "github.com/movingbox/storemigrate/internal/errors."

// callerComponent walks the stack to the first frame outside this package.
func callerComponent() string {
	pcs := make([]uintptr, 16)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(2, pcs)])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.HasPrefix(frame.Function, thisPackage) {
			return componentFor(frame.Function)
		}
		if !more {
			return ComponentUnknown
		}
	}
}

func componentFor(function string) string {
	best, bestLen := ComponentUnknown, 0
	for fragment, component := range componentPackages {
		if len(fragment) > bestLen && strings.Contains(function, fragment) {
			best, bestLen = component, len(fragment)
		}
	}
	return best
}

// IsCategory reports whether err wraps an EnhancedError of category.
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	return stderrors.As(err, &ee) && ee.Category == category
}

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Unwrap(err error) error { return stderrors.Unwrap(err) }

func Join(errs ...error) error { return stderrors.Join(errs...) }
