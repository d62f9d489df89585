// Package errors implements the failure taxonomy for model building, model loading
// and document input.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an error by the stage that produced it.
// Classification never fails, so there is no kind for it.
type Kind int

const (
	// KindConfig indicates a malformed or empty training corpus or invalid build
	// parameters. Fatal for model building.
	KindConfig Kind = iota

	// KindModel indicates a corrupt or structurally invalid model, either persisted
	// or handed to the model constructor.
	KindModel

	// KindInput indicates a document or corpus file that could not be read.
	KindInput
)

var kindNames = map[Kind]string{
	KindConfig: "config",
	KindModel:  "model",
	KindInput:  "input",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error wraps a failure with its kind and the operation that raised it.
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	Underlying error
	Context    map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", e.Kind)
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if len(e.Context) > 0 {
		b.WriteString(" (")
		b.WriteString(formatContext(e.Context))
		b.WriteString(")")
	}
	if e.Underlying != nil {
		b.WriteString(": ")
		b.WriteString(e.Underlying.Error())
	}
	return b.String()
}

func formatContext(ctx map[string]string) string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+ctx[k])
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

// WithContext adds a key-value pair to the error.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// New creates an *Error of the given kind.
func New(kind Kind, op, message string, underlying error) *Error {
	return &Error{
		Kind:       kind,
		Op:         op,
		Message:    message,
		Underlying: underlying,
	}
}

// Config creates a KindConfig error.
func Config(op, message string, underlying error) *Error {
	return New(KindConfig, op, message, underlying)
}

// Model creates a KindModel error.
func Model(op, message string, underlying error) *Error {
	return New(KindModel, op, message, underlying)
}

// Input creates a KindInput error.
func Input(op, message string, underlying error) *Error {
	return New(KindInput, op, message, underlying)
}

// Configf creates a KindConfig error with a formatted message.
func Configf(op, format string, args ...any) *Error {
	return Config(op, fmt.Sprintf(format, args...), nil)
}

// Modelf creates a KindModel error with a formatted message.
func Modelf(op, format string, args ...any) *Error {
	return Model(op, fmt.Sprintf(format, args...), nil)
}

// Sentinels for errors.Is matching by kind.
var (
	ErrConfig = &Error{Kind: KindConfig, Message: "invalid configuration"}
	ErrModel  = &Error{Kind: KindModel, Message: "invalid model"}
	ErrInput  = &Error{Kind: KindInput, Message: "unreadable input"}
)

// KindOf extracts the Kind from an error. The boolean is false when err carries
// no *Error in its chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsConfig reports whether err is a KindConfig error.
func IsConfig(err error) bool { return errors.Is(err, ErrConfig) }

// IsModel reports whether err is a KindModel error.
func IsModel(err error) bool { return errors.Is(err, ErrModel) }

// IsInput reports whether err is a KindInput error.
func IsInput(err error) bool { return errors.Is(err, ErrInput) }

// Wrap attaches a kind to err unless it already carries one, in which case the
// existing kind is preserved.
func Wrap(kind Kind, op, message string, err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return &Error{
			Kind:       e.Kind,
			Op:         op,
			Message:    message,
			Underlying: err,
		}
	}

	return New(kind, op, message, err)
}

// Exit codes for the command line.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
	ExitModel   = 3
	ExitInput   = 4
)

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	kind, ok := KindOf(err)
	if !ok {
		return ExitFailure
	}
	switch kind {
	case KindConfig:
		return ExitConfig
	case KindModel:
		return ExitModel
	case KindInput:
		return ExitInput
	default:
		return ExitFailure
	}
}
