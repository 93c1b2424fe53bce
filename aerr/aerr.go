// Package aerr defines the engine's error taxonomy (spec.md §7): a small set
// of kinds, not Go types, so that every subsystem reports failures the same
// way and a caller can render a single line tagged with kind, message, and
// one of {path, context, file}.
//
// This is deliberately stdlib-only (just the errors package). None of the
// teacher's or the wider pack's dependencies offer a structured-error
// taxonomy either — the teacher itself reaches for plain fmt.Errorf and
// errors.Join (see claudetool/patch.go's patchErr accumulator) rather than a
// library like github.com/pkg/errors or go-faster/errors (both present
// elsewhere in the pack, pulled in transitively, never used directly by
// hand-written teacher code). Following the teacher here means staying on
// errors.Is/errors.As, not importing a structured-error library nobody in
// the pack's own code reaches for directly.
package aerr

import "fmt"

// Kind is one of the five top-level error categories from spec.md §7.
type Kind int

const (
	Session Kind = iota
	Validation
	File
	Parse
	Apply
)

func (k Kind) String() string {
	switch k {
	case Session:
		return "session"
	case Validation:
		return "validation"
	case File:
		return "file"
	case Parse:
		return "parse"
	case Apply:
		return "apply"
	default:
		return "unknown"
	}
}

// Code names a specific failure within a Kind.
type Code string

const (
	CodeSessionReadFailed  Code = "session_read_failed"
	CodeSessionWriteFailed Code = "session_write_failed"
	CodeSessionCorrupt     Code = "session_corrupt"

	CodeParseFailed    Code = "parse_failed"
	CodeNoBlocksFound  Code = "no_blocks_found"
	CodeBoundsExceeded Code = "bounds_exceeded"

	CodeNoMatch         Code = "no_match"
	CodeAmbiguousMatch  Code = "ambiguous_match"
	CodeRegexError      Code = "regex_error"
	CodePathTraversal   Code = "path_traversal"
	CodeValidationFail  Code = "validation_failed"
	CodeFileReadFailed  Code = "file_read_failed"
	CodeFileWriteFailed Code = "file_write_failed"
	CodeBackupFailed    Code = "backup_failed"
)

// Error is the engine's single error type. At most one of Path, Context, or
// File_ is populated, chosen by Kind (Validation carries Context, File and
// Apply carry a file path, Session carries a state-file path); some errors
// carry no location at all.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Path    string // Session, File
	Context string // Validation, Parse
	File_   string // Apply, File
}

func (e *Error) Error() string {
	loc := e.Path
	if loc == "" {
		loc = e.Context
	}
	if loc == "" {
		loc = e.File_
	}
	if loc == "" {
		return fmt.Sprintf("%s error [%s]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error [%s]: %s (%s)", e.Kind, e.Code, e.Message, loc)
}

// Is supports errors.Is comparisons keyed on Kind and Code; the message and
// location are ignored.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func New(kind Kind, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Newf(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithPath returns a copy of e with Path set.
func (e *Error) WithPath(p string) *Error {
	c := *e
	c.Path = p
	return &c
}

// WithContext returns a copy of e with Context set.
func (e *Error) WithContext(ctx string) *Error {
	c := *e
	c.Context = ctx
	return &c
}

// WithFile returns a copy of e with File_ set.
func (e *Error) WithFile(f string) *Error {
	c := *e
	c.File_ = f
	return &c
}
