// Package skribe implements the engine-wide structured logger (C8): JSONL
// records keyed by a per-request id, emitted through log/slog with a JSON
// handler wrapped so that context-scoped attributes ride along on every
// record, regardless of how deep the call that logged them is.
package skribe

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/richardlehane/crock32"
)

type attrsKey struct{}

// ContextWithAttr returns a context carrying add appended to any attrs
// already present, so a deeply nested call can log with a request's
// subsystem/rid without threading it through every signature.
func ContextWithAttr(ctx context.Context, add ...slog.Attr) context.Context {
	attrs := slices.Clone(Attrs(ctx))
	attrs = append(attrs, add...)
	return context.WithValue(ctx, attrsKey{}, attrs)
}

// Attrs returns the attrs previously attached with ContextWithAttr, or nil.
func Attrs(ctx context.Context) []slog.Attr {
	attrs, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	return attrs
}

// AttrsWrap wraps h so that every record it handles picks up the calling
// context's attrs.
func AttrsWrap(h slog.Handler) slog.Handler {
	return &augmentHandler{Handler: h}
}

type augmentHandler struct {
	slog.Handler
}

func (h *augmentHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(Attrs(ctx)...)
	return h.Handler.Handle(ctx, r)
}

// Logger emits one JSON object per line with fields {ts, level, rid,
// subsystem, action, msg}, matching spec.md §4.8: two levels (info ->
// stdout, error -> stderr), built around a per-request id.
type Logger struct {
	rid    uint64
	ridStr string
	info   *slog.Logger
	errl   *slog.Logger
}

// NewRID derives a per-request id from the current time and process id, so
// records from concurrent processes rarely collide.
func NewRID() uint64 {
	return uint64(time.Now().UnixMilli()) ^ uint64(os.Getpid())
}

// New builds a Logger writing info records to stdout and error records to
// stderr.
func New(rid uint64) *Logger {
	return NewWithWriters(rid, os.Stdout, os.Stderr)
}

// NewWithWriters is New with explicit destinations — the test-mode variant
// from spec.md §4.8, letting a caller capture records into a buffer.
func NewWithWriters(rid uint64, infoW, errW io.Writer) *Logger {
	mk := func(w io.Writer) *slog.Logger {
		h := AttrsWrap(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if len(groups) == 0 && a.Key == slog.TimeKey {
					a.Key = "ts"
				}
				return a
			},
		}))
		return slog.New(h)
	}
	return &Logger{rid: rid, ridStr: crock32.Encode(rid), info: mk(infoW), errl: mk(errW)}
}

// RID returns the logger's request id.
func (l *Logger) RID() uint64 { return l.rid }

// Context returns ctx carrying this logger's crock32-rendered rid as an
// attribute, so any InfoContext/ErrorContext call reachable from ctx —
// however deep the call stack, e.g. inside locate or apply — picks it up
// through AttrsWrap without it being threaded as an explicit argument.
// Callers that want to scope further records to one operation (preview vs
// apply) append their own attr with ContextWithAttr on top of this.
func (l *Logger) Context(ctx context.Context) context.Context {
	return ContextWithAttr(ctx, slog.String("rid", l.ridStr))
}

// Info emits one info-level record. ctx carries this logger's rid (via
// Context) plus any attrs a caller higher up attached with ContextWithAttr.
func (l *Logger) Info(ctx context.Context, subsystem, action, msg string) {
	l.info.InfoContext(ctx, msg, "rid", l.ridStr, "subsystem", subsystem, "action", action)
}

// Error emits one error-level record.
func (l *Logger) Error(ctx context.Context, subsystem, action, msg string) {
	l.errl.ErrorContext(ctx, msg, "rid", l.ridStr, "subsystem", subsystem, "action", action)
}

// Slog exposes the info-level slog.Logger for packages (locate, apply)
// that take a *slog.Logger directly and log through InfoContext/
// ErrorContext rather than this package's typed wrapper.
func (l *Logger) Slog() *slog.Logger { return l.info }
