package logging

import (
	"context"
	"log/slog"
)

type identifierKey struct{}

// IdentifierAttr is the attribute key carrying the scoped identifier.
const IdentifierAttr = "identifier"

// WithIdentifier returns a child of ctx whose log records are tagged with
// identifier=value. ctx itself is left unchanged, so the previous value is
// back in effect as soon as the caller stops using the child.
func WithIdentifier(ctx context.Context, value string) context.Context {
	return context.WithValue(ctx, identifierKey{}, value)
}

// Identifier returns the identifier tag carried by ctx, or "".
func Identifier(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(identifierKey{}).(string)
	return v
}

// contextHandler adds the identifier stored in the record's context.
type contextHandler struct {
	next slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := Identifier(ctx); id != "" {
		r = r.Clone()
		r.AddAttrs(slog.String(IdentifierAttr, id))
	}
	return h.next.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}
