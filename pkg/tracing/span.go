// Package tracing times the stages of a lookup. Spans travel in the
// context, form a tree under the request's root span and are written to slog
// at debug level when the request finishes.
package tracing

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

type spanKey struct{}

// Span is one timed stage. TraceID is shared by every span under a root.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	mu        sync.Mutex
}

func newSpan(name, traceID string) *Span {
	return &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
}

// StartSpan starts a root span for traceID and stores it in the returned
// context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID)
	return context.WithValue(ctx, spanKey{}, span), span
}

// StartChildSpan starts a span under the one in ctx. Without a parent the
// span is detached and has no trace ID.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		child := newSpan(name, "")
		return context.WithValue(ctx, spanKey{}, child), child
	}
	child := newSpan(name, parent.TraceID)
	parent.mu.Lock()
	parent.Children = append(parent.Children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, child), child
}

// SpanFromContext returns the current span, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

// End fixes the span's duration. Only the first call counts.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.EndTime.IsZero() {
		return
	}
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// SetAttr attaches one attribute.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SetAttrs attaches alternating key/value pairs. A trailing key without a
// value is ignored, as is a non-string key.
func (s *Span) SetAttrs(kv ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			s.Attrs[key] = kv[i+1]
		}
	}
}

// Log writes the span tree to logger at debug level.
func (s *Span) Log(ctx context.Context, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	s.walk(func(sp *Span, depth int) {
		logger.DebugContext(ctx, "span", sp.logAttrs(depth)...)
	})
}

// WarnIfSlow logs the span and its direct children at warn level when the
// span took longer than threshold. It reports whether it logged.
func (s *Span) WarnIfSlow(ctx context.Context, logger *slog.Logger, threshold time.Duration) bool {
	if threshold <= 0 || s.Duration <= threshold {
		return false
	}
	if logger == nil {
		logger = slog.Default()
	}
	stages := make([]any, 0, 2*len(s.children()))
	for _, c := range s.children() {
		stages = append(stages, c.Name+"_ms", c.Duration.Milliseconds())
	}
	logger.WarnContext(ctx, "slow span",
		"span", s.Name,
		"trace_id", s.TraceID,
		"duration_ms", s.Duration.Milliseconds(),
		slog.Group("stages", stages...),
	)
	return true
}

// Tree returns the span names in depth-first order, indented by depth.
func (s *Span) Tree() []string {
	var out []string
	s.walk(func(sp *Span, depth int) {
		out = append(out, strings.Repeat("  ", depth)+sp.Name)
	})
	return out
}

func (s *Span) walk(fn func(sp *Span, depth int)) {
	var visit func(sp *Span, depth int)
	visit = func(sp *Span, depth int) {
		fn(sp, depth)
		for _, c := range sp.children() {
			visit(c, depth+1)
		}
	}
	visit(s, 0)
}

func (s *Span) children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.Children...)
}

func (s *Span) logAttrs(depth int) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs := make([]any, 0, 8+2*len(s.Attrs))
	attrs = append(attrs,
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.Duration.Milliseconds(),
		"depth", depth,
	)
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	return attrs
}
