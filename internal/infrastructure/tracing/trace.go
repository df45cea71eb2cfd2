package tracing

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/remote/internal/shared/id"
	"go.uber.org/zap"
)

// Propagation headers accepted on HTTP requests and echoed back
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

const spanBuffer = 1024

// TraceID groups the spans of one flow
type TraceID string

// SpanID names one operation
type SpanID string

type tag struct {
	key, value string
}

// Span is one traced operation, such as a protocol call or an HTTP request
type Span struct {
	TraceID   TraceID
	SpanID    SpanID
	ParentID  SpanID
	Name      string
	StartTime time.Time
	Duration  time.Duration
	Error     error

	tags []tag
}

// Finish records the duration
func (s *Span) Finish() {
	s.Duration = time.Since(s.StartTime)
}

// SetTag adds a tag. Tags are logged in the order they were set.
func (s *Span) SetTag(key, value string) {
	s.tags = append(s.tags, tag{key, value})
}

// Tag returns the last value set for key
func (s *Span) Tag(key string) (string, bool) {
	for i := len(s.tags) - 1; i >= 0; i-- {
		if s.tags[i].key == key {
			return s.tags[i].value, true
		}
	}
	return "", false
}

// SetError marks the span failed
func (s *Span) SetError(err error) {
	s.Error = err
}

// Tracer logs finished spans from a single collector goroutine
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span
	dropped atomic.Uint64

	done chan struct{}
	once sync.Once
}

// New starts a tracer whose spans are logged under service
func New(service string, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		service: service,
		logger:  logger.Named("trace"),
		spans:   make(chan *Span, spanBuffer),
		done:    make(chan struct{}),
	}
	go t.collect()
	return t
}

// StartSpan opens a span. Trace and parent come from ctx when present;
// the returned context makes the new span the parent of later ones.
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := TraceIDFrom(ctx)
	if traceID == "" {
		traceID = TraceID(id.NewRequestID())
	}
	span := &Span{
		TraceID:   traceID,
		SpanID:    SpanID(id.NewRequestID()),
		ParentID:  SpanIDFrom(ctx),
		Name:      name,
		StartTime: time.Now(),
	}
	return span, WithTrace(ctx, traceID, span.SpanID)
}

// Submit queues a finished span. It never blocks: spans are dropped when
// the buffer is full or the tracer is closed.
func (t *Tracer) Submit(span *Span) {
	select {
	case <-t.done:
		return
	default:
	}
	select {
	case t.spans <- span:
	default:
		if t.dropped.Add(1) == 1 {
			t.logger.Warn("Span buffer full, dropping spans", zap.Int("buffer", cap(t.spans)))
		}
	}
}

// Dropped reports how many spans were lost to a full buffer
func (t *Tracer) Dropped() uint64 {
	return t.dropped.Load()
}

// Close stops the collector. Queued spans are discarded.
func (t *Tracer) Close() {
	t.once.Do(func() { close(t.done) })
}

func (t *Tracer) collect() {
	for {
		select {
		case span := <-t.spans:
			t.log(span)
		case <-t.done:
			return
		}
	}
}

func (t *Tracer) log(span *Span) {
	fields := make([]zap.Field, 0, 6+len(span.tags))
	fields = append(fields,
		zap.String("service", t.service),
		zap.String("trace_id", string(span.TraceID)),
		zap.String("span_id", string(span.SpanID)),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
	)
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(span.ParentID)))
	}
	for _, tg := range span.tags {
		fields = append(fields, zap.String(tg.key, tg.value))
	}

	if span.Error != nil {
		t.logger.Warn("Span failed", append(fields, zap.Error(span.Error))...)
		return
	}
	t.logger.Debug("Span finished", fields...)
}

type contextKey int

const (
	traceIDKey contextKey = iota
	spanIDKey
)

// WithTrace seeds ctx with a trace and parent span. Empty values are
// ignored.
func WithTrace(ctx context.Context, traceID TraceID, parent SpanID) context.Context {
	if traceID != "" {
		ctx = context.WithValue(ctx, traceIDKey, traceID)
	}
	if parent != "" {
		ctx = context.WithValue(ctx, spanIDKey, parent)
	}
	return ctx
}

// FromHeaders reads propagated trace headers
func FromHeaders(h http.Header) (TraceID, SpanID) {
	return TraceID(h.Get(HeaderTraceID)), SpanID(h.Get(HeaderSpanID))
}

// TraceIDFrom returns the trace carried by ctx, if any
func TraceIDFrom(ctx context.Context) TraceID {
	traceID, _ := ctx.Value(traceIDKey).(TraceID)
	return traceID
}

// SpanIDFrom returns the current span carried by ctx, if any
func SpanIDFrom(ctx context.Context) SpanID {
	spanID, _ := ctx.Value(spanIDKey).(SpanID)
	return spanID
}
