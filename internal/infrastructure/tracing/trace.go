package tracing

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/id"
	"go.uber.org/zap"
)

const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

// TraceID represents a unique trace identifier
type TraceID string

// SpanID represents a unique span identifier
type SpanID string

// Span represents a single operation in a trace
type Span struct {
	TraceID    TraceID
	SpanID     SpanID
	ParentID   SpanID
	Name       string
	Service    string
	StartTime  time.Time
	Duration   time.Duration
	Tags       map[string]string
	Error      error
	StatusCode int
}

// Tracer collects finished spans and writes them to the log
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span
	done    chan struct{}
	once    sync.Once
}

// New creates a tracer and starts its collector
func New(service string, logger *zap.Logger) *Tracer {
	t := &Tracer{
		service: service,
		logger:  logger,
		spans:   make(chan *Span, 1000),
		done:    make(chan struct{}),
	}

	go t.collectSpans()

	return t
}

// StartSpan creates a span, continuing the trace found in ctx if any
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = TraceID(id.NewRequestID())
	}

	span := &Span{
		TraceID:   traceID,
		SpanID:    SpanID(id.NewSpanID()),
		ParentID:  GetSpanID(ctx),
		Name:      name,
		Service:   t.service,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
	}

	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, spanIDKey, span.SpanID)
	return span, ctx
}

// Finish marks the span as complete and hands it to the collector
func (t *Tracer) Finish(span *Span) {
	span.Duration = time.Since(span.StartTime)

	select {
	case <-t.done:
		return
	default:
	}

	select {
	case t.spans <- span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", string(span.TraceID)),
			zap.String("operation", span.Name),
		)
	}
}

// Close stops the collector
func (t *Tracer) Close() {
	t.once.Do(func() { close(t.done) })
}

// SetTag adds a tag to the span
func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// SetError records an error in the span
func (s *Span) SetError(err error) {
	s.Error = err
}

// SetStatus sets the HTTP status code
func (s *Span) SetStatus(code int) {
	s.StatusCode = code
}

func (t *Tracer) collectSpans() {
	for {
		select {
		case span := <-t.spans:
			t.processSpan(span)
		case <-t.done:
			return
		}
	}
}

func (t *Tracer) processSpan(span *Span) {
	fields := []zap.Field{
		zap.String("trace_id", string(span.TraceID)),
		zap.String("span_id", string(span.SpanID)),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
		zap.String("service", span.Service),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(span.ParentID)))
	}
	if span.StatusCode != 0 {
		fields = append(fields, zap.Int("status", span.StatusCode))
	}
	for k, v := range span.Tags {
		fields = append(fields, zap.String(k, v))
	}

	if span.Error != nil {
		fields = append(fields, zap.Error(span.Error))
		t.logger.Warn("span completed with error", fields...)
		return
	}
	t.logger.Debug("span completed", fields...)
}

// Inject writes the trace context from ctx into outbound headers
func Inject(ctx context.Context, header http.Header) {
	if traceID := GetTraceID(ctx); traceID != "" {
		header.Set(HeaderTraceID, string(traceID))
	}
	if spanID := GetSpanID(ctx); spanID != "" {
		header.Set(HeaderSpanID, string(spanID))
	}
}

// Extract seeds ctx with the trace context carried by inbound headers
func Extract(ctx context.Context, header http.Header) context.Context {
	if traceID := header.Get(HeaderTraceID); traceID != "" {
		ctx = context.WithValue(ctx, traceIDKey, TraceID(traceID))
	}
	if spanID := header.Get(HeaderSpanID); spanID != "" {
		ctx = context.WithValue(ctx, spanIDKey, SpanID(spanID))
	}
	return ctx
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// GetTraceID retrieves the trace ID from context
func GetTraceID(ctx context.Context) TraceID {
	traceID, _ := ctx.Value(traceIDKey).(TraceID)
	return traceID
}

// GetSpanID retrieves the span ID from context
func GetSpanID(ctx context.Context) SpanID {
	spanID, _ := ctx.Value(spanIDKey).(SpanID)
	return spanID
}
