package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/valpere/fintran/internal/ratelimit"
	"github.com/valpere/fintran/internal/trace"
)

// maxTraceChars caps prompt and response text copied into trace events.
const maxTraceChars = 1800

// Limited decorates a Service with the shared request budget, a hard
// per-call timeout, trace events and debug logs. Errors that are not
// already typed are reported as *TransportError.
type Limited struct {
	next         Service
	limiter      ratelimit.Limiter
	timeout      time.Duration
	sink         trace.Sink
	log          *slog.Logger
	tracePrompts bool
}

// LimitedOption configures a Limited.
type LimitedOption func(*Limited)

// WithTrace sends request/response/error events to sink. Prompt and answer
// snippets are included only when prompts is true.
func WithTrace(sink trace.Sink, prompts bool) LimitedOption {
	return func(l *Limited) {
		l.sink = sink
		l.tracePrompts = prompts
	}
}

// WithLogger sets the logger used for per-call debug lines.
func WithLogger(log *slog.Logger) LimitedOption {
	return func(l *Limited) { l.log = log }
}

// NewLimited wraps next. A zero timeout disables the per-call deadline.
func NewLimited(next Service, limiter ratelimit.Limiter, timeout time.Duration, opts ...LimitedOption) *Limited {
	l := &Limited{
		next:    next,
		limiter: limiter,
		timeout: timeout,
		sink:    trace.Nop{},
		log:     slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(l)
	}
	if l.limiter == nil {
		l.limiter = ratelimit.Unlimited()
	}
	return l
}

func (l *Limited) Generate(ctx context.Context, req Request) (string, error) {
	var out string
	err := l.do(ctx, "generate", req, func(ctx context.Context) (string, error) {
		s, err := l.next.Generate(ctx, req)
		out = s
		return s, err
	})
	return out, err
}

func (l *Limited) Parse(ctx context.Context, req Request, target any) error {
	return l.do(ctx, "parse", req, func(ctx context.Context) (string, error) {
		return "", l.next.Parse(ctx, req, target)
	})
}

func (l *Limited) do(ctx context.Context, op string, req Request, call func(context.Context) (string, error)) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return l.fail(ctx, op, req, &TransportError{Op: op, Model: req.Model, Timeout: isTimeout(ctx, err), Err: err})
	}
	sink := trace.FromContext(ctx, l.sink)
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	reqData := map[string]any{
		"op":         op,
		"task":       string(req.Task),
		"model":      req.Model,
		"prompt_len": len(req.Prompt),
	}
	if l.tracePrompts {
		reqData["prompt_snip"] = trace.Snip(req.Prompt, maxTraceChars)
	}
	sink.Log(trace.KindRequest, reqData)

	start := time.Now()
	text, err := call(ctx)
	latency := time.Since(start)
	if err != nil {
		var te *TransportError
		var se *SchemaError
		if !errors.As(err, &te) && !errors.As(err, &se) {
			err = &TransportError{Op: op, Model: req.Model, Timeout: isTimeout(ctx, err), Err: err}
		}
		return l.fail(ctx, op, req, err)
	}

	respData := map[string]any{
		"op":           op,
		"task":         string(req.Task),
		"model":        req.Model,
		"latency_ms":   latency.Milliseconds(),
		"response_len": len(text),
	}
	if l.tracePrompts && text != "" {
		respData["response_snip"] = trace.Snip(text, maxTraceChars)
	}
	sink.Log(trace.KindResponse, respData)
	l.log.Debug("llm call",
		"op", op,
		"task", req.Task,
		"model", req.Model,
		"prompt_len", len(req.Prompt),
		"latency", latency,
	)
	return nil
}

func (l *Limited) fail(ctx context.Context, op string, req Request, err error) error {
	trace.FromContext(ctx, l.sink).Log(trace.KindError, map[string]any{
		"op":    op,
		"task":  string(req.Task),
		"model": req.Model,
		"error": err.Error(),
	})
	l.log.Warn("llm call failed", "op", op, "task", req.Task, "model", req.Model, "err", err)
	return err
}
