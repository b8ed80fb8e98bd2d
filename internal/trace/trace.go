// Package trace records a per-run diagnostic trail of capability calls
// (requests, responses, errors). A Sink is injected into components; the
// Recorder keeps events in memory so they can be attached to a run report.
package trace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds emitted by capability adapters.
const (
	KindRequest  = "llm.request"
	KindResponse = "llm.response"
	KindError    = "llm.error"
	KindEmbed    = "embed.request"
	KindStage    = "pipeline.stage"
)

// Event is one entry of the trail.
type Event struct {
	Time time.Time      `json:"ts"`
	Kind string         `json:"kind"`
	Data map[string]any `json:"data,omitempty"`
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Log(kind string, data map[string]any)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Log(string, map[string]any) {}

type ctxKey struct{}

// NewContext returns a copy of ctx that carries sink. Adapters that find a
// sink in their context log there instead of their configured sink, so one
// pipeline can keep a separate trail per run.
func NewContext(ctx context.Context, sink Sink) context.Context {
	return context.WithValue(ctx, ctxKey{}, sink)
}

// FromContext returns the sink carried by ctx, or fallback.
func FromContext(ctx context.Context, fallback Sink) Sink {
	if s, ok := ctx.Value(ctxKey{}).(Sink); ok && s != nil {
		return s
	}
	return fallback
}

// Recorder is an in-memory Sink bound to one trace id.
type Recorder struct {
	id  string
	now func() time.Time

	mu     sync.Mutex
	events []Event
}

// NewRecorder starts a trail with a fresh random id.
func NewRecorder() *Recorder {
	return &Recorder{id: uuid.NewString(), now: time.Now}
}

// ID returns the trace id.
func (r *Recorder) ID() string { return r.id }

// Log appends an event.
func (r *Recorder) Log(kind string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Time: r.now(), Kind: kind, Data: data})
}

// Events returns a copy of the trail in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Snip shortens s to at most n bytes on a rune boundary, marking the cut.
func Snip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + " …[truncated]"
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
