// Package llmtest provides a scripted llm.Service for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/valpere/fintran/internal/llm"
)

// Fake answers requests through per-task functions. A task without a
// function returns Default for Generate and "{}" for Parse.
type Fake struct {
	Generate map[llm.Task]func(llm.Request) (string, error)
	Parse    map[llm.Task]func(llm.Request) (string, error)
	Default  string

	mu    sync.Mutex
	calls []llm.Request
}

// Service adapts the fake to llm.Service.
func (f *Fake) Service() llm.Service { return service{f} }

// Calls returns every request seen so far.
func (f *Fake) Calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.Request, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count returns the number of requests for task.
func (f *Fake) Count(task llm.Task) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Task == task {
			n++
		}
	}
	return n
}

func (f *Fake) record(req llm.Request) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
}

type service struct{ f *Fake }

func (s service) Generate(_ context.Context, req llm.Request) (string, error) {
	s.f.record(req)
	if fn, ok := s.f.Generate[req.Task]; ok {
		return fn(req)
	}
	return s.f.Default, nil
}

func (s service) Parse(_ context.Context, req llm.Request, out any) error {
	s.f.record(req)
	text := "{}"
	if fn, ok := s.f.Parse[req.Task]; ok {
		var err error
		if text, err = fn(req); err != nil {
			return err
		}
	}
	return llm.Decode(req.Model, text, out)
}

// Const returns a function that always answers s.
func Const(s string) func(llm.Request) (string, error) {
	return func(llm.Request) (string, error) { return s, nil }
}

// Fail returns a function that always fails with a transport error.
func Fail(msg string) func(llm.Request) (string, error) {
	return func(req llm.Request) (string, error) {
		return "", &llm.TransportError{Op: "fake", Model: req.Model, Err: fmt.Errorf("%s", msg)}
	}
}
