package llm

import (
	"context"
	"sync"
)

// ScriptedGenerator returns canned responses in order, repeating the last one.
// It records every request. Useful for tests and offline runs.
type ScriptedGenerator struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []Request
}

// NewScriptedGenerator returns a generator that answers with responses in order.
func NewScriptedGenerator(responses ...string) *ScriptedGenerator {
	return &ScriptedGenerator{responses: responses}
}

// FailWith queues errors returned before any response.
func (s *ScriptedGenerator) FailWith(errs ...error) *ScriptedGenerator {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, errs...)
	return s
}

// Generate records req and returns the next queued error or response.
func (s *ScriptedGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	content := ""
	if len(s.responses) > 0 {
		content = s.responses[0]
		if len(s.responses) > 1 {
			s.responses = s.responses[1:]
		}
	}
	return &Response{Content: content, Model: "scripted", FinishReason: "stop"}, nil
}

// Requests returns a copy of the requests seen so far.
func (s *ScriptedGenerator) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Close is a no-op.
func (s *ScriptedGenerator) Close() error {
	return nil
}
