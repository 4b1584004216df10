package api

import (
	"context"
	"errors"
	"fmt"
)

// ErrCandidateCount is returned when a backend yields the wrong number of completions.
var ErrCandidateCount = errors.New("completion count does not match request")

// Request is one call to the text-generation backend.
type Request struct {
	// Prompt is the full prompt text.
	Prompt string
	// MaxTokens bounds the length of each completion.
	MaxTokens int
	// Temperature is the sampling temperature in 0..1.
	Temperature float64
	// CandidateCount is the number of independent completions wanted (>= 1).
	CandidateCount int
}

// Validate checks the request shape.
func (r Request) Validate() error {
	if r.CandidateCount < 1 {
		return fmt.Errorf("candidate count must be >= 1, got %d", r.CandidateCount)
	}
	if r.Temperature < 0 || r.Temperature > 1 {
		return fmt.Errorf("temperature must be in 0..1, got %g", r.Temperature)
	}
	if r.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be >= 1, got %d", r.MaxTokens)
	}
	return nil
}

// Response holds the completions of a successful request, in order.
type Response struct {
	Completions []string
}

// BackendError carries the backend's failure verbatim.
type BackendError struct {
	Code    string
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Completer is the narrow gateway the planner uses to reach the backend.
// A failed call returns a *BackendError (or the context's error) and no response.
// Implementations do not retry.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (*Response, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// checkCount enforces len(Completions) == CandidateCount.
func checkCount(req Request, resp *Response) error {
	if resp == nil || len(resp.Completions) != req.CandidateCount {
		got := 0
		if resp != nil {
			got = len(resp.Completions)
		}
		return fmt.Errorf("%w: want %d, got %d", ErrCandidateCount, req.CandidateCount, got)
	}
	return nil
}
