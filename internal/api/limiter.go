package api

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limited bounds the number of in-flight calls to the wrapped Completer.
// One Limited is shared by the whole process.
type Limited struct {
	next     Completer
	sem      *semaphore.Weighted
	max      int64
	inFlight atomic.Int64
	peak     atomic.Int64
	requests atomic.Int64
}

// NewLimited wraps next so that at most maxConcurrent calls run at once.
func NewLimited(next Completer, maxConcurrent int) *Limited {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Limited{
		next: next,
		sem:  semaphore.NewWeighted(int64(maxConcurrent)),
		max:  int64(maxConcurrent),
	}
}

// Complete waits for a slot, then forwards the request.
// No call is issued once ctx is done.
func (l *Limited) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)

	// Acquire may succeed on an already cancelled context.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := l.inFlight.Add(1)
	defer l.inFlight.Add(-1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}

	resp, err := l.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := checkCount(req, resp); err != nil {
		return nil, err
	}
	l.requests.Add(1)
	return resp, nil
}

// InFlight returns the number of calls currently running.
func (l *Limited) InFlight() int {
	return int(l.inFlight.Load())
}

// Peak returns the highest number of simultaneous calls observed.
func (l *Limited) Peak() int {
	return int(l.peak.Load())
}

// Requests returns the number of successful calls.
func (l *Limited) Requests() int {
	return int(l.requests.Load())
}

// Capacity returns the configured concurrency bound.
func (l *Limited) Capacity() int {
	return int(l.max)
}
