package decompose

import (
	"context"
	"errors"

	"github.com/ShayCichocki/plana/internal/plan"
	"github.com/ShayCichocki/plana/pkg/models"
)

// ErrQuit is returned when the user asks to save and stop.
var ErrQuit = errors.New("expansion stopped by user")

// Choice is one best-candidate decision.
type Choice struct {
	Tree *plan.Tree
	Node plan.NodeID
	// Candidates are the node's deduplicated candidates, in display order.
	Candidates []*models.TaskList
	// Rank asks the backend to rank Candidates. It sets Rank and Reason on
	// each and returns the index of the best, or -1 if nothing was ranked.
	Rank func(ctx context.Context) (int, error)
}

// Chooser picks the candidate to materialise. A nil result means the node
// stays a leaf.
type Chooser interface {
	Choose(ctx context.Context, c Choice) (*models.TaskList, error)
}

// stopOfferer is implemented by choosers that want the doNotExpand option
// listed even in one-by-one mode.
type stopOfferer interface {
	OffersStop() bool
}

// BackendChooser accepts the backend's top-ranked candidate.
type BackendChooser struct {
	logger *DebugLogger
}

// NewBackendChooser creates a chooser that trusts the backend ranking.
func NewBackendChooser(logger *DebugLogger) *BackendChooser {
	return &BackendChooser{logger: logger}
}

// Choose ranks the candidates and returns the best. When the ranking cannot
// be parsed it falls back to the first candidate that is not the sentinel.
func (b *BackendChooser) Choose(ctx context.Context, c Choice) (*models.TaskList, error) {
	best, err := c.Rank(ctx)
	if err != nil {
		return nil, err
	}
	if best < 0 {
		b.logger.Log("ranking for %q unparsed, using first option", c.Tree.Description(c.Node))
		for _, cand := range c.Candidates {
			if !cand.DoNotExpand {
				return cand, nil
			}
		}
		return nil, nil
	}
	return c.Candidates[best], nil
}
