// Package decompose expands a goal into a tree of ever more concrete steps.
//
// Each node asks the backend for several candidate decompositions, merges
// them with cached ones, picks the best through a Chooser, and recurses into
// the resulting children until the configured depth is reached.
package decompose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/plana/internal/api"
	"github.com/ShayCichocki/plana/internal/cache"
	"github.com/ShayCichocki/plana/internal/examples"
	"github.com/ShayCichocki/plana/internal/plan"
	"github.com/ShayCichocki/plana/pkg/models"
)

// Dependencies are the optional collaborators of an Expander.
// Nil stores disable the feature they back.
type Dependencies struct {
	Cache    *cache.Store
	Examples *examples.Store
	Grounder Grounder
	// Chooser defaults to a BackendChooser.
	Chooser Chooser
	Logger  *DebugLogger
	// Output receives prompts and results when the display settings ask for them.
	Output io.Writer
	// OnQuit runs once, before the expansion unwinds, when the user quits.
	OnQuit func(t *plan.Tree) error
}

// Expander drives the expansion of plan trees.
type Expander struct {
	client   api.Completer
	settings *LiveConfig
	cache    *cache.Store
	examples *examples.Store
	grounder Grounder
	chooser  Chooser
	logger   *DebugLogger
	out      io.Writer
	onQuit   func(t *plan.Tree) error

	quitOnce sync.Once
	outMu    sync.Mutex
	requests atomic.Int64
}

// New creates an Expander. client should be shared process-wide so that its
// concurrency limit applies to every request.
func New(client api.Completer, settings *LiveConfig, deps Dependencies) *Expander {
	e := &Expander{
		client:   client,
		settings: settings,
		cache:    deps.Cache,
		examples: deps.Examples,
		grounder: deps.Grounder,
		chooser:  deps.Chooser,
		logger:   deps.Logger,
		out:      deps.Output,
		onQuit:   deps.OnQuit,
	}
	if e.chooser == nil {
		e.chooser = NewBackendChooser(e.logger)
	}
	if e.out == nil {
		e.out = io.Discard
	}
	return e
}

// Requests returns the number of completed backend requests, ranking included.
func (e *Expander) Requests() int {
	return int(e.requests.Load())
}

// Expand expands t from its root. Nodes already DONE or FINAL are skipped,
// so a tree loaded from a dump resumes where it stopped.
//
// Backend errors abort the whole expansion. ErrQuit is returned after
// OnQuit has run.
func (e *Expander) Expand(ctx context.Context, t *plan.Tree) error {
	e.logger.Log("expand %q", t.Description(t.Root()))
	return e.expandNode(ctx, t, t.Root())
}

func (e *Expander) expandNode(ctx context.Context, t *plan.Tree, id plan.NodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.State(id).Terminal() {
		return nil
	}

	o := e.settings.options()
	if t.Level(id) > o.maxDepth {
		t.SetState(id, models.NodeStateFinal)
		return nil
	}

	if len(t.Children(id)) > 0 {
		if o.asList {
			return e.expandAsList(ctx, t, id)
		}
		return e.expandChildren(ctx, t, id, t.Children(id), o)
	}
	return e.expandOneByOne(ctx, t, id)
}

// expandOneByOne requests candidates for id alone.
func (e *Expander) expandOneByOne(ctx context.Context, t *plan.Tree, id plan.NodeID) error {
	o := e.settings.options()
	desc := t.Description(id)

	t.SetState(id, models.NodeStateProcessing)
	if o.useCache && e.cache != nil {
		t.AppendCandidates(id, e.cache.GetTaskLists(desc)...)
	}

	t.SetState(id, models.NodeStateRequestSubmitted)
	prompt := expansionPrompt(t, id, o.subtaskCount)
	completions, err := e.complete(ctx, prompt, desc, o.candidateCount, o.temperature, o.maxTokens, o)
	if err != nil {
		return fmt.Errorf("expand %q: %w", desc, err)
	}
	t.SetState(id, models.NodeStateResponseReceived)
	for _, c := range completions {
		if tl := models.ParseTaskList(c); usable(tl) {
			t.AppendCandidates(id, tl)
		}
	}

	t.SetState(id, models.NodeStateProcessing)
	best, err := e.resolve(ctx, t, id, o, false)
	if err != nil {
		return err
	}
	if best == nil {
		e.logger.Log("%q stays a leaf", desc)
		t.SetState(id, models.NodeStateDone)
		return nil
	}

	kids, err := t.AddChildren(id, best)
	if err != nil {
		return err
	}
	e.logger.Log("%q expanded into %d steps", desc, len(kids))

	if o.asList {
		return e.expandAsList(ctx, t, id)
	}
	return e.expandChildren(ctx, t, id, kids, o)
}

// expandChildren recurses into kids and then marks id DONE.
func (e *Expander) expandChildren(ctx context.Context, t *plan.Tree, id plan.NodeID, kids []plan.NodeID, o options) error {
	err := e.fanOut(ctx, kids, o.parallel, func(ctx context.Context, kid plan.NodeID) error {
		return e.expandNode(ctx, t, kid)
	})
	if err != nil {
		return err
	}
	t.SetState(id, models.NodeStateDone)
	return nil
}

// expandAsList requests subtasks for all of id's children in one prompt,
// then resolves and recurses into each child.
func (e *Expander) expandAsList(ctx context.Context, t *plan.Tree, id plan.NodeID) error {
	o := e.settings.options()
	t.SetState(id, models.NodeStateProcessing)

	kids := t.Children(id)
	var pending, expanded []plan.NodeID
	for _, kid := range kids {
		switch {
		case t.State(kid).Terminal():
		case t.Level(kid) > o.maxDepth:
			t.SetState(kid, models.NodeStateFinal)
		case len(t.Children(kid)) > 0:
			expanded = append(expanded, kid)
		default:
			pending = append(pending, kid)
		}
	}

	if len(pending) > 0 {
		if err := e.requestList(ctx, t, id, kids, pending, o); err != nil {
			return err
		}
	}

	err := e.fanOut(ctx, append(pending, expanded...), o.parallel, func(ctx context.Context, kid plan.NodeID) error {
		if len(t.Children(kid)) == 0 {
			t.SetState(kid, models.NodeStateProcessing)
			best, err := e.resolve(ctx, t, kid, e.settings.options(), true)
			if err != nil {
				return err
			}
			if best == nil {
				t.SetState(kid, models.NodeStateDone)
				return nil
			}
			if _, err := t.AddChildren(kid, best); err != nil {
				return err
			}
		}
		return e.expandNode(ctx, t, kid)
	})
	if err != nil {
		return err
	}
	t.SetState(id, models.NodeStateDone)
	return nil
}

// requestList seeds pending children from the cache and distributes the
// subtasks of one combined completion over them.
func (e *Expander) requestList(ctx context.Context, t *plan.Tree, id plan.NodeID, kids, pending []plan.NodeID, o options) error {
	wanted := make(map[plan.NodeID]bool, len(pending))
	for _, kid := range pending {
		wanted[kid] = true
		if o.useCache && e.cache != nil {
			t.AppendCandidates(kid, e.cache.GetTaskLists(t.Description(kid))...)
		}
	}

	descs := make([]string, len(kids))
	for i, kid := range kids {
		descs[i] = t.Description(kid)
	}

	t.SetState(id, models.NodeStateRequestSubmitted)
	prompt := listPrompt(t, id, o.subtaskCount)
	completions, err := e.complete(ctx, prompt, t.NumberedChildren(id), o.candidateCount, o.temperature, o.maxTokens, o)
	if err != nil {
		return fmt.Errorf("expand %q as a list: %w", t.Description(id), err)
	}
	t.SetState(id, models.NodeStateResponseReceived)

	for _, c := range completions {
		for idx, tl := range ParseListResponse(c, descs) {
			if kid := kids[idx]; wanted[kid] {
				t.AppendCandidates(kid, tl)
			}
		}
	}
	t.SetState(id, models.NodeStateProcessing)
	return nil
}

// resolve deduplicates id's candidates and asks the chooser for the best.
// A nil result means id stays a leaf.
// Ranking works on copies that replace the node's candidates once the
// choice is made.
func (e *Expander) resolve(ctx context.Context, t *plan.Tree, id plan.NodeID, o options, offerStop bool) (*models.TaskList, error) {
	cands := t.DedupCandidates(id)
	if len(cands) == 0 {
		return nil, nil
	}
	if so, ok := e.chooser.(stopOfferer); offerStop || (ok && so.OffersStop()) {
		t.AddDoNotExpandOption(id)
		cands = t.Candidates(id)
	}

	var best *models.TaskList
	if len(cands) == 1 {
		best = cands[0]
		best.Rank = 0
		t.SetCandidates(id, cands)
	} else {
		var err error
		best, err = e.chooser.Choose(ctx, Choice{
			Tree:       t,
			Node:       id,
			Candidates: cands,
			Rank:       e.ranker(t, id, cands, o),
		})
		t.SetCandidates(id, cands)
		if err != nil {
			if errors.Is(err, ErrQuit) {
				e.quit(t)
			}
			return nil, err
		}
	}

	if best == nil || best.DoNotExpand {
		return nil, nil
	}
	return best, nil
}

// ranker returns the Rank function for a Choice on id.
func (e *Expander) ranker(t *plan.Tree, id plan.NodeID, cands []*models.TaskList, o options) func(ctx context.Context) (int, error) {
	return func(ctx context.Context) (int, error) {
		position := t.DescribeAncestryAndSiblings(id, examples.PositionPlaceholder)
		var prompt string
		if o.useExamples && e.examples != nil {
			prompt = e.examples.RankingPrompt(cands, position)
		} else {
			prompt = examples.RankingPrompt(nil, cands, position)
		}

		completions, err := e.complete(ctx, prompt, "", 1, 0, o.maxTokens, o)
		if err != nil {
			return -1, fmt.Errorf("rank options for %q: %w", t.Description(id), err)
		}
		best := examples.ParseRanking(completions[0], cands)
		e.logger.Log("ranked %d options for %q, best %d", len(cands), t.Description(id), best+1)
		return best, nil
	}
}

// complete sends one logical request. groundKey selects grounding documents;
// an empty key sends the prompt as is.
func (e *Expander) complete(ctx context.Context, prompt, groundKey string, n int, temperature float64, maxTokens int, o options) ([]string, error) {
	if o.useGrounding && groundKey != "" {
		grounded, docs, err := groundPrompt(e.grounder, prompt, groundKey, o.groundingWords, o.groundingDocs)
		if err != nil {
			e.logger.Log("grounding failed: %v", err)
		} else {
			prompt = grounded
			if o.showGrounding && len(docs) > 0 {
				e.show(color.FgMagenta, "GROUNDING", strings.Join(docs, "\n---\n"))
			}
		}
	}
	if o.showPrompts {
		e.show(color.FgYellow, "PROMPT", prompt)
	}

	resp, err := e.client.Complete(ctx, api.Request{
		Prompt:         prompt,
		MaxTokens:      maxTokens,
		Temperature:    temperature,
		CandidateCount: n,
	})
	if err != nil {
		e.logger.Log("request failed: %v", err)
		return nil, err
	}
	e.requests.Add(1)

	if o.showResults {
		for i, c := range resp.Completions {
			e.show(color.FgGreen, fmt.Sprintf("RESULT %d", i+1), c)
		}
	}
	return resp.Completions, nil
}

// fanOut runs fn for each id, concurrently when parallel is set.
// The first error cancels the rest.
func (e *Expander) fanOut(ctx context.Context, ids []plan.NodeID, parallel bool, fn func(ctx context.Context, id plan.NodeID) error) error {
	if !parallel {
		for _, id := range ids {
			if err := fn(ctx, id); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error { return fn(gctx, id) })
	}
	return g.Wait()
}

func (e *Expander) quit(t *plan.Tree) {
	e.quitOnce.Do(func() {
		e.logger.Log("quit requested")
		if e.onQuit == nil {
			return
		}
		if err := e.onQuit(t); err != nil {
			e.logger.Log("save on quit failed: %v", err)
		}
	})
}

func (e *Expander) show(attr color.Attribute, title, body string) {
	e.outMu.Lock()
	defer e.outMu.Unlock()
	color.New(attr, color.Bold).Fprintf(e.out, "---- %s ----\n", title)
	fmt.Fprintln(e.out, strings.TrimRight(body, "\n"))
}

// PostProcess asks the backend to remove equivalent steps from the rendered
// plan and returns the revised text.
func (e *Expander) PostProcess(ctx context.Context, t *plan.Tree) (string, error) {
	o := e.settings.options()
	prompt := postProcessPrompt(t.RenderTree(t.Root(), false))
	completions, err := e.complete(ctx, prompt, "", 1, o.temperature, postProcessMaxTokens, o)
	if err != nil {
		return "", fmt.Errorf("post-process %q: %w", t.Description(t.Root()), err)
	}
	return completions[0], nil
}

// usable reports whether a parsed completion can serve as a candidate.
func usable(tl *models.TaskList) bool {
	return tl.DoNotExpand || len(tl.TaskDescriptions) > 0
}

// RunData summarises a run as "Runtime: m:ss, requests: N".
func RunData(elapsed time.Duration, requests int) string {
	secs := int(elapsed.Round(time.Second).Seconds())
	return fmt.Sprintf("Runtime: %d:%02d, requests: %d", secs/60, secs%60, requests)
}
