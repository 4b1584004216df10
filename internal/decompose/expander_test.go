package decompose

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/plana/internal/api"
	"github.com/ShayCichocki/plana/internal/cache"
	"github.com/ShayCichocki/plana/internal/config"
	"github.com/ShayCichocki/plana/internal/examples"
	"github.com/ShayCichocki/plana/internal/plan"
	"github.com/ShayCichocki/plana/pkg/models"
)

// scripted answers every completion slot through respond and records prompts.
type scripted struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string, slot int) string
	delay   time.Duration
}

func (s *scripted) Complete(ctx context.Context, req api.Request) (*api.Response, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, req.Prompt)
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	out := make([]string, req.CandidateCount)
	for i := range out {
		out[i] = s.respond(req.Prompt, i)
	}
	return &api.Response{Completions: out}, nil
}

func (s *scripted) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

type chooserFunc func(ctx context.Context, c Choice) (*models.TaskList, error)

func (f chooserFunc) Choose(ctx context.Context, c Choice) (*models.TaskList, error) {
	return f(ctx, c)
}

func isRanking(prompt string) bool {
	return strings.Contains(prompt, "<QUESTION>")
}

func testSettings(mutate func(c *config.Config)) *LiveConfig {
	cfg := config.Default()
	cfg.Expand.MaxDepth = 1
	cfg.Expand.CandidateCount = 2
	cfg.Expand.UseCache = false
	cfg.Expand.UseExamples = false
	cfg.Expand.MaxConcurrentRequests = 1
	if mutate != nil {
		mutate(cfg)
	}
	return NewLiveConfig(cfg)
}

func house(prompt string, slot int) string {
	switch {
	case isRanking(prompt):
		return "<OPTION 1>\n- Buy land\n" + examples.ReasoningHeader + "\n" +
			"<OPTION 1> is the best option because it starts with the land\n" +
			"<OPTION 2> is the worst option because it skips the land\n"
	case strings.HasPrefix(prompt, "Your job is to provide instructions to build a house"):
		if slot == 0 {
			return "1. Buy land\n2. Build walls"
		}
		return "1. Hire a builder"
	case strings.Contains(prompt, "Provide a list of short actions to Buy land"):
		return "1. Find a lot\n2. Sign the deed"
	case strings.Contains(prompt, "Provide a list of short actions to Build walls"):
		return "1. Lay bricks"
	}
	return ""
}

func findNode(t *plan.Tree, desc string) (plan.Node, bool) {
	var found plan.Node
	ok := false
	t.Walk(t.Root(), func(n plan.Node) {
		if !ok && n.Description == desc {
			found, ok = n, true
		}
	})
	return found, ok
}

func TestExpand_BuildAHouse(t *testing.T) {
	backend := &scripted{respond: house}
	client := api.NewLimited(backend, 1)
	e := New(client, testSettings(nil), Dependencies{})

	tree := plan.New("build a house")
	require.NoError(t, e.Expand(context.Background(), tree))

	want := "- build a house\n" +
		"  - Buy land\n" +
		"    - Find a lot\n" +
		"    - Sign the deed\n" +
		"  - Build walls\n" +
		"    - Lay bricks\n"
	assert.Equal(t, want, tree.RenderTree(tree.Root(), false))

	assert.Equal(t, models.NodeStateDone, tree.State(tree.Root()))
	for _, desc := range []string{"Find a lot", "Sign the deed", "Lay bricks"} {
		n, ok := findNode(tree, desc)
		require.True(t, ok, desc)
		assert.Equal(t, models.NodeStateFinal, n.State, desc)
	}
	land, _ := findNode(tree, "Buy land")
	assert.Equal(t, models.NodeStateDone, land.State)

	// first prompt, ranking, one request per level-1 child
	assert.Equal(t, 4, e.Requests())
	assert.Equal(t, 4, client.Requests())

	root := tree.Candidates(tree.Root())
	require.Len(t, root, 2)
	assert.Equal(t, 0, root[0].Rank)
	assert.Equal(t, "it starts with the land", strings.TrimPrefix(root[0].Reason, "is the best option because "))
}

func TestExpand_InteriorPromptShowsWholeTree(t *testing.T) {
	backend := &scripted{respond: house}
	e := New(api.NewLimited(backend, 1), testSettings(nil), Dependencies{})
	require.NoError(t, e.Expand(context.Background(), plan.New("build a house")))

	var interior string
	for _, p := range backend.sent() {
		if strings.Contains(p, "short actions to Build walls") {
			interior = p
		}
	}
	require.NotEmpty(t, interior)
	assert.True(t, strings.HasPrefix(interior, "- build a house\n  - Buy land\n"), interior)
	assert.True(t, strings.HasSuffix(interior, "\nProvide a list of short actions to Build walls\n\n"), interior)
}

func TestExpand_DepthZeroLeavesChildrenFinal(t *testing.T) {
	backend := &scripted{respond: func(prompt string, slot int) string {
		return "1. Buy land\n2. Build walls"
	}}
	e := New(api.NewLimited(backend, 1), testSettings(func(c *config.Config) {
		c.Expand.MaxDepth = 0
	}), Dependencies{})

	tree := plan.New("build a house")
	require.NoError(t, e.Expand(context.Background(), tree))

	counts := tree.CountStates(tree.Root())
	assert.Equal(t, 2, counts[models.NodeStateFinal])
	assert.Equal(t, 1, counts[models.NodeStateDone])
	assert.Equal(t, 1, e.Requests())
}

func TestExpand_ConcurrencyBounded(t *testing.T) {
	backend := &scripted{
		delay: 2 * time.Millisecond,
		respond: func(prompt string, slot int) string {
			return "1. one\n2. two\n3. three"
		},
	}
	client := api.NewLimited(backend, 2)
	e := New(client, testSettings(func(c *config.Config) {
		c.Expand.MaxDepth = 2
		c.Expand.CandidateCount = 1
		c.Expand.MaxConcurrentRequests = 2
	}), Dependencies{})

	tree := plan.New("throw a party")
	require.NoError(t, e.Expand(context.Background(), tree))

	assert.LessOrEqual(t, client.Peak(), 2)
	assert.Equal(t, 13, client.Requests())
	assert.Equal(t, 40, tree.Len())

	counts := tree.CountStates(tree.Root())
	assert.Equal(t, 27, counts[models.NodeStateFinal])
	assert.Equal(t, 13, counts[models.NodeStateDone])
}

func TestExpand_BackendErrorIsFatal(t *testing.T) {
	failing := api.CompleterFunc(func(ctx context.Context, req api.Request) (*api.Response, error) {
		return nil, &api.BackendError{Code: "HTTP 500", Message: "overloaded"}
	})
	e := New(api.NewLimited(failing, 1), testSettings(nil), Dependencies{})

	tree := plan.New("build a house")
	err := e.Expand(context.Background(), tree)

	var be *api.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "HTTP 500: overloaded", be.Error())
	assert.Equal(t, models.NodeStateRequestSubmitted, tree.State(tree.Root()))
	assert.Empty(t, tree.Children(tree.Root()))
}

func TestExpand_QuitSavesThenStops(t *testing.T) {
	backend := &scripted{respond: house}
	var saved atomic.Int32
	var snapshot string
	e := New(api.NewLimited(backend, 1), testSettings(nil), Dependencies{
		Chooser: chooserFunc(func(ctx context.Context, c Choice) (*models.TaskList, error) {
			return nil, ErrQuit
		}),
		OnQuit: func(t *plan.Tree) error {
			saved.Add(1)
			snapshot = t.RenderTree(t.Root(), true)
			return nil
		},
	})

	tree := plan.New("build a house")
	err := e.Expand(context.Background(), tree)
	assert.ErrorIs(t, err, ErrQuit)
	assert.Equal(t, int32(1), saved.Load())
	assert.Equal(t, "- build a house (Processing)\n", snapshot)
	// the chooser was never handed a Rank call, so only the first prompt went out
	assert.Equal(t, 1, e.Requests())
}

func TestExpand_QuitWhileSiblingRanks(t *testing.T) {
	backend := &scripted{respond: func(prompt string, slot int) string {
		switch {
		case isRanking(prompt):
			return "<OPTION 1> is the best option because it is first"
		case strings.HasPrefix(prompt, "Your job is"):
			return house(prompt, slot)
		}
		return fmt.Sprintf("1. step %d", slot)
	}}

	started := make(chan struct{})
	var saved atomic.Int32
	e := New(api.NewLimited(backend, 2), testSettings(func(c *config.Config) {
		c.Expand.MaxConcurrentRequests = 2
	}), Dependencies{
		Chooser: chooserFunc(func(ctx context.Context, c Choice) (*models.TaskList, error) {
			switch c.Tree.Description(c.Node) {
			case "Build walls":
				close(started)
				for i := 0; i < 200; i++ {
					examples.ParseRanking("<OPTION 2> is the best option because it is second\n"+
						"<OPTION 1> is the worst option because it is first", c.Candidates)
				}
				return c.Candidates[1], nil
			case "Buy land":
				<-started
				return nil, ErrQuit
			}
			return c.Candidates[0], nil
		}),
		OnQuit: func(t *plan.Tree) error {
			saved.Add(1)
			for i := 0; i < 200; i++ {
				if _, err := json.Marshal(t); err != nil {
					return err
				}
			}
			return nil
		},
	})

	tree := plan.New("build a house")
	err := e.Expand(context.Background(), tree)
	assert.ErrorIs(t, err, ErrQuit)
	assert.Equal(t, int32(1), saved.Load())

	walls, ok := findNode(tree, "Build walls")
	require.True(t, ok)
	require.Len(t, walls.Candidates, 2)
	assert.Equal(t, 0, walls.Candidates[1].Rank)
	assert.Equal(t, "it is second", strings.TrimPrefix(walls.Candidates[1].Reason, "is the best option because "))
}

func TestExpand_HumanPickCachedWithoutUseCache(t *testing.T) {
	store := cache.Open(t.TempDir() + "/cache.yaml")
	require.NoError(t, store.AddTaskList("build a house", models.NewTaskList([]string{"Hire a builder"})))

	out := &bytes.Buffer{}
	backend := &scripted{respond: func(prompt string, slot int) string { return "1. Buy land" }}
	e := New(api.NewLimited(backend, 1), testSettings(func(c *config.Config) {
		c.Expand.MaxDepth = 0
	}), Dependencies{
		Cache:   store,
		Chooser: NewHumanChooser(HumanConfig{In: strings.NewReader("2\n"), Out: out, Cache: store}),
	})

	tree := plan.New("build a house")
	require.NoError(t, e.Expand(context.Background(), tree))

	assert.Equal(t, "- build a house\n  - Buy land\n", tree.RenderTree(tree.Root(), false))
	assert.NotContains(t, out.String(), "Hire a builder", "cache must not be consulted")

	cached := store.GetTaskLists("build a house")
	require.Len(t, cached, 2)
	var descs [][]string
	for _, c := range cached {
		descs = append(descs, c.TaskDescriptions)
	}
	assert.Contains(t, descs, []string{"Buy land"})
}

func TestExpand_ChooserNoneLeavesLeaf(t *testing.T) {
	backend := &scripted{respond: house}
	e := New(api.NewLimited(backend, 1), testSettings(nil), Dependencies{
		Chooser: chooserFunc(func(ctx context.Context, c Choice) (*models.TaskList, error) {
			return nil, nil
		}),
	})

	tree := plan.New("build a house")
	require.NoError(t, e.Expand(context.Background(), tree))
	assert.Equal(t, 1, tree.Len())
	assert.Equal(t, models.NodeStateDone, tree.State(tree.Root()))
}

func TestExpand_UsesCachedCandidates(t *testing.T) {
	store := cache.Open(t.TempDir() + "/cache.yaml")
	require.NoError(t, store.AddTaskList("build a house", models.NewTaskList([]string{"Hire a builder"})))

	var offered []*models.TaskList
	backend := &scripted{respond: func(prompt string, slot int) string { return "1. Buy land" }}
	e := New(api.NewLimited(backend, 1), testSettings(func(c *config.Config) {
		c.Expand.UseCache = true
		c.Expand.MaxDepth = 0
	}), Dependencies{
		Cache: store,
		Chooser: chooserFunc(func(ctx context.Context, c Choice) (*models.TaskList, error) {
			offered = c.Candidates
			return c.Candidates[0], nil
		}),
	})

	tree := plan.New("build a house")
	require.NoError(t, e.Expand(context.Background(), tree))

	require.Len(t, offered, 2)
	assert.True(t, offered[0].FromCache)
	assert.Equal(t, 1, offered[0].SelectionCount)
	assert.Equal(t, []string{"Buy land"}, offered[1].TaskDescriptions)
	assert.Equal(t, "- build a house\n  - Hire a builder\n", tree.RenderTree(tree.Root(), false))
}

func TestExpand_AsAList(t *testing.T) {
	backend := &scripted{respond: func(prompt string, slot int) string {
		switch {
		case isRanking(prompt):
			return "<OPTION 2> is the best option because it has steps\n<OPTION 1> is the worst option because it stops"
		case strings.HasPrefix(prompt, "Your job is"):
			return "1. Buy land\n2. Build walls"
		case strings.HasPrefix(prompt, "Below are instructions to build a house"):
			return "1. Buy land\n - Find a lot\n - Sign the deed\n2. Build walls\n - Lay bricks"
		}
		return ""
	}}
	e := New(api.NewLimited(backend, 1), testSettings(func(c *config.Config) {
		c.Expand.Mode = config.ModeAsAList
		c.Expand.CandidateCount = 1
	}), Dependencies{})

	tree := plan.New("build a house")
	require.NoError(t, e.Expand(context.Background(), tree))

	want := "- build a house\n" +
		"  - Buy land\n" +
		"    - Find a lot\n" +
		"    - Sign the deed\n" +
		"  - Build walls\n" +
		"    - Lay bricks\n"
	assert.Equal(t, want, tree.RenderTree(tree.Root(), false))

	// first prompt, one list prompt, one ranking per child
	assert.Equal(t, 4, e.Requests())

	land, _ := findNode(tree, "Buy land")
	require.Len(t, land.Candidates, 2)
	assert.True(t, land.Candidates[0].DoNotExpand)
	assert.Equal(t, models.NodeStateDone, land.State)

	lot, _ := findNode(tree, "Find a lot")
	assert.Equal(t, models.NodeStateFinal, lot.State)
}

func TestExpand_AsAListSentinelStops(t *testing.T) {
	backend := &scripted{respond: func(prompt string, slot int) string {
		switch {
		case isRanking(prompt):
			return "<OPTION 1> is the best option because it is simple enough"
		case strings.HasPrefix(prompt, "Your job is"):
			return "1. Buy land"
		}
		return "1. Buy land\n - Find a lot"
	}}
	e := New(api.NewLimited(backend, 1), testSettings(func(c *config.Config) {
		c.Expand.Mode = config.ModeAsAList
		c.Expand.CandidateCount = 1
	}), Dependencies{})

	tree := plan.New("build a house")
	require.NoError(t, e.Expand(context.Background(), tree))
	assert.Equal(t, "- build a house\n  - Buy land\n", tree.RenderTree(tree.Root(), false))
	land, _ := findNode(tree, "Buy land")
	assert.Equal(t, models.NodeStateDone, land.State)
}

func TestExpand_ResumesLoadedTree(t *testing.T) {
	tree := plan.New("build a house")
	kids, err := tree.AddChildren(tree.Root(), models.NewTaskList([]string{"Buy land", "Build walls"}))
	require.NoError(t, err)
	tree.SetState(kids[0], models.NodeStateDone)

	backend := &scripted{respond: house}
	e := New(api.NewLimited(backend, 1), testSettings(nil), Dependencies{})
	require.NoError(t, e.Expand(context.Background(), tree))

	// only Build walls still needed work
	assert.Equal(t, 1, e.Requests())
	assert.Empty(t, tree.Children(kids[0]))
	assert.Len(t, tree.Children(kids[1]), 1)
}

type fakeGrounder struct {
	query string
	docs  []string
	err   error
}

func (g *fakeGrounder) GetRelatedDocuments(query string, maxResults int) ([]string, error) {
	g.query = query
	return g.docs, g.err
}

func TestExpand_GroundingPrefixesPrompt(t *testing.T) {
	backend := &scripted{respond: func(prompt string, slot int) string { return "" }}
	g := &fakeGrounder{docs: []string{"houses need foundations", "walls need bricks"}}
	e := New(api.NewLimited(backend, 1), testSettings(func(c *config.Config) {
		c.Expand.UseGrounding = true
		c.Expand.CandidateCount = 1
	}), Dependencies{Grounder: g})

	require.NoError(t, e.Expand(context.Background(), plan.New("build a house")))

	sent := backend.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "build a house", g.query)
	assert.True(t, strings.HasPrefix(sent[0], "houses need foundations walls need bricks\nYour job is"), sent[0])
}

func TestExpand_GroundingFailureIsIgnored(t *testing.T) {
	backend := &scripted{respond: func(prompt string, slot int) string { return "" }}
	g := &fakeGrounder{err: errors.New("index closed")}
	e := New(api.NewLimited(backend, 1), testSettings(func(c *config.Config) {
		c.Expand.UseGrounding = true
		c.Expand.CandidateCount = 1
	}), Dependencies{Grounder: g})

	require.NoError(t, e.Expand(context.Background(), plan.New("build a house")))
	assert.True(t, strings.HasPrefix(backend.sent()[0], "Your job is"))
}

func TestPostProcess(t *testing.T) {
	backend := &scripted{respond: func(prompt string, slot int) string { return "- build a house\n  - Buy land\n" }}
	e := New(api.NewLimited(backend, 1), testSettings(nil), Dependencies{})

	tree := plan.New("build a house")
	_, err := tree.AddChildren(tree.Root(), models.NewTaskList([]string{"Buy land", "Purchase land"}))
	require.NoError(t, err)

	out, err := e.PostProcess(context.Background(), tree)
	require.NoError(t, err)
	assert.Equal(t, "- build a house\n  - Buy land\n", out)
	assert.Equal(t,
		"Revise the task list below removing any steps that are equivalent\n\nSTART LIST\n"+
			"- build a house\n  - Buy land\n  - Purchase land\n\nEND LIST",
		backend.sent()[0])
}

func TestRunData(t *testing.T) {
	assert.Equal(t, "Runtime: 1:15, requests: 4", RunData(75*time.Second, 4))
	assert.Equal(t, "Runtime: 0:00, requests: 0", RunData(0, 0))
}
