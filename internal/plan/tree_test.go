package plan

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/plana/pkg/models"
)

// buildHouse returns:
//
//	- build a house
//	  - dig foundation
//	    - rent excavator
//	    - dig hole
//	  - place walls
//	  - add roof
func buildHouse(t *testing.T) (*Tree, map[string]NodeID) {
	t.Helper()
	tree := New("build a house")
	ids := map[string]NodeID{"root": tree.Root()}

	kids, err := tree.AddChildren(tree.Root(), models.NewTaskList([]string{"dig foundation", "place walls", "add roof"}))
	require.NoError(t, err)
	ids["dig"], ids["walls"], ids["roof"] = kids[0], kids[1], kids[2]

	grand, err := tree.AddChildren(ids["dig"], models.NewTaskList([]string{"rent excavator", "dig hole"}))
	require.NoError(t, err)
	ids["rent"], ids["hole"] = grand[0], grand[1]
	return tree, ids
}

func TestAddChildren(t *testing.T) {
	tree, ids := buildHouse(t)

	assert.Equal(t, 6, tree.Len())
	assert.Equal(t, []NodeID{ids["dig"], ids["walls"], ids["roof"]}, tree.Children(tree.Root()))
	assert.Equal(t, 1, tree.Level(ids["walls"]))
	assert.Equal(t, 2, tree.Level(ids["hole"]))

	parent, ok := tree.Parent(ids["hole"])
	assert.True(t, ok)
	assert.Equal(t, ids["dig"], parent)
	assert.Equal(t, tree.Root(), tree.RootOf(ids["hole"]))

	_, ok = tree.Parent(tree.Root())
	assert.False(t, ok)
}

func TestAddChildren_OnlyOnce(t *testing.T) {
	tree, ids := buildHouse(t)

	_, err := tree.AddChildren(ids["dig"], models.NewTaskList([]string{"other"}))
	assert.ErrorIs(t, err, ErrAlreadyExpanded)
}

func TestAddChildren_SentinelCreatesNothing(t *testing.T) {
	tree := New("build a house")

	kids, err := tree.AddChildren(tree.Root(), models.NewDoNotExpand())
	require.NoError(t, err)
	assert.Empty(t, kids)
	assert.Empty(t, tree.Children(tree.Root()))
}

func TestAddDoNotExpandOption_Idempotent(t *testing.T) {
	tree := New("build a house")
	a := models.NewTaskList([]string{"a"})
	b := models.NewTaskList([]string{"b"})
	tree.SetCandidates(tree.Root(), []*models.TaskList{a, b})

	tree.AddDoNotExpandOption(tree.Root())
	tree.AddDoNotExpandOption(tree.Root())

	cands := tree.Candidates(tree.Root())
	require.Len(t, cands, 3)
	assert.True(t, cands[0].DoNotExpand)
	assert.Equal(t, []string{"a"}, cands[1].TaskDescriptions)
	assert.Equal(t, []string{"b"}, cands[2].TaskDescriptions)
}

func TestAddDoNotExpandOption_MovesToFront(t *testing.T) {
	tree := New("build a house")
	a := models.NewTaskList([]string{"a"})
	stop := models.NewDoNotExpand()
	tree.SetCandidates(tree.Root(), []*models.TaskList{a, stop, models.NewDoNotExpand()})

	tree.AddDoNotExpandOption(tree.Root())

	cands := tree.Candidates(tree.Root())
	require.Len(t, cands, 2)
	assert.True(t, cands[0].DoNotExpand)
	assert.Equal(t, []string{"a"}, cands[1].TaskDescriptions)
}

func TestBestCandidateIndex(t *testing.T) {
	tree := New("build a house")
	a := models.NewTaskList([]string{"a"})
	b := models.NewTaskList([]string{"b"})
	tree.SetCandidates(tree.Root(), []*models.TaskList{a, b})

	assert.Equal(t, -1, tree.BestCandidateIndex(tree.Root()))

	b.Rank = 0
	a.Rank = 1
	assert.Equal(t, 1, tree.BestCandidateIndex(tree.Root()))
}

func TestRenderTree(t *testing.T) {
	tree, ids := buildHouse(t)
	tree.SetState(ids["walls"], models.NodeStateDone)

	want := "- build a house\n" +
		"  - dig foundation\n" +
		"    - rent excavator\n" +
		"    - dig hole\n" +
		"  - place walls\n" +
		"  - add roof\n"
	assert.Equal(t, want, tree.RenderTree(tree.Root(), false))

	withState := tree.RenderTree(ids["walls"], true)
	assert.Equal(t, "  - place walls (Done)\n", withState)
}

func TestDescribeAncestryAndSiblings(t *testing.T) {
	tree, ids := buildHouse(t)

	got := tree.DescribeAncestryAndSiblings(ids["rent"], "<WHICH OPTION IS BEST HERE>")

	want := "- build a house\n" +
		"  - dig foundation\n" +
		"    <WHICH OPTION IS BEST HERE>\n" +
		"    - dig hole\n" +
		"  - place walls\n" +
		"  - add roof\n"
	assert.Equal(t, want, got)
}

func TestDescribeAncestryAndSiblings_Root(t *testing.T) {
	tree, _ := buildHouse(t)
	assert.Equal(t, "?\n", tree.DescribeAncestryAndSiblings(tree.Root(), "?"))
}

func TestDescribeAncestryAndSiblings_LastSibling(t *testing.T) {
	tree, ids := buildHouse(t)

	got := tree.DescribeAncestryAndSiblings(ids["roof"], "HERE")
	assert.Equal(t, "- build a house\n  HERE\n", got)
}

func TestJSONRoundTrip(t *testing.T) {
	tree, ids := buildHouse(t)
	tree.SetState(ids["hole"], models.NodeStateFinal)
	tree.AppendCandidates(ids["dig"], models.NewTaskList([]string{"rent excavator", "dig hole"}))

	data, err := json.Marshal(tree)
	require.NoError(t, err)

	var loaded Tree
	require.NoError(t, json.Unmarshal(data, &loaded))

	assert.Equal(t, tree.RenderTree(tree.Root(), true), loaded.RenderTree(loaded.Root(), true))
	// Loaded ids are assigned pre-order, so look the node up by description.
	var rent NodeID = NoNode
	loaded.Walk(loaded.Root(), func(n Node) {
		if n.Description == "rent excavator" {
			rent = n.ID
		}
	})
	require.NotEqual(t, NoNode, rent)
	assert.Equal(t, tree.DescribeAncestryAndSiblings(ids["rent"], "X"), loaded.DescribeAncestryAndSiblings(rent, "X"))
	assert.Equal(t, 2, loaded.Level(rent))
	assert.Len(t, loaded.Candidates(ids["dig"]), 1)
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	tree, _ := buildHouse(t)

	textPath, err := SaveText(dir, tree, "header")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "build a house.txt"), textPath)

	second, err := SaveText(dir, tree, "header")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "build a house2.txt"), second)

	content, err := os.ReadFile(textPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "    - dig hole\n")

	_, err = SaveDump(dir, tree)
	require.NoError(t, err)

	loaded, err := LoadDump(dir, "build a house")
	require.NoError(t, err)
	assert.Equal(t, tree.Len(), loaded.Len())
}

func TestLoadDump_ResolvesNewestSave(t *testing.T) {
	dir := t.TempDir()
	tree := New("build a house")
	first, err := SaveDump(dir, tree)
	require.NoError(t, err)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(first, old, old))

	_, err = tree.AddChildren(tree.Root(), models.NewTaskList([]string{"Buy land", "Build walls"}))
	require.NoError(t, err)
	second, err := SaveDump(dir, tree)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "build a house2.plan"), second)

	// unrelated plans sharing the prefix are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build a houseboat.plan"), []byte("{}"), 0644))

	assert.Equal(t, second, LatestDump(dir, "build a house"))
	loaded, err := LoadDump(dir, "build a house")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Len())

	byPath, err := LoadDump(dir, first)
	require.NoError(t, err)
	assert.Equal(t, 1, byPath.Len())
}

func TestLatestDump_NoneSaved(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, "build a house.plan"), LatestDump(dir, "build a house"))
}

func TestCandidates_AreCopies(t *testing.T) {
	tree := New("build a house")
	tree.SetCandidates(tree.Root(), []*models.TaskList{models.NewTaskList([]string{"Buy land"})})

	got := tree.Candidates(tree.Root())
	got[0].Rank = 0
	got[0].Reason = "it starts with the land"
	got[0].TaskDescriptions[0] = "Hire a builder"

	n := tree.Node(tree.Root())
	assert.Equal(t, models.Unranked, n.Candidates[0].Rank)
	assert.Empty(t, n.Candidates[0].Reason)
	assert.Equal(t, []string{"Buy land"}, n.Candidates[0].TaskDescriptions)

	n.Candidates[0].Reason = "changed through a snapshot"
	assert.Empty(t, tree.Candidates(tree.Root())[0].Reason)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "a-b-c", SanitizeName("a/b:c"))
	assert.Equal(t, "--unknown--", SanitizeName("  "))
}
