// Package plan provides the plan tree: a goal and the sub-goals discovered for it.
//
// Nodes live in an arena and are addressed by stable NodeIDs. Each node stores
// its parent's id and the ordered ids of its children, so ancestor walks and
// sibling scans never need owning back-pointers.
package plan

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ShayCichocki/plana/pkg/models"
)

// NodeID addresses a node within its Tree.
type NodeID int

// NoNode is the parent id of the root.
const NoNode NodeID = -1

// indentWidth is the number of spaces per tree level in text renderings.
const indentWidth = 2

// ErrAlreadyExpanded is returned when children are added to a node that has some.
var ErrAlreadyExpanded = errors.New("node already has children")

// Node is one goal in the tree.
type Node struct {
	ID          NodeID
	Description string
	Level       int
	State       models.NodeState
	Candidates  []*models.TaskList
	Children    []NodeID
	Parent      NodeID
}

// Tree is an arena of plan nodes rooted at node 0.
// All access goes through Tree methods so sibling expansions can run concurrently.
type Tree struct {
	mu    sync.RWMutex
	nodes []*Node
}

// New creates a tree with a single root node.
func New(description string) *Tree {
	t := &Tree{}
	t.nodes = append(t.nodes, &Node{
		ID:          0,
		Description: description,
		Level:       0,
		State:       models.NodeStateCreated,
		Parent:      NoNode,
	})
	return t
}

// Root returns the id of the root node.
func (t *Tree) Root() NodeID {
	return 0
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// node returns the node for id. Caller must hold the lock.
func (t *Tree) node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		panic(fmt.Sprintf("plan: unknown node id %d", id))
	}
	return t.nodes[id]
}

// Node returns a snapshot of the node. Candidates are deep copies.
func (t *Tree) Node(id NodeID) Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := *t.node(id)
	n.Candidates = cloneLists(n.Candidates)
	n.Children = append([]NodeID(nil), n.Children...)
	return n
}

func cloneLists(lists []*models.TaskList) []*models.TaskList {
	if lists == nil {
		return nil
	}
	out := make([]*models.TaskList, len(lists))
	for i, l := range lists {
		out[i] = l.Clone()
	}
	return out
}

// Description returns the node's goal text.
func (t *Tree) Description(id NodeID) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.node(id).Description
}

// Level returns the node's depth from the root.
func (t *Tree) Level(id NodeID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.node(id).Level
}

// State returns the node's lifecycle state.
func (t *Tree) State(id NodeID) models.NodeState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.node(id).State
}

// SetState updates the node's lifecycle state.
func (t *Tree) SetState(id NodeID, s models.NodeState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.node(id).State = s
}

// Parent returns the node's parent and false for the root.
func (t *Tree) Parent(id NodeID) (NodeID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p := t.node(id).Parent
	return p, p != NoNode
}

// RootOf walks parents up to the root.
func (t *Tree) RootOf(id NodeID) NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for t.node(id).Parent != NoNode {
		id = t.node(id).Parent
	}
	return id
}

// Children returns the ordered child ids.
func (t *Tree) Children(id NodeID) []NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]NodeID(nil), t.node(id).Children...)
}

// Candidates returns deep copies of the node's candidate decompositions.
// Ranking the copies does not touch the tree; store them back with SetCandidates.
func (t *Tree) Candidates(id NodeID) []*models.TaskList {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneLists(t.node(id).Candidates)
}

// SetCandidates replaces the node's candidates. The tree takes ownership of
// lists; callers must not modify them afterwards.
func (t *Tree) SetCandidates(id NodeID, lists []*models.TaskList) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.node(id).Candidates = append([]*models.TaskList(nil), lists...)
}

// AppendCandidates adds candidates after the existing ones.
func (t *Tree) AppendCandidates(id NodeID, lists ...*models.TaskList) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(id)
	n.Candidates = append(n.Candidates, lists...)
}

// DedupCandidates removes duplicate candidates in place and returns copies
// of the result.
func (t *Tree) DedupCandidates(id NodeID) []*models.TaskList {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(id)
	n.Candidates = models.RemoveDuplicates(n.Candidates)
	return cloneLists(n.Candidates)
}

// AddChildren materialises one child per description of the accepted list, in order.
func (t *Tree) AddChildren(id NodeID, accepted *models.TaskList) ([]NodeID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent := t.node(id)
	if len(parent.Children) > 0 {
		return nil, fmt.Errorf("add children to %q: %w", parent.Description, ErrAlreadyExpanded)
	}
	if accepted == nil || accepted.Empty() {
		return nil, nil
	}

	ids := make([]NodeID, 0, len(accepted.TaskDescriptions))
	for _, desc := range accepted.TaskDescriptions {
		child := &Node{
			ID:          NodeID(len(t.nodes)),
			Description: desc,
			Level:       parent.Level + 1,
			State:       models.NodeStateCreated,
			Parent:      id,
		}
		t.nodes = append(t.nodes, child)
		ids = append(ids, child.ID)
	}
	parent.Children = ids
	return append([]NodeID(nil), ids...), nil
}

// AddDoNotExpandOption ensures exactly one doNotExpand candidate exists at index 0.
func (t *Tree) AddDoNotExpandOption(id NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.node(id)
	var sentinel *models.TaskList
	rest := make([]*models.TaskList, 0, len(n.Candidates)+1)
	for _, c := range n.Candidates {
		if c.DoNotExpand {
			if sentinel == nil {
				sentinel = c
			} else {
				sentinel.Merge(c)
			}
			continue
		}
		rest = append(rest, c)
	}
	if sentinel == nil {
		sentinel = models.NewDoNotExpand()
	}
	n.Candidates = append([]*models.TaskList{sentinel}, rest...)
}

// BestCandidateIndex returns the index of the candidate ranked 0, or -1.
func (t *Tree) BestCandidateIndex(id NodeID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i, c := range t.node(id).Candidates {
		if c.Rank == 0 {
			return i
		}
	}
	return -1
}

// Walk visits id and its descendants depth-first, pre-order.
func (t *Tree) Walk(id NodeID, fn func(n Node)) {
	fn(t.Node(id))
	for _, c := range t.Children(id) {
		t.Walk(c, fn)
	}
}

// CountStates tallies node states in the subtree at id.
func (t *Tree) CountStates(id NodeID) map[models.NodeState]int {
	counts := make(map[models.NodeState]int)
	t.Walk(id, func(n Node) { counts[n.State]++ })
	return counts
}

// RenderTree renders id and its descendants one line per node, pre-order,
// indented by level.
func (t *Tree) RenderTree(id NodeID, showState bool) string {
	var b strings.Builder
	t.Walk(id, func(n Node) {
		b.WriteString(indent(n.Level))
		b.WriteString("- ")
		b.WriteString(n.Description)
		if showState {
			fmt.Fprintf(&b, " (%s)", n.State.Label())
		}
		b.WriteString("\n")
	})
	return b.String()
}

// DescribeAncestryAndSiblings renders the path from the root to id with id's
// line replaced by placeholder, followed by the siblings that come after each
// node on the path, deepest level first. The result is in tree order.
func (t *Tree) DescribeAncestryAndSiblings(id NodeID, placeholder string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var path []NodeID
	for cur := id; cur != NoNode; cur = t.node(cur).Parent {
		path = append([]NodeID{cur}, path...)
	}

	var b strings.Builder
	for _, pid := range path[:len(path)-1] {
		n := t.node(pid)
		fmt.Fprintf(&b, "%s- %s\n", indent(n.Level), n.Description)
	}
	fmt.Fprintf(&b, "%s%s\n", indent(t.node(id).Level), placeholder)

	for i := len(path) - 1; i > 0; i-- {
		parent := t.node(path[i-1])
		after := false
		for _, sib := range parent.Children {
			if sib == path[i] {
				after = true
				continue
			}
			if after {
				s := t.node(sib)
				fmt.Fprintf(&b, "%s- %s\n", indent(s.Level), s.Description)
			}
		}
	}
	return b.String()
}

// NumberedChildren renders the child descriptions as a numbered list.
func (t *Tree) NumberedChildren(id NodeID) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var b strings.Builder
	for i, c := range t.node(id).Children {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.node(c).Description)
	}
	return b.String()
}

func indent(level int) string {
	return strings.Repeat(" ", level*indentWidth)
}
