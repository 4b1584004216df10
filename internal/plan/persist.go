package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ShayCichocki/plana/pkg/models"
)

const (
	// TextExt is the extension of rendered plan snapshots.
	TextExt = "txt"
	// DumpExt is the extension of structured plan dumps.
	DumpExt = "plan"
)

// nodeDump is the structured on-disk form of a node and its subtree.
type nodeDump struct {
	Description string             `json:"description"`
	Level       int                `json:"level"`
	State       models.NodeState   `json:"state"`
	Candidates  []*models.TaskList `json:"candidates,omitempty"`
	Children    []nodeDump         `json:"children,omitempty"`
}

func (t *Tree) dump(id NodeID) nodeDump {
	n := t.Node(id)
	d := nodeDump{
		Description: n.Description,
		Level:       n.Level,
		State:       n.State,
		Candidates:  n.Candidates,
	}
	for _, c := range n.Children {
		d.Children = append(d.Children, t.dump(c))
	}
	return d
}

// MarshalJSON encodes the whole tree as nested nodes.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.dump(t.Root()))
}

// UnmarshalJSON rebuilds the arena, restoring parent links and levels.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var root nodeDump
	if err := json.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("decode plan: %w", err)
	}
	if root.Description == "" {
		return fmt.Errorf("decode plan: root has no description")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = nil

	var add func(d nodeDump, parent NodeID, level int) NodeID
	add = func(d nodeDump, parent NodeID, level int) NodeID {
		state := d.State
		if !state.Valid() {
			state = models.NodeStateCreated
		}
		id := NodeID(len(t.nodes))
		t.nodes = append(t.nodes, &Node{
			ID:          id,
			Description: d.Description,
			Level:       level,
			State:       state,
			Candidates:  d.Candidates,
			Parent:      parent,
		})
		for _, c := range d.Children {
			child := add(c, id, level+1)
			t.nodes[id].Children = append(t.nodes[id].Children, child)
		}
		return id
	}
	add(root, NoNode, 0)
	return nil
}

// Name returns a file-safe name for the plan, derived from the root description.
func (t *Tree) Name() string {
	return SanitizeName(t.Description(t.Root()))
}

// SanitizeName replaces characters that are unsafe in file names.
func SanitizeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "--unknown--"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '-'
		}
		return r
	}, s)
}

// UniquePath returns dir/name.ext, adding a numeric suffix (2, 3, ...) if the file exists.
func UniquePath(dir, name, ext string) string {
	candidate := filepath.Join(dir, name+"."+ext)
	for n := 2; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = filepath.Join(dir, name+strconv.Itoa(n)+"."+ext)
	}
}

// SaveText writes header followed by the rendered tree and returns the path.
func SaveText(dir string, t *Tree, header string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := UniquePath(dir, t.Name(), TextExt)
	content := header + "\n\n" + t.RenderTree(t.Root(), false)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write plan text: %w", err)
	}
	return path, nil
}

// SaveDump writes the structured dump and returns the path.
func SaveDump(dir string, t *Tree) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode plan: %w", err)
	}
	path := UniquePath(dir, t.Name(), DumpExt)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write plan dump: %w", err)
	}
	return path, nil
}

// LoadDump reads a structured dump. name may be a path or a plan name in dir.
// A plan name resolves to the most recently written of name.plan, name2.plan, ...
func LoadDump(dir, name string) (*Tree, error) {
	path := name
	if !strings.HasSuffix(path, "."+DumpExt) {
		path = LatestDump(dir, name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan dump: %w", err)
	}
	t := &Tree{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, err
	}
	return t, nil
}

// LatestDump returns the newest dump saved under name in dir, by modification
// time and then by suffix. It returns dir/name.plan when none exists.
func LatestDump(dir, name string) string {
	base := SanitizeName(name)
	best := filepath.Join(dir, base+"."+DumpExt)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return best
	}

	var bestTime time.Time
	bestN := -1
	for _, e := range entries {
		file := e.Name()
		if e.IsDir() || !strings.HasPrefix(file, base) || !strings.HasSuffix(file, "."+DumpExt) {
			continue
		}
		suffix := strings.TrimSuffix(strings.TrimPrefix(file, base), "."+DumpExt)
		n := 1
		if suffix != "" {
			if n, err = strconv.Atoi(suffix); err != nil || n < 2 {
				continue
			}
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		mod := info.ModTime()
		if bestN < 0 || mod.After(bestTime) || (mod.Equal(bestTime) && n > bestN) {
			best, bestTime, bestN = filepath.Join(dir, file), mod, n
		}
	}
	return best
}
