// Package examples stores human-ranked decompositions and replays them as
// few-shot prompts that teach the backend how to rank candidates.
package examples

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/plana/internal/yamlfile"
	"github.com/ShayCichocki/plana/pkg/models"
)

// Candidate is one option of a worked example with the rank and reason a human gave it.
type Candidate struct {
	TaskDescriptions []string `yaml:"task_descriptions,omitempty"`
	DoNotExpand      bool     `yaml:"do_not_expand,omitempty"`
	Rank             int      `yaml:"rank"`
	Reason           string   `yaml:"reason"`
}

// TaskList converts the candidate back into a TaskList.
func (c Candidate) TaskList() *models.TaskList {
	tl := models.NewTaskList(c.TaskDescriptions)
	tl.DoNotExpand = c.DoNotExpand
	tl.Rank = c.Rank
	tl.Reason = c.Reason
	if tl.DoNotExpand {
		tl.TaskDescriptions = nil
	}
	return tl
}

// Example is a solved node. Position holds the node's rendered place in its
// plan so the example can be replayed without the tree.
type Example struct {
	Description string      `yaml:"description"`
	Position    string      `yaml:"position"`
	Candidates  []Candidate `yaml:"candidates"`
}

// Best returns the index of the candidate ranked 0, or -1.
func (e Example) Best() int {
	for i, c := range e.Candidates {
		if c.Rank == 0 {
			return i
		}
	}
	return -1
}

// byRank returns candidate indices ordered best first. Unranked candidates go last.
func (e Example) byRank() []int {
	idx := make([]int, len(e.Candidates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := e.Candidates[idx[a]].Rank, e.Candidates[idx[b]].Rank
		if ra == models.Unranked {
			return false
		}
		if rb == models.Unranked {
			return true
		}
		return ra < rb
	})
	return idx
}

// Store is the persistent set of worked examples, one per description.
type Store struct {
	path string

	mu       sync.RWMutex
	examples []Example
}

// Open loads the store at path. A missing or unreadable file yields an empty store.
func Open(path string) *Store {
	s := &Store{path: path}
	s.examples = load(path)
	return s
}

func load(path string) []Example {
	var raw []Example
	if _, err := yamlfile.Read(path, &raw); err != nil {
		log.Printf("[examples] ignoring unreadable example store: %v", err)
		return nil
	}

	out := make([]Example, 0, len(raw))
	seen := make(map[string]int, len(raw))
	for _, ex := range raw {
		if ex.Description == "" || len(ex.Candidates) == 0 {
			continue
		}
		if i, ok := seen[ex.Description]; ok {
			out[i] = ex
			continue
		}
		seen[ex.Description] = len(out)
		out = append(out, ex)
	}
	return out
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Len returns the number of stored examples.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.examples)
}

// All returns a copy of the stored examples.
func (s *Store) All() []Example {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Example(nil), s.examples...)
}

// Save records candidates, with their Rank and Reason, as the worked example
// for description. An existing example for the same description is replaced
// in place. The file is rewritten before Save returns.
func (s *Store) Save(description, position string, candidates []*models.TaskList) error {
	if description == "" {
		return fmt.Errorf("save example: empty description")
	}
	if len(candidates) == 0 {
		return fmt.Errorf("save example %q: no candidates", description)
	}

	ex := Example{Description: description, Position: position}
	for _, tl := range candidates {
		c := Candidate{DoNotExpand: tl.DoNotExpand, Rank: tl.Rank, Reason: tl.Reason}
		if !tl.DoNotExpand {
			c.TaskDescriptions = append([]string(nil), tl.TaskDescriptions...)
		}
		ex.Candidates = append(ex.Candidates, c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.examples {
		if s.examples[i].Description == description {
			s.examples[i] = ex
			replaced = true
			break
		}
	}
	if !replaced {
		s.examples = append(s.examples, ex)
	}

	if err := yamlfile.Write(s.path, s.examples); err != nil {
		return fmt.Errorf("save examples: %w", err)
	}
	return nil
}

// Reload replaces the in-memory examples with the file's current contents.
func (s *Store) Reload() {
	examples := load(s.path)
	s.mu.Lock()
	s.examples = examples
	s.mu.Unlock()
}

// Watch reloads the store whenever the file is changed by another process.
// It returns once the watcher is running; watching stops when ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: the file is replaced by rename on every save.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
					s.Reload()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}
