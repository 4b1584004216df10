// Package cache persists the decompositions chosen for each goal so later
// runs can offer them again.
package cache

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/ShayCichocki/plana/internal/yamlfile"
	"github.com/ShayCichocki/plana/pkg/models"
)

// candidate is the on-disk form of a cached TaskList.
type candidate struct {
	TaskDescriptions []string `yaml:"task_descriptions,omitempty"`
	DoNotExpand      bool     `yaml:"do_not_expand,omitempty"`
	SelectionCount   int      `yaml:"selection_count"`
	FromCache        bool     `yaml:"from_cache,omitempty"`
}

// entry holds every distinct decomposition ever chosen for one description.
type entry struct {
	Description string      `yaml:"description"`
	Candidates  []candidate `yaml:"candidates"`
}

// Store is the decomposition cache. Entries are keyed by exact description
// and never evicted.
type Store struct {
	path    string
	mu      sync.RWMutex
	entries []*entry
	index   map[string]*entry
}

// Open loads the cache at path. A missing or unreadable file yields an empty cache.
func Open(path string) *Store {
	s := &Store{path: path, index: make(map[string]*entry)}

	var entries []*entry
	if _, err := yamlfile.Read(path, &entries); err != nil {
		log.Printf("[cache] ignoring unreadable cache: %v", err)
		entries = nil
	}
	for _, e := range entries {
		if e == nil || e.Description == "" {
			continue
		}
		if existing, ok := s.index[e.Description]; ok {
			existing.Candidates = append(existing.Candidates, e.Candidates...)
			continue
		}
		s.entries = append(s.entries, e)
		s.index[e.Description] = e
	}
	return s
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Len returns the number of cached descriptions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// GetTaskLists returns copies of the decompositions cached for description,
// marked as coming from the cache and unranked. The most often selected come
// first; ties keep the order they were first cached in.
func (s *Store) GetTaskLists(description string) []*models.TaskList {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.index[description]
	if !ok {
		return nil
	}
	out := make([]*models.TaskList, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		out = append(out, &models.TaskList{
			TaskDescriptions: append([]string(nil), c.TaskDescriptions...),
			DoNotExpand:      c.DoNotExpand,
			SelectionCount:   c.SelectionCount,
			FromCache:        true,
			Rank:             models.Unranked,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SelectionCount > out[j].SelectionCount
	})
	return models.RemoveDuplicates(out)
}

// AddTaskList records that tl was chosen for description and rewrites the file.
// A list equal to one already cached has its selection count bumped.
func (s *Store) AddTaskList(description string, tl *models.TaskList) error {
	if tl == nil {
		return fmt.Errorf("add task list for %q: nil list", description)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.index[description]
	if !ok {
		e = &entry{Description: description}
		s.entries = append(s.entries, e)
		s.index[description] = e
	}

	found := false
	for i := range e.Candidates {
		if models.Equal(toTaskList(e.Candidates[i]), tl) {
			e.Candidates[i].SelectionCount++
			e.Candidates[i].FromCache = true
			found = true
			break
		}
	}
	if !found {
		c := candidate{
			DoNotExpand:    tl.DoNotExpand,
			SelectionCount: tl.SelectionCount + 1,
			FromCache:      true,
		}
		if !tl.DoNotExpand {
			c.TaskDescriptions = append([]string(nil), tl.TaskDescriptions...)
		}
		e.Candidates = append(e.Candidates, c)
	}

	return s.flush()
}

// AddNoExpand records that description should be left as a leaf.
func (s *Store) AddNoExpand(description string) error {
	return s.AddTaskList(description, models.NewDoNotExpand())
}

// flush rewrites the whole file. Caller must hold the write lock.
func (s *Store) flush() error {
	if err := yamlfile.Write(s.path, s.entries); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	return nil
}

func toTaskList(c candidate) *models.TaskList {
	return &models.TaskList{
		TaskDescriptions: c.TaskDescriptions,
		DoNotExpand:      c.DoNotExpand,
		SelectionCount:   c.SelectionCount,
		FromCache:        c.FromCache,
		Rank:             models.Unranked,
	}
}
