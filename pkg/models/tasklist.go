package models

import (
	"fmt"
	"regexp"
	"strings"
)

// Unranked is the Rank of a TaskList that has not taken part in a ranking round.
const Unranked = -1

// DoNotExpandText is how the doNotExpand sentinel is rendered and recognised in text.
const DoNotExpandText = "<DON'T EXPAND>"

// ordinalPrefix matches a leading list marker such as "1. ", "2) " or "- ".
var ordinalPrefix = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s*`)

// TaskList is one candidate decomposition of a plan node.
type TaskList struct {
	// TaskDescriptions are the proposed sub-tasks, in order.
	TaskDescriptions []string `json:"task_descriptions"`
	// DoNotExpand marks the sentinel candidate meaning "leave this node as a leaf".
	DoNotExpand bool `json:"do_not_expand,omitempty"`
	// FromCache is true when the list was loaded from the decomposition cache.
	FromCache bool `json:"from_cache,omitempty"`
	// SelectionCount is how often the list was chosen as best.
	SelectionCount int `json:"selection_count,omitempty"`
	// Reason is the explanation attached during a ranking round.
	Reason string `json:"reason,omitempty"`
	// Rank is the position assigned in a ranking round (0 is best), or Unranked.
	Rank int `json:"rank"`
}

// NewTaskList creates an unranked TaskList from explicit descriptions.
func NewTaskList(descriptions []string) *TaskList {
	return &TaskList{
		TaskDescriptions: append([]string(nil), descriptions...),
		Rank:             Unranked,
	}
}

// NewDoNotExpand creates the doNotExpand sentinel.
func NewDoNotExpand() *TaskList {
	return &TaskList{DoNotExpand: true, Rank: Unranked}
}

// ParseTaskList builds a TaskList from raw completion text.
// It never fails: lines that do not look like list items become atomic descriptions.
func ParseTaskList(raw string) *TaskList {
	lines := strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == '\r' })

	seen := make(map[string]bool, len(lines))
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(ordinalPrefix.ReplaceAllString(line, ""))
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		cleaned = append(cleaned, line)
	}

	if len(cleaned) == 1 && strings.EqualFold(cleaned[0], DoNotExpandText) {
		return NewDoNotExpand()
	}

	descriptions := make([]string, 0, len(cleaned))
	for _, line := range cleaned {
		if first := FirstSentence(line); first != "" {
			descriptions = append(descriptions, first)
		}
	}
	return NewTaskList(descriptions)
}

// FirstSentence returns the text before the first '.', trimmed.
func FirstSentence(s string) string {
	if i := strings.Index(s, "."); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// String renders the list with "- " markers.
func (tl *TaskList) String() string {
	return tl.format(false)
}

// Numbered renders the list as "1. ..." lines.
func (tl *TaskList) Numbered() string {
	return tl.format(true)
}

func (tl *TaskList) format(numbered bool) string {
	if tl.DoNotExpand {
		return DoNotExpandText + "\n"
	}
	var b strings.Builder
	for i, d := range tl.TaskDescriptions {
		if numbered {
			fmt.Fprintf(&b, "%d. %s\n", i+1, d)
		} else {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}
	return b.String()
}

// Clone returns a deep copy.
func (tl *TaskList) Clone() *TaskList {
	c := *tl
	c.TaskDescriptions = append([]string(nil), tl.TaskDescriptions...)
	return &c
}

// Empty returns true if the list would create no children.
func (tl *TaskList) Empty() bool {
	return tl.DoNotExpand || len(tl.TaskDescriptions) == 0
}

// Equal reports whether two lists describe the same decomposition.
// Descriptions are compared case-insensitively, in order.
func Equal(a, b *TaskList) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.DoNotExpand != b.DoNotExpand {
		return false
	}
	if len(a.TaskDescriptions) != len(b.TaskDescriptions) {
		return false
	}
	for i := range a.TaskDescriptions {
		if !strings.EqualFold(a.TaskDescriptions[i], b.TaskDescriptions[i]) {
			return false
		}
	}
	return true
}

// Merge folds provenance from other into tl. Both must be Equal.
func (tl *TaskList) Merge(other *TaskList) {
	if other.SelectionCount > tl.SelectionCount {
		tl.SelectionCount = other.SelectionCount
	}
	tl.FromCache = tl.FromCache || other.FromCache
}

// IndexOf returns the index of the first list Equal to target, or -1.
func IndexOf(lists []*TaskList, target *TaskList) int {
	for i, l := range lists {
		if Equal(l, target) {
			return i
		}
	}
	return -1
}

// RemoveDuplicates returns the distinct lists in first-seen order.
// Provenance of dropped duplicates is merged into the retained instance.
func RemoveDuplicates(lists []*TaskList) []*TaskList {
	out := make([]*TaskList, 0, len(lists))
	for _, l := range lists {
		if l == nil {
			continue
		}
		if i := IndexOf(out, l); i >= 0 {
			out[i].Merge(l)
			continue
		}
		out = append(out, l)
	}
	return out
}
