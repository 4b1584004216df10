package decompose

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ShayCichocki/plana/pkg/models"
)

var (
	// "1.2 foo" or "1.2. foo" is a sub-item, not a new heading.
	subNumbered = regexp.MustCompile(`^\s*\d+\.\d+\.?\s+`)
	headingLine = regexp.MustCompile(`^\s*(\d+)[.)]\s*`)
	bulletLine  = regexp.MustCompile(`^\s*(?:[-*•]|[a-zA-Z][.)])\s+`)
)

// listItem is one numbered entry of an as-a-list completion.
type listItem struct {
	ordinal  int
	heading  string
	subtasks []string
}

// parseListItems splits a completion into numbered items, each with the
// sub-bullets that follow it. Inline " - " separated subtasks on the heading
// line are split off too. Indented numbered lines belong to the item above.
// Text before the first numbered line is ignored.
func parseListItems(response string) []listItem {
	var items []listItem
	var cur *listItem

	for _, line := range strings.Split(strings.ReplaceAll(response, "\r", ""), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		indented := len(line)-len(strings.TrimLeft(line, " \t")) >= 2

		switch {
		case subNumbered.MatchString(line):
			if cur != nil {
				cur.subtasks = append(cur.subtasks, subNumbered.ReplaceAllString(line, ""))
			}
		case headingLine.MatchString(line) && !(indented && cur != nil):
			m := headingLine.FindStringSubmatch(line)
			n, _ := strconv.Atoi(m[1])
			parts := strings.Split(line[len(m[0]):], " - ")
			items = append(items, listItem{ordinal: n, heading: strings.TrimSpace(parts[0])})
			cur = &items[len(items)-1]
			for _, p := range parts[1:] {
				cur.subtasks = append(cur.subtasks, p)
			}
		case cur != nil:
			line = headingLine.ReplaceAllString(line, "")
			cur.subtasks = append(cur.subtasks, bulletLine.ReplaceAllString(line, ""))
		}
	}
	return items
}

func normalizeHeading(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimRight(s, ".: ")
}

// matchListItems assigns items to the children they describe. An item goes to
// the child whose description equals its heading, ignoring case and trailing
// punctuation. Otherwise it takes the child at its ordinal, if that child is
// still unclaimed. Items that match nothing are dropped.
func matchListItems(items []listItem, children []string) map[int]*models.TaskList {
	claimed := make(map[int]bool, len(children))
	assigned := make([]int, len(items))

	for i, it := range items {
		assigned[i] = -1
		want := normalizeHeading(it.heading)
		for j, c := range children {
			if !claimed[j] && normalizeHeading(c) == want {
				claimed[j] = true
				assigned[i] = j
				break
			}
		}
	}
	for i, it := range items {
		if assigned[i] >= 0 {
			continue
		}
		if j := it.ordinal - 1; j >= 0 && j < len(children) && !claimed[j] {
			claimed[j] = true
			assigned[i] = j
		}
	}

	out := make(map[int]*models.TaskList)
	for i, it := range items {
		j := assigned[i]
		if j < 0 || len(it.subtasks) == 0 {
			continue
		}
		tl := models.ParseTaskList(strings.Join(it.subtasks, "\n"))
		if tl.Empty() && !tl.DoNotExpand {
			continue
		}
		out[j] = tl
	}
	return out
}

// ParseListResponse maps an as-a-list completion onto children, returning the
// candidate TaskList proposed for each child index that received subtasks.
func ParseListResponse(response string, children []string) map[int]*models.TaskList {
	return matchListItems(parseListItems(response), children)
}
