package examples

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ShayCichocki/plana/pkg/models"
)

const (
	// PositionPlaceholder marks the node being decided in a position prompt.
	PositionPlaceholder = "<WHICH OPTION IS BEST HERE>"
	// ReasoningHeader separates the chosen option from the per-option reasons.
	ReasoningHeader = "<EXPLAIN THE REASONING FOR WHY EACH OPTION IS GOOD OR BAD>"

	questionLine = "Select the best OPTION to insert into the plan below:"
)

var optionMarker = regexp.MustCompile(`<OPTION\s+(\d+)>`)

// optionsBlock renders candidates as "<OPTION n>" blocks, 1-indexed.
func optionsBlock(b *strings.Builder, candidates []*models.TaskList) {
	for i, tl := range candidates {
		fmt.Fprintf(b, "<OPTION %d>\n", i+1)
		b.WriteString(tl.String())
		b.WriteString("\n")
	}
}

// problemBlock renders the options and question, ending with the open answer tag.
func problemBlock(b *strings.Builder, candidates []*models.TaskList, position string) {
	optionsBlock(b, candidates)
	b.WriteString("<QUESTION>\n")
	b.WriteString(questionLine + "\n")
	b.WriteString(position)
	if !strings.HasSuffix(position, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("<ANSWER>\n")
}

// answerBlock renders the expected answer of a worked example.
func answerBlock(b *strings.Builder, ex Example) {
	if best := ex.Best(); best >= 0 {
		fmt.Fprintf(b, "<OPTION %d>\n", best+1)
		b.WriteString(ex.Candidates[best].TaskList().String())
	}
	b.WriteString(ReasoningHeader + "\n")

	order := ex.byRank()
	for pos, i := range order {
		fmt.Fprintf(b, "<OPTION %d> is %s option because %s\n", i+1, Ordinal(pos, len(order)), ex.Candidates[i].Reason)
	}
}

// Ordinal describes rank position pos of n: "the best", "the 2nd best", ..., "the worst".
func Ordinal(pos, n int) string {
	switch {
	case pos == 0:
		return "the best"
	case pos == n-1:
		return "the worst"
	default:
		return "the " + nth(pos+1) + " best"
	}
}

func nth(n int) string {
	suffix := "th"
	switch n % 10 {
	case 1:
		suffix = "st"
	case 2:
		suffix = "nd"
	case 3:
		suffix = "rd"
	}
	if n%100 >= 11 && n%100 <= 13 {
		suffix = "th"
	}
	return strconv.Itoa(n) + suffix
}

// RankingPrompt builds the few-shot ranking prompt: every stored example with
// its answer, then the current node's options and position with the answer open.
func RankingPrompt(stored []Example, candidates []*models.TaskList, position string) string {
	var b strings.Builder
	for i, ex := range stored {
		fmt.Fprintf(&b, "<PROBLEM %d>\n", i+1)
		lists := make([]*models.TaskList, len(ex.Candidates))
		for j, c := range ex.Candidates {
			lists[j] = c.TaskList()
		}
		problemBlock(&b, lists, ex.Position)
		answerBlock(&b, ex)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "<PROBLEM %d>\n", len(stored)+1)
	problemBlock(&b, candidates, position)
	return b.String()
}

// RankingPrompt builds the ranking prompt from the store's current examples.
func (s *Store) RankingPrompt(candidates []*models.TaskList, position string) string {
	return RankingPrompt(s.All(), candidates, position)
}

// ParseRanking applies a ranking response to candidates and returns the index
// of the best one, or -1 when no line could be parsed.
//
// Lines are scanned in order. A line whose first "<OPTION n>" marker names a
// candidate not yet ranked gives that candidate the next rank, and the rest of
// the line becomes its reason. Other lines are ignored. If the response
// contains the reasoning header, only the text after it is scanned.
func ParseRanking(response string, candidates []*models.TaskList) int {
	for _, c := range candidates {
		c.Rank = models.Unranked
		c.Reason = ""
	}

	if i := strings.Index(response, ReasoningHeader); i >= 0 {
		response = response[i+len(ReasoningHeader):]
	}

	best := -1
	rank := 0
	for _, line := range strings.Split(response, "\n") {
		loc := optionMarker.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		n, err := strconv.Atoi(line[loc[2]:loc[3]])
		if err != nil || n < 1 || n > len(candidates) {
			continue
		}
		c := candidates[n-1]
		if c.Rank != models.Unranked {
			continue
		}
		c.Rank = rank
		c.Reason = strings.TrimSpace(line[loc[1]:])
		if rank == 0 {
			best = n - 1
		}
		rank++
	}
	return best
}

// Reasoning renders each candidate's reason, one "<OPTION n>" line per candidate.
func Reasoning(candidates []*models.TaskList) string {
	var b strings.Builder
	for i, c := range candidates {
		reason := c.Reason
		if reason == "" {
			reason = "No reason"
		}
		fmt.Fprintf(&b, "<OPTION %d> %s\n", i+1, reason)
	}
	return b.String()
}
