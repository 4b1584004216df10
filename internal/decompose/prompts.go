package decompose

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/plana/internal/grounding"
	"github.com/ShayCichocki/plana/internal/plan"
)

// postProcessMaxTokens is the completion budget for the deduplication pass.
const postProcessMaxTokens = 2000

// Grounder finds documents related to a query. *grounding.Index implements it.
type Grounder interface {
	GetRelatedDocuments(query string, maxResults int) ([]string, error)
}

// firstPrompt asks for the top-level steps of a fresh goal.
func firstPrompt(description, subtaskCount string) string {
	return fmt.Sprintf("Your job is to provide instructions to %s. Please specify a numbered list of %s brief tasks that need to be done.",
		description, subtaskCount)
}

// interiorPrompt shows the whole plan so far, then asks for the node's steps.
func interiorPrompt(t *plan.Tree, id plan.NodeID) string {
	var b strings.Builder
	b.WriteString(t.RenderTree(t.RootOf(id), false))
	fmt.Fprintf(&b, "\nProvide a list of short actions to %s\n\n", t.Description(id))
	return b.String()
}

// expansionPrompt picks the first-level or interior form for id.
func expansionPrompt(t *plan.Tree, id plan.NodeID, subtaskCount string) string {
	if _, ok := t.Parent(id); !ok {
		return firstPrompt(t.Description(id), subtaskCount)
	}
	return interiorPrompt(t, id)
}

// listPrompt asks for subtasks of every child of id in one completion.
func listPrompt(t *plan.Tree, id plan.NodeID, subtaskCount string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Below are instructions to %s. Repeat the list and add %s subtasks to each of the items.\n\n",
		t.Description(id), subtaskCount)
	b.WriteString(t.NumberedChildren(id))
	return b.String()
}

// postProcessPrompt asks the backend to drop equivalent steps from a rendered plan.
func postProcessPrompt(rendered string) string {
	return "Revise the task list below removing any steps that are equivalent\n" +
		"\nSTART LIST\n" + rendered + "\nEND LIST"
}

// groundPrompt prefixes prompt with documents related to key, keeping the
// total within maxWords. The prompt is returned unchanged when nothing fits.
func groundPrompt(g Grounder, prompt, key string, maxWords, maxResults int) (string, []string, error) {
	if g == nil || maxResults <= 0 {
		return prompt, nil, nil
	}
	budget := maxWords - grounding.CountWords(prompt)
	if budget <= 0 {
		return prompt, nil, nil
	}

	docs, err := g.GetRelatedDocuments(key, maxResults)
	if err != nil {
		return prompt, nil, err
	}
	if len(docs) == 0 {
		return prompt, nil, nil
	}

	prefix := grounding.LimitWords(strings.Join(docs, "\n"), budget)
	if prefix == "" {
		return prompt, nil, nil
	}
	return prefix + "\n" + prompt, docs, nil
}
