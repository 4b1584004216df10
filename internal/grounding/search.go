package grounding

import (
	"fmt"
	"regexp"
	"strings"
)

// maxQueryTerms bounds the number of keywords sent to the full-text matcher.
const maxQueryTerms = 24

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// stopWords are dropped from queries; they match nearly every passage.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "the": true, "to": true,
	"with": true, "your": true, "you": true, "that": true, "this": true,
}

// MatchQuery turns free text into an FTS5 query that ORs its keywords.
// It returns "" when the text has no usable keywords.
func MatchQuery(text string) string {
	seen := make(map[string]bool)
	var terms []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(w) < 2 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
		if len(terms) == maxQueryTerms {
			break
		}
	}
	return strings.Join(terms, " OR ")
}

// GetRelatedDocuments returns the bodies of up to maxResults documents most
// relevant to query, best first.
func (x *Index) GetRelatedDocuments(query string, maxResults int) ([]string, error) {
	match := MatchQuery(query)
	if match == "" || maxResults <= 0 {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	rows, err := x.db.Query(`
		SELECT d.body
		FROM documents d
		JOIN documents_fts fts ON d.rowid = fts.rowid
		WHERE documents_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, maxResults)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, body)
	}
	return out, rows.Err()
}

// CountWords returns the number of whitespace-separated words in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// LimitWords truncates s to at most n words, joined by single spaces.
func LimitWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}
