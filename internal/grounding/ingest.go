package grounding

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tidwall/gjson"
)

// DefaultPatterns select the files Ingest reads when none are given.
var DefaultPatterns = []string{"**/*.txt", "**/*.md", "**/*.json"}

// chunkWords is the target passage size for plain text files.
const chunkWords = 200

// IngestStats summarises an Ingest call.
type IngestStats struct {
	Files     int
	Documents int
	Skipped   int
}

// Ingest indexes every file under dir that matches one of patterns.
// Files are keyed by their path relative to dir; re-ingesting a file
// replaces its earlier documents.
//
// JSON files hold one record or an array of records shaped
// {"title": ..., "texts": [{"text": ...}]} (a "metadata.title" is also
// accepted); each text becomes a document. Other files are split into
// passages on blank lines.
func (x *Index) Ingest(dir string, patterns []string) (IngestStats, error) {
	var stats IngestStats
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	fsys := os.DirFS(dir)
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return stats, fmt.Errorf("match %q: %w", pattern, err)
		}
		for _, rel := range matches {
			if seen[rel] {
				continue
			}
			seen[rel] = true

			data, err := os.ReadFile(filepath.Join(dir, rel))
			if err != nil {
				return stats, fmt.Errorf("read %s: %w", rel, err)
			}

			var docs []*Document
			if strings.EqualFold(filepath.Ext(rel), ".json") {
				docs = jsonDocuments(data)
			} else {
				docs = textDocuments(titleFromPath(rel), string(data))
			}
			if len(docs) == 0 {
				stats.Skipped++
				continue
			}

			if _, err := x.RemoveSource(rel); err != nil {
				return stats, err
			}
			for _, doc := range docs {
				doc.Source = rel
				if err := x.Add(doc); err != nil {
					return stats, err
				}
			}
			stats.Files++
			stats.Documents += len(docs)
		}
	}
	return stats, nil
}

func titleFromPath(rel string) string {
	base := filepath.Base(rel)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func jsonDocuments(data []byte) []*Document {
	if !gjson.ValidBytes(data) {
		return nil
	}
	root := gjson.ParseBytes(data)
	records := []gjson.Result{root}
	if root.IsArray() {
		records = root.Array()
	}

	var docs []*Document
	for _, rec := range records {
		title := rec.Get("title").String()
		if title == "" {
			title = rec.Get("metadata.title").String()
		}
		for _, text := range rec.Get("texts.#.text").Array() {
			body := strings.TrimSpace(text.String())
			if body == "" {
				continue
			}
			docs = append(docs, &Document{Title: title, Body: body})
		}
	}
	return docs
}

// textDocuments splits content into passages of roughly chunkWords words,
// breaking only on blank lines.
func textDocuments(title, content string) []*Document {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var docs []*Document
	var cur []string
	words := 0
	flush := func() {
		if len(cur) == 0 {
			return
		}
		docs = append(docs, &Document{Title: title, Body: strings.Join(cur, "\n\n")})
		cur, words = nil, 0
	}

	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		n := CountWords(para)
		if words > 0 && words+n > chunkWords {
			flush()
		}
		cur = append(cur, para)
		words += n
	}
	flush()
	return docs
}
