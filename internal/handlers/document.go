package handlers

import (
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyDocument = errors.New("document has no content")

// Document is a raw document as uploaded for audit. Content is plain text or
// markdown; format-specific extraction happens before it reaches the queue.
type Document struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type Section struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
}

type ParsedDocument struct {
	Name      string    `json:"name"`
	Sections  []Section `json:"sections"`
	WordCount int       `json:"word_count"`
}

// Parse splits a document into sections. A markdown heading opens a new
// section; blank lines separate paragraphs inside a section. Whitespace in
// each paragraph is collapsed to single spaces.
func Parse(doc Document) (ParsedDocument, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return ParsedDocument{}, fmt.Errorf("parse %q: %w", doc.Name, ErrEmptyDocument)
	}

	out := ParsedDocument{Name: doc.Name}
	var (
		title      string
		paragraphs []string
		current    []string
	)

	flushParagraph := func() {
		if len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = nil
		}
	}
	flushSection := func() {
		flushParagraph()
		if title == "" && len(paragraphs) == 0 {
			return
		}
		out.Sections = append(out.Sections, Section{
			Title: title,
			Body:  strings.Join(paragraphs, "\n\n"),
		})
		paragraphs = nil
	}

	for _, line := range strings.Split(doc.Content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#"):
			flushSection()
			title = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		case trimmed == "":
			flushParagraph()
		default:
			words := strings.Fields(trimmed)
			out.WordCount += len(words)
			current = append(current, strings.Join(words, " "))
		}
	}
	flushSection()

	return out, nil
}
