// Package parser extracts the outline of a note: its title, headings and
// links to other notes.
package parser

import (
	"regexp"
	"strings"

	"github.com/starford/quire/internal/models"
)

var (
	headingRe = regexp.MustCompile(`^(#{1,3}) (.*)$`)
	linkRe    = regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\n]+)\)`)
)

// Outline holds what the index and the note detail view need from a note.
type Outline struct {
	Title    string           `json:"title"`
	Headings []models.Heading `json:"headings"`
	Links    []string         `json:"links"`
}

// Parse reads the outline of raw Markdown bytes. Fenced code is skipped.
func Parse(data []byte) *Outline {
	body := strings.ReplaceAll(string(data), "\r\n", "\n")
	prose := stripFences(body)

	headings := extractHeadings(prose)
	return &Outline{
		Title:    deriveTitle(headings),
		Headings: headings,
		Links:    extractLinks(prose),
	}
}

// stripFences blanks the content of closed ``` regions so their lines are
// not read as headings or links. An unclosed fence is left in place.
func stripFences(body string) string {
	const fence = "```"
	var b strings.Builder
	for {
		open := strings.Index(body, fence)
		if open < 0 {
			break
		}
		shut := strings.Index(body[open+len(fence):], fence)
		if shut < 0 {
			break
		}
		shut += open + len(fence)
		b.WriteString(body[:open])
		// Keep line count stable.
		b.WriteString(strings.Repeat("\n", strings.Count(body[open:shut], "\n")))
		body = body[shut+len(fence):]
	}
	b.WriteString(body)
	return b.String()
}

func extractHeadings(body string) []models.Heading {
	var out []models.Heading
	for _, l := range strings.Split(body, "\n") {
		m := headingRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		text := strings.TrimSpace(m[2])
		if text == "" {
			continue
		}
		out = append(out, models.Heading{Level: len(m[1]), Text: text})
	}
	return out
}

// extractLinks returns deduplicated link targets that name another note in
// the vault: no scheme, no directory, ending in .md.
func extractLinks(body string) []string {
	matches := linkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := strings.TrimSpace(m[2])
		if i := strings.IndexAny(target, "#?"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimPrefix(target, "./")
		if !isNoteTarget(target) {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

func isNoteTarget(t string) bool {
	if !strings.HasSuffix(t, ".md") || len(t) == len(".md") {
		return false
	}
	return !strings.ContainsAny(t, `/\:`) && !strings.HasPrefix(t, ".")
}

// deriveTitle returns the first level-one heading, otherwise empty string.
func deriveTitle(headings []models.Heading) string {
	for _, h := range headings {
		if h.Level == 1 {
			return h.Text
		}
	}
	return ""
}
