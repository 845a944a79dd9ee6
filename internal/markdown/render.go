// Package markdown renders the fixed Markdown subset used by Quire notes into
// HTML fragments.
//
// The supported constructs are headers (#, ##, ###), **strong**, *em*,
// fenced and inline code, [links](target), pipe tables and nested bullet
// lists. Stages run in a fixed order and each works on the output of the
// previous one, so rendering already rendered markup again is not
// idempotent.
package markdown

import "strings"

// BreakMarker terminates every text and header line in the output.
const BreakMarker = "<br>"

// Renderer converts note text to HTML. It holds no state between calls and
// is safe for concurrent use.
type Renderer struct {
	markers string
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithListMarkers restricts the recognised bullet characters. Characters
// outside DefaultListMarkers are ignored; an empty result keeps the default.
func WithListMarkers(markers string) Option {
	return func(r *Renderer) {
		var b strings.Builder
		for _, c := range markers {
			if strings.ContainsRune(DefaultListMarkers, c) && !strings.ContainsRune(b.String(), c) {
				b.WriteRune(c)
			}
		}
		if b.Len() > 0 {
			r.markers = b.String()
		}
	}
}

// New returns a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{markers: DefaultListMarkers}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRenderer = New()

// Render renders text with the default options.
func Render(text string) string {
	return defaultRenderer.Render(text)
}

// Render converts text to HTML. Malformed markup degrades to literal text.
func (r *Renderer) Render(text string) string {
	if text == "" {
		return ""
	}
	s := normalize(text)
	s = applyHeaders(s)
	s = strongPair.replace(s)
	s = emPair.replace(s)
	s, fences := sealCode(s)
	s = codePair.replace(s)
	s = replaceLinks(s)

	lines := classify(s)
	lines = extractTables(lines)
	lines = r.buildLists(lines)

	return unsealCode(joinLines(lines), fences)
}

// joinLines terminates text and header lines with BreakMarker. Whitespace-only
// lines become empty, code, table and list lines are left alone, runs of
// markers collapse and a marker ending the output is dropped.
func joinLines(lines []line) string {
	out := make([]string, len(lines))
	for i, l := range lines {
		switch {
		case l.kind == headerLine:
			out[i] = l.text + BreakMarker
		case l.kind != textLine:
			out[i] = l.text
		case strings.TrimSpace(l.text) == "":
			out[i] = ""
		default:
			out[i] = l.text + BreakMarker
		}
	}
	s := collapseBreaks(strings.Join(out, "\n"))

	body := strings.TrimRight(s, " \t\n")
	if strings.HasSuffix(body, BreakMarker) {
		s = body[:len(body)-len(BreakMarker)] + s[len(body):]
	}
	return s
}

// collapseBreaks folds markers separated only by whitespace into the first.
func collapseBreaks(s string) string {
	if strings.Count(s, BreakMarker) < 2 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for {
		i := strings.Index(s, BreakMarker)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i+len(BreakMarker)])
		s = s[i+len(BreakMarker):]
		for {
			rest := strings.TrimLeft(s, " \t\n")
			if !strings.HasPrefix(rest, BreakMarker) {
				break
			}
			s = rest[len(BreakMarker):]
		}
	}
}
