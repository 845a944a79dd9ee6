package markdown

import (
	"html"
	"strconv"
	"strings"
)

type lineKind int

const (
	textLine lineKind = iota
	headerLine
	codeLine
	tableLine
	listLine
)

// line is one output line tagged with the block it belongs to. Only text
// lines are offered to the table and list stages and only text lines get a
// break marker.
type line struct {
	text string
	kind lineKind
}

// Longest marker first so "### x" is never read as "# ## x".
var headerPrefixes = []struct {
	prefix string
	tag    string
}{
	{"### ", "h3"},
	{"## ", "h2"},
	{"# ", "h1"},
}

const (
	fenceDelim = "```"
	sealMark   = "\x00"
)

// normalize unifies line endings, drops NUL bytes (reserved for code
// placeholders) and escapes HTML so every tag in the output comes from the
// pipeline itself.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, sealMark, "")
	return html.EscapeString(s)
}

// applyHeaders rewrites header lines in place.
func applyHeaders(s string) string {
	if !strings.Contains(s, "# ") {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		for _, h := range headerPrefixes {
			if strings.HasPrefix(l, h.prefix) {
				lines[i] = "<" + h.tag + ">" + l[len(h.prefix):] + "</" + h.tag + ">"
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}

// sealCode replaces every fenced region with a single-line placeholder and
// returns the fence bodies in order. Sealed bodies are invisible to the later
// stages until unsealCode puts them back.
func sealCode(s string) (string, []string) {
	if !strings.Contains(s, fenceDelim) {
		return s, nil
	}
	var (
		b      strings.Builder
		bodies []string
	)
	fence := pair{delim: fenceDelim, multiline: true}
	for i := 0; i < len(s); {
		if !strings.HasPrefix(s[i:], fenceDelim) {
			b.WriteByte(s[i])
			i++
			continue
		}
		start := i + len(fenceDelim)
		end := fence.closing(s, start)
		if end < 0 {
			b.WriteString(s[i:])
			break
		}
		b.WriteString(placeholder(len(bodies)))
		bodies = append(bodies, s[start:end])
		i = end + len(fenceDelim)
	}
	return b.String(), bodies
}

func placeholder(n int) string {
	return sealMark + strconv.Itoa(n) + sealMark
}

// unsealCode substitutes the code blocks back into the rendered output.
func unsealCode(s string, bodies []string) string {
	if len(bodies) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for {
		open := strings.Index(s, sealMark)
		if open < 0 {
			b.WriteString(s)
			return b.String()
		}
		shut := strings.Index(s[open+1:], sealMark)
		if shut < 0 {
			b.WriteString(s)
			return b.String()
		}
		shut += open + 1
		b.WriteString(s[:open])
		if n, err := strconv.Atoi(s[open+1 : shut]); err == nil && n < len(bodies) {
			b.WriteString("<pre><code>")
			b.WriteString(bodies[n])
			b.WriteString("</code></pre>")
		}
		s = s[shut+1:]
	}
}

// classify splits the transformed text into tagged lines.
func classify(s string) []line {
	raw := strings.Split(s, "\n")
	out := make([]line, len(raw))
	for i, l := range raw {
		out[i] = line{text: l, kind: kindOf(l)}
	}
	return out
}

func kindOf(l string) lineKind {
	for _, h := range headerPrefixes {
		if strings.HasPrefix(l, "<"+h.tag+">") {
			return headerLine
		}
	}
	t := strings.TrimSpace(l)
	if len(t) > 2 && strings.HasPrefix(t, sealMark) && strings.HasSuffix(t, sealMark) &&
		strings.Count(t, sealMark) == 2 {
		return codeLine
	}
	return textLine
}
