package markdown

import "strings"

// pair is a symmetric inline construct such as **strong** or `code`.
type pair struct {
	delim     string
	open      string
	close     string
	multiline bool
}

var (
	strongPair = pair{delim: "**", open: "<strong>", close: "</strong>"}
	emPair     = pair{delim: "*", open: "<em>", close: "</em>"}
	codePair   = pair{delim: "`", open: "<code>", close: "</code>"}
)

// replace substitutes every delimited run in s. Each opening delimiter is
// closed by the nearest following one; the run may be empty. Unless the pair
// is multiline, a run never crosses a newline. An opener without a closer is
// kept as literal text.
func (p pair) replace(s string) string {
	if !strings.Contains(s, p.delim) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if !strings.HasPrefix(s[i:], p.delim) {
			b.WriteByte(s[i])
			i++
			continue
		}
		start := i + len(p.delim)
		end := p.closing(s, start)
		if end < 0 {
			b.WriteByte(s[i])
			i++
			continue
		}
		b.WriteString(p.open)
		b.WriteString(s[start:end])
		b.WriteString(p.close)
		i = end + len(p.delim)
	}
	return b.String()
}

// closing returns the index of the first closing delimiter at or after from,
// or -1.
func (p pair) closing(s string, from int) int {
	rest := s[from:]
	if !p.multiline {
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[:nl]
		}
	}
	idx := strings.Index(rest, p.delim)
	if idx < 0 {
		return -1
	}
	return from + idx
}

// replaceLinks turns [label](target) into an anchor. Label and target are
// taken verbatim: the first ']' ends the label, it must be followed directly
// by '(' and the first ')' ends the target. Both must be non-empty.
func replaceLinks(s string) string {
	if !strings.Contains(s, "](") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '[' {
			if label, target, n, ok := scanLink(s[i:]); ok {
				b.WriteString(`<a href="`)
				b.WriteString(target)
				b.WriteString(`">`)
				b.WriteString(label)
				b.WriteString("</a>")
				i += n
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// scanLink parses a link at the start of s, which begins with '['.
// n is the number of bytes consumed. The target runs to the first ')' even
// across a newline, so a line break inside it later gets a break marker.
func scanLink(s string) (label, target string, n int, ok bool) {
	endLabel := strings.IndexByte(s, ']')
	if endLabel < 2 || endLabel+1 >= len(s) || s[endLabel+1] != '(' {
		return "", "", 0, false
	}
	rest := s[endLabel+2:]
	endTarget := strings.IndexByte(rest, ')')
	if endTarget < 1 {
		return "", "", 0, false
	}
	return s[1:endLabel], rest[:endTarget], endLabel + 2 + endTarget + 1, true
}
