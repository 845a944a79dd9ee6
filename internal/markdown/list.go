package markdown

import "strings"

// IndentUnit is the number of leading whitespace characters per list depth.
const IndentUnit = 2

// DefaultListMarkers are the bullet characters recognised at the start of a
// list item.
const DefaultListMarkers = "*-+"

// ListItem is one bullet of a list together with its nested list.
type ListItem struct {
	// Depth is derived from indentation: leading whitespace / IndentUnit,
	// truncated, so 2 and 3 spaces are both depth 1.
	Depth    int
	Content  string
	Children []*ListItem
}

// List is one <ul> holding top-level items.
type List struct {
	Items []*ListItem
}

// matchListItem recognises "<ws><marker> <content>" with non-empty content.
func matchListItem(l, markers string) (*ListItem, bool) {
	ws := 0
	for ws < len(l) && (l[ws] == ' ' || l[ws] == '\t') {
		ws++
	}
	if ws+2 >= len(l) {
		return nil, false
	}
	if strings.IndexByte(markers, l[ws]) < 0 || l[ws+1] != ' ' {
		return nil, false
	}
	return &ListItem{Depth: ws / IndentUnit, Content: l[ws+2:]}, true
}

// BuildLists reconstructs nesting for one contiguous run of list items using
// a depth stack. A deeper item opens a nested list under the last item of the
// current level; a shallower item closes levels while the open depth is
// greater than its own; an equal depth stays on the current level. Closing
// every open level starts a new top-level list.
func BuildLists(items []*ListItem) []*List {
	type level struct {
		depth int
		items *[]*ListItem
	}
	var (
		lists []*List
		stack []level
	)
	openRoot := func(depth int) {
		l := &List{}
		lists = append(lists, l)
		stack = append(stack, level{depth: depth, items: &l.Items})
	}
	for _, it := range items {
		if len(stack) == 0 {
			openRoot(it.Depth)
		} else if top := stack[len(stack)-1]; it.Depth > top.depth {
			parent := (*top.items)[len(*top.items)-1]
			stack = append(stack, level{depth: it.Depth, items: &parent.Children})
		} else if it.Depth < top.depth {
			for len(stack) > 0 && stack[len(stack)-1].depth > it.Depth {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				openRoot(it.Depth)
			}
		}
		top := stack[len(stack)-1]
		*top.items = append(*top.items, it)
	}
	return lists
}

// HTML renders the list as nested <ul>/<li> lines.
func (l *List) HTML() []string {
	var out []string
	writeItems(&out, l.Items)
	return out
}

func writeItems(out *[]string, items []*ListItem) {
	*out = append(*out, "<ul>")
	for _, it := range items {
		if len(it.Children) == 0 {
			*out = append(*out, "<li>"+it.Content+"</li>")
			continue
		}
		*out = append(*out, "<li>"+it.Content)
		writeItems(out, it.Children)
		*out = append(*out, "</li>")
	}
	*out = append(*out, "</ul>")
}

// buildLists replaces every run of list lines with list markup. Any other
// line ends the run.
func (r *Renderer) buildLists(lines []line) []line {
	out := make([]line, 0, len(lines))
	var run []*ListItem
	flush := func() {
		if len(run) == 0 {
			return
		}
		for _, l := range BuildLists(run) {
			for _, h := range l.HTML() {
				out = append(out, line{text: h, kind: listLine})
			}
		}
		run = nil
	}
	for _, l := range lines {
		if l.kind == textLine {
			if it, ok := matchListItem(l.text, r.markers); ok {
				run = append(run, it)
				continue
			}
		}
		flush()
		out = append(out, l)
	}
	flush()
	return out
}
