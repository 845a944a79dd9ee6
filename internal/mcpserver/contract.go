package mcpserver

const fence = "```"

// MarkdownContract describes the Markdown subset Quire renders, for LLM
// clients writing notes.
const MarkdownContract = `# Quire Markdown Subset

Quire renders a fixed subset of Markdown. Anything else is shown as literal
text, and raw HTML is always escaped.

## Supported constructs

- Headers: ` + "`# `" + `, ` + "`## `" + ` and ` + "`### `" + ` at the start of a line, followed by a space.
- Emphasis: ` + "`**strong**`" + ` and ` + "`*em*`" + `, opened and closed on the same line.
- Inline code: ` + "`text`" + ` between single backticks on one line.
- Code blocks: text between ` + fence + ` fences, which may span lines. Code
  blocks are never parsed further.
- Links: ` + "`[label](target)`" + `. Link to another note with its file name,
  e.g. ` + "`[plan](plan.md)`" + `; such links show up as backlinks. Keep a
  link on one line: the target ends at the first ` + "`)`" + `, and a line break
  inside it ends up in the link address.
- Tables: two or more consecutive lines starting and ending with ` + "`|`" + `. The
  first row is the header; rows made only of ` + "`-`, `:`" + ` and spaces are
  separators.
- Lists: lines starting with ` + "`*`, `-` or `+`" + ` and a space. Indent by two
  spaces per nesting level. Do not mix marker characters within one list.

## Rules

1. Note names use only ` + "`A-Z a-z 0-9 . _ -`" + ` and end with ` + "`.md`" + `; other
   characters are removed.
2. Every save keeps a timestamped snapshot. Only the most recent snapshots are
   retained, so restore from ` + "`list_snapshots`" + ` soon after a bad edit.
3. Use ` + "`if_match`" + ` with the checksum from ` + "`read_note`" + ` to avoid
   overwriting a concurrent edit.

## Example

` + fence + `markdown
# Weekly standup

Attendees: **Alice**, *Bob*.

| Item | Owner |
|------|-------|
| Release | Alice |

* Action items
  * review the [design](design.md)
  * update ` + "`CHANGELOG`" + `
` + fence + `
`
