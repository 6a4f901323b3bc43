package directive

import "strings"

// block is one fenced region of the source text.
type block struct {
	offset int    // byte offset of the opening fence
	header string // text after the opening fence, up to end of line
	body   string // content between the header line and the closing fence
}

// scanBlocks walks text fence by fence. Every block is consumed whole,
// directive or not, so a closing fence is never mistaken for an opener.
// Unterminated blocks end the scan.
func scanBlocks(text string) []block {
	var blocks []block
	pos := 0
	for pos < len(text) {
		i := strings.Index(text[pos:], fence)
		if i < 0 {
			break
		}
		start := pos + i
		headerStart := start + len(fence)
		// Runs of four or more backticks are not openers we understand.
		for headerStart < len(text) && text[headerStart] == '`' {
			headerStart++
		}

		lineEnd := strings.IndexByte(text[headerStart:], '\n')
		line := text[headerStart:]
		if lineEnd >= 0 {
			line = text[headerStart : headerStart+lineEnd]
		}

		// Inline form: ```tag:arg``` on a single line.
		if j := strings.Index(line, fence); j >= 0 {
			blocks = append(blocks, block{offset: start, header: line[:j]})
			pos = headerStart + j + len(fence)
			continue
		}
		if lineEnd < 0 {
			break
		}

		bodyStart := headerStart + lineEnd + 1
		bodyEnd, next, ok := findClose(text, bodyStart)
		if !ok {
			break
		}
		blocks = append(blocks, block{
			offset: start,
			header: strings.TrimRight(line, "\r"),
			body:   text[bodyStart:bodyEnd],
		})
		pos = next
	}
	return blocks
}

// findClose locates the fence closing a body that starts at from. Nested
// fenced blocks (a line opening with ```lang) are balanced so that a file
// body may itself contain markdown code blocks. When no closing line is
// found, the first fence anywhere after from is used.
func findClose(text string, from int) (bodyEnd, next int, ok bool) {
	depth := 0
	lineStart := from
	for lineStart <= len(text) {
		end := strings.IndexByte(text[lineStart:], '\n')
		lineEnd := len(text)
		if end >= 0 {
			lineEnd = lineStart + end
		}
		line := strings.TrimSpace(text[lineStart:lineEnd])

		if strings.HasPrefix(line, fence) {
			rest := strings.TrimSpace(strings.TrimLeft(line, "`"))
			switch {
			case rest != "":
				depth++
			case depth > 0:
				depth--
			default:
				closeAt := lineStart + strings.Index(text[lineStart:lineEnd], fence)
				return lineStart, skipFence(text, closeAt), true
			}
		}
		if end < 0 {
			break
		}
		lineStart = lineEnd + 1
	}

	if i := strings.Index(text[from:], fence); i >= 0 {
		return from + i, from + i + len(fence), true
	}
	return 0, 0, false
}

func skipFence(text string, at int) int {
	at += len(fence)
	for at < len(text) && text[at] == '`' {
		at++
	}
	return at
}
