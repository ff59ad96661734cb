// Package textblock embeds a generated block of text inside a larger free-text
// field, delimited by two sentinel lines.
//
//	...human-written text...
//	=== AI SUMMARY START ===
//	generated text
//	=== AI SUMMARY END ===
package textblock

import "strings"

const (
	// StartMarker opens an embedded summary block.
	StartMarker = "=== AI SUMMARY START ==="
	// EndMarker closes an embedded summary block.
	EndMarker = "=== AI SUMMARY END ==="
)

// Wrapper reads and writes blocks delimited by a pair of marker lines.
type Wrapper struct {
	Start string
	End   string
}

// Default is the wrapper used for issue status summaries.
var Default = Wrapper{Start: StartMarker, End: EndMarker}

// Wrap surrounds text with the start and end marker lines.
func (w Wrapper) Wrap(text string) string {
	return w.Start + "\n" + text + "\n" + w.End
}

// Has reports whether text contains a start marker.
func (w Wrapper) Has(text string) bool {
	return strings.Contains(text, w.Start)
}

// Get returns the text strictly between the markers, or "" when there is no
// block. A block missing its end marker extends to the end of text.
func (w Wrapper) Get(text string) string {
	start, end, ok := w.locate(text)
	if !ok {
		return ""
	}
	body := text[start+len(w.Start) : end]
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimSuffix(body, "\n")
	return body
}

// Upsert replaces an existing block with a freshly wrapped one holding
// content, keeping its position. Without an existing block the new one is
// appended on its own line.
func (w Wrapper) Upsert(text, content string) string {
	block := w.Wrap(content)
	start, end, ok := w.locate(text)
	if !ok {
		if text == "" {
			return block
		}
		return strings.TrimRight(text, "\n") + "\n" + block
	}
	return text[:start] + block + text[w.blockEnd(text, end):]
}

// Remove deletes the block and the newline that follows it, if any.
func (w Wrapper) Remove(text string) string {
	start, end, ok := w.locate(text)
	if !ok {
		return text
	}
	rest := strings.TrimPrefix(text[w.blockEnd(text, end):], "\n")
	return text[:start] + rest
}

// locate returns the offset of the start marker and the offset of the end
// marker (len(text) when the end marker is missing).
func (w Wrapper) locate(text string) (int, int, bool) {
	start := strings.Index(text, w.Start)
	if start < 0 {
		return 0, 0, false
	}
	after := start + len(w.Start)
	rel := strings.Index(text[after:], w.End)
	if rel < 0 {
		return start, len(text), true
	}
	return start, after + rel, true
}

func (w Wrapper) blockEnd(text string, end int) int {
	if end >= len(text) {
		return len(text)
	}
	return end + len(w.End)
}

// Wrap surrounds text with the default markers.
func Wrap(text string) string { return Default.Wrap(text) }

// Get extracts the status summary block using the default markers.
func Get(text string) string { return Default.Get(text) }

// Upsert replaces or appends the status summary block using the default markers.
func Upsert(text, content string) string { return Default.Upsert(text, content) }

// Remove drops the status summary block using the default markers.
func Remove(text string) string { return Default.Remove(text) }

// Has reports whether text carries a status summary block.
func Has(text string) bool { return Default.Has(text) }
