// Package selector synthesizes stable CSS selectors for DOM elements and
// resolves the emitted dialect against parsed HTML documents.
//
// Synthesis works on a captured element descriptor rather than a live DOM
// handle, so the same logic serves both the in-page picker (which reports
// descriptors over a CDP binding) and the snapshot path (which walks a
// golang.org/x/net/html tree).
package selector

import (
	"fmt"
	"strings"
)

// Segment is one step of an element's structural path, ordered root to leaf.
type Segment struct {
	Tag       string `json:"tag"`        // lower-case tag name
	ID        string `json:"id"`         // id attribute, may be empty
	NthOfType int    `json:"nth"`        // 1-based position among same-tag siblings
}

// ElementInfo describes a DOM element at capture time. The picker JS builds
// one per click; DescribeNode builds one from a parsed document.
type ElementInfo struct {
	Tag     string   `json:"tag"`
	ID      string   `json:"id"`
	Classes []string `json:"classes"`

	// ClassCount maps each class to the number of elements in the document
	// matching ".class" alone. Classes absent from the map are treated as
	// non-unique.
	ClassCount map[string]int `json:"classCount"`

	// Path is the structural ancestor chain from the document root down to
	// the element itself (the last segment is the element).
	Path []Segment `json:"path"`

	// Text is the element's trimmed visible text at capture time, kept so a
	// text replacement can record what it covered.
	Text string `json:"text,omitempty"`
}

// Synthesizer produces selectors for captured elements.
type Synthesizer struct {
	// Ignore lists ephemeral classes (hover and modification markers
	// injected by veil itself) excluded from the unique-class check.
	Ignore []string
}

// Synthesize converts a captured element into a CSS selector, deterministic
// for a given DOM state. Priority:
//
//  1. "#id" when the element has an id.
//  2. ".class" for the first class that alone matches exactly one element.
//  3. A structural "tag:nth-of-type(n) > …" path, terminating early at the
//     nearest ancestor with an id ("tag#id").
//
// The structural fallback is deliberately class-unaware: nth-of-type paths
// may break if the page reorders siblings between sessions. Accepted
// tradeoff, matching the unique-class tie-break (first match wins, the
// remaining classes are not validated).
func (s *Synthesizer) Synthesize(el ElementInfo) string {
	if el.ID != "" {
		return "#" + el.ID
	}

	for _, cls := range el.Classes {
		if s.ignored(cls) {
			continue
		}
		if el.ClassCount[cls] == 1 {
			return "." + cls
		}
	}

	return structuralPath(el.Path)
}

func (s *Synthesizer) ignored(cls string) bool {
	for _, ig := range s.Ignore {
		if cls == ig {
			return true
		}
	}
	return false
}

// structuralPath joins path segments leaf-up, stopping at the first ancestor
// that carries an id.
func structuralPath(path []Segment) string {
	if len(path) == 0 {
		return ""
	}

	var parts []string
	for i := len(path) - 1; i >= 0; i-- {
		seg := path[i]
		if seg.ID != "" {
			parts = append(parts, seg.Tag+"#"+seg.ID)
			break
		}
		parts = append(parts, fmt.Sprintf("%s:nth-of-type(%d)", seg.Tag, seg.NthOfType))
	}

	// parts were collected leaf-first; reverse to root-first.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

// DefaultName derives a human-readable label from a selector's final tag,
// used when a mark is created without an explicit name.
func DefaultName(sel string) string {
	last := sel
	if i := strings.LastIndex(sel, ">"); i >= 0 {
		last = sel[i+1:]
	}
	last = strings.TrimSpace(last)

	base := strings.ToLower(last)
	for i, c := range base {
		if c == '.' || c == '#' || c == '[' || c == ':' {
			base = base[:i]
			break
		}
	}

	names := map[string]string{
		"button":   "Button",
		"img":      "Image",
		"table":    "Table",
		"h1":       "Heading",
		"h2":       "Heading",
		"h3":       "Heading",
		"h4":       "Heading",
		"h5":       "Heading",
		"h6":       "Heading",
		"input":    "Field",
		"textarea": "Text area",
		"select":   "Dropdown",
		"a":        "Link",
		"video":    "Video",
		"audio":    "Audio",
		"ul":       "List",
		"ol":       "List",
		"li":       "List item",
		"nav":      "Navigation",
		"form":     "Form",
		"div":      "Container",
		"p":        "Paragraph",
		"span":     "Text",
	}
	if n, ok := names[base]; ok {
		return n
	}
	return "Element"
}
