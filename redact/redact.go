// Package redact applies stored marks to documents: blur, hide, and text
// replacement. The live path evaluates an injected script in the page over
// CDP; the snapshot path applies the same treatment to a parsed
// golang.org/x/net/html tree, which is also how the semantics are tested
// without a browser.
//
// Both paths share one contract: a full marker reset followed by the three
// bucket passes in fixed order (blur, hide, textReplace), guard-marked
// elements skipped, per-selector failures contained. Applying twice in a row
// yields the same document state as applying once.
package redact

import "github.com/hazyhaar/veil/store"

// Marker classes and attributes injected into pages. The hover class is the
// picker's highlight; the guard class protects veil's own UI elements from
// being redacted by a careless selector.
const (
	ClassBlur  = "veil-blur"
	ClassHide  = "veil-hide"
	ClassText  = "veil-text"
	ClassHover = "veil-hover"
	ClassGuard = "veil-keep"

	AttrText = "data-veil-text"

	// StyleID identifies the injected stylesheet element.
	StyleID = "veil-style"
)

// StyleCSS is the stylesheet backing the marker classes. Text replacement
// hides the element's real text (descendants included) and renders the
// replacement from the data attribute, leaving the DOM text intact for
// restoration.
const StyleCSS = `
.` + ClassBlur + ` { filter: blur(5px) !important; }
.` + ClassHide + ` { visibility: hidden !important; }
.` + ClassText + ` { visibility: hidden !important; position: relative !important; }
.` + ClassText + `::after {
	content: attr(` + AttrText + `);
	visibility: visible;
	position: absolute;
	left: 0;
	top: 0;
}
.` + ClassHover + ` {
	outline: 2px dashed #007aff !important;
	background: rgba(0,122,255,0.1) !important;
	cursor: pointer !important;
}
.` + ClassBlur + `.` + ClassHover + ` { filter: none !important; outline-color: #dc3545 !important; }
`

// MarkerClass maps a modification kind to its marker class.
func MarkerClass(k store.Kind) string {
	switch k {
	case store.KindBlur:
		return ClassBlur
	case store.KindHide:
		return ClassHide
	case store.KindText:
		return ClassText
	}
	return ""
}

// MarkerClasses lists the three modification markers, in applicator order.
func MarkerClasses() []string {
	return []string{ClassBlur, ClassHide, ClassText}
}

// EphemeralClasses lists every class veil itself injects. The selector
// synthesizer excludes these so a captured element's identity never depends
// on veil's own markers.
func EphemeralClasses() []string {
	return []string{ClassBlur, ClassHide, ClassText, ClassHover, ClassGuard}
}

// Failure records one selector that could not be applied. One bad selector
// never aborts the remaining records.
type Failure struct {
	Selector string `json:"selector"`
	Err      string `json:"error"`
}

// Result summarises an applicator pass.
type Result struct {
	Applied  int       `json:"applied"`  // elements that received a marker
	Failures []Failure `json:"failures,omitempty"`
}
