package selector

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Query resolves a selector against a parsed document and returns matching
// element nodes in document order. The supported dialect covers everything
// Synthesize emits plus what preset lists use: tag, #id, .class,
// [attr], [attr='value'], :nth-of-type(n), :nth-child(n), descendant and
// child combinators, and comma-separated groups.
func Query(doc *html.Node, sel string) ([]*html.Node, error) {
	groups, err := parse(sel)
	if err != nil {
		return nil, err
	}

	var out []*html.Node
	seen := make(map[*html.Node]bool)
	walk(doc, func(n *html.Node) {
		if seen[n] {
			return
		}
		for _, g := range groups {
			if matchUp(n, g, len(g.parts)-1) {
				seen[n] = true
				out = append(out, n)
				return
			}
		}
	})
	return out, nil
}

// First returns the first match of sel in doc, or nil.
func First(doc *html.Node, sel string) (*html.Node, error) {
	nodes, err := Query(doc, sel)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// --- matching ---

type attrMatch struct {
	name  string
	value string
	exact bool // false = presence check only
}

type compound struct {
	tag       string
	id        string
	classes   []string
	attrs     []attrMatch
	nthOfType int // 0 = unset
	nthChild  int
}

// complexSel is a chain of compounds joined by combinators.
// child[i] reports whether parts[i] must be a direct child of parts[i-1];
// otherwise any descendant. child[0] is unused.
type complexSel struct {
	parts []compound
	child []bool
}

// matchUp reports whether parts[0..i] match with parts[i] anchored at n.
func matchUp(n *html.Node, cs complexSel, i int) bool {
	if !matchCompound(n, cs.parts[i]) {
		return false
	}
	if i == 0 {
		return true
	}
	if cs.child[i] {
		p := parentElement(n)
		return p != nil && matchUp(p, cs, i-1)
	}
	for p := parentElement(n); p != nil; p = parentElement(p) {
		if matchUp(p, cs, i-1) {
			return true
		}
	}
	return false
}

func matchCompound(n *html.Node, c compound) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && c.tag != "*" && n.Data != c.tag {
		return false
	}
	if c.id != "" && attrVal(n, "id") != c.id {
		return false
	}
	for _, cls := range c.classes {
		if !hasClass(n, cls) {
			return false
		}
	}
	for _, a := range c.attrs {
		v, ok := lookupAttr(n, a.name)
		if !ok {
			return false
		}
		if a.exact && v != a.value {
			return false
		}
	}
	if c.nthOfType > 0 && nthOfType(n) != c.nthOfType {
		return false
	}
	if c.nthChild > 0 && nthChild(n) != c.nthChild {
		return false
	}
	return true
}

func parentElement(n *html.Node) *html.Node {
	p := n.Parent
	if p != nil && p.Type == html.ElementNode {
		return p
	}
	return nil
}

func lookupAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func attrVal(n *html.Node, name string) string {
	v, _ := lookupAttr(n, name)
	return v
}

func hasClass(n *html.Node, cls string) bool {
	for _, c := range strings.Fields(attrVal(n, "class")) {
		if c == cls {
			return true
		}
	}
	return false
}

// nthOfType returns the 1-based position of n among same-tag element siblings.
func nthOfType(n *html.Node) int {
	pos := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && s.Data == n.Data {
			pos++
		}
	}
	return pos
}

// nthChild returns the 1-based position of n among element siblings.
func nthChild(n *html.Node) int {
	pos := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			pos++
		}
	}
	return pos
}

// --- parsing ---

func parse(sel string) ([]complexSel, error) {
	var groups []complexSel
	for _, part := range splitTop(sel, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("selector: empty group in %q", sel)
		}
		cs, err := parseComplex(part)
		if err != nil {
			return nil, err
		}
		groups = append(groups, cs)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("selector: empty selector")
	}
	return groups, nil
}

// splitTop splits on sep outside brackets and quotes.
func splitTop(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '[' || c == '(':
			depth++
		case c == ']' || c == ')':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func parseComplex(s string) (complexSel, error) {
	var cs complexSel
	i := 0
	expectCompound := true
	childNext := false

	for i < len(s) {
		switch {
		case s[i] == ' ' || s[i] == '\t':
			i++
		case s[i] == '>':
			if expectCompound {
				return cs, fmt.Errorf("selector: misplaced '>' in %q", s)
			}
			childNext = true
			expectCompound = true
			i++
		default:
			end := compoundEnd(s, i)
			c, err := parseCompound(s[i:end])
			if err != nil {
				return cs, err
			}
			if len(cs.parts) == 0 && childNext {
				return cs, fmt.Errorf("selector: leading '>' in %q", s)
			}
			cs.parts = append(cs.parts, c)
			cs.child = append(cs.child, childNext)
			childNext = false
			expectCompound = false
			i = end
		}
	}

	if expectCompound || len(cs.parts) == 0 {
		return cs, fmt.Errorf("selector: incomplete selector %q", s)
	}
	return cs, nil
}

// compoundEnd finds the end of the compound starting at i, respecting
// brackets and quotes.
func compoundEnd(s string, i int) int {
	depth := 0
	var quote byte
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '[' || c == '(':
			depth++
		case c == ']' || c == ')':
			depth--
		case (c == ' ' || c == '\t' || c == '>') && depth == 0:
			return i
		}
	}
	return len(s)
}

func parseCompound(s string) (compound, error) {
	var c compound
	i := 0

	// Optional leading tag or universal.
	j := i
	for j < len(s) && isNameChar(s[j]) {
		j++
	}
	if j > i {
		c.tag = strings.ToLower(s[i:j])
		i = j
	} else if i < len(s) && s[i] == '*' {
		c.tag = "*"
		i++
	}

	for i < len(s) {
		switch s[i] {
		case '#':
			i++
			j = i
			for j < len(s) && isNameChar(s[j]) {
				j++
			}
			if j == i {
				return c, fmt.Errorf("selector: empty id in %q", s)
			}
			c.id = s[i:j]
			i = j
		case '.':
			i++
			j = i
			for j < len(s) && isNameChar(s[j]) {
				j++
			}
			if j == i {
				return c, fmt.Errorf("selector: empty class in %q", s)
			}
			c.classes = append(c.classes, s[i:j])
			i = j
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return c, fmt.Errorf("selector: unclosed attribute in %q", s)
			}
			a, err := parseAttr(s[i+1 : i+end])
			if err != nil {
				return c, err
			}
			c.attrs = append(c.attrs, a)
			i += end + 1
		case ':':
			i++
			j = i
			for j < len(s) && (isNameChar(s[j])) {
				j++
			}
			name := s[i:j]
			if j >= len(s) || s[j] != '(' {
				return c, fmt.Errorf("selector: unsupported pseudo-class :%s", name)
			}
			rp := strings.IndexByte(s[j:], ')')
			if rp < 0 {
				return c, fmt.Errorf("selector: unclosed pseudo-class in %q", s)
			}
			arg := s[j+1 : j+rp]
			n, err := strconv.Atoi(strings.TrimSpace(arg))
			if err != nil || n < 1 {
				return c, fmt.Errorf("selector: bad index %q in :%s", arg, name)
			}
			switch name {
			case "nth-of-type":
				c.nthOfType = n
			case "nth-child":
				c.nthChild = n
			default:
				return c, fmt.Errorf("selector: unsupported pseudo-class :%s", name)
			}
			i = j + rp + 1
		default:
			return c, fmt.Errorf("selector: unexpected %q in %q", s[i], s)
		}
	}

	return c, nil
}

func parseAttr(s string) (attrMatch, error) {
	s = strings.TrimSpace(s)
	eq := strings.IndexByte(s, '=')
	if eq < 0 {
		if s == "" {
			return attrMatch{}, fmt.Errorf("selector: empty attribute selector")
		}
		return attrMatch{name: s}, nil
	}

	name := strings.TrimSpace(s[:eq])
	val := strings.TrimSpace(s[eq+1:])
	if name == "" {
		return attrMatch{}, fmt.Errorf("selector: attribute selector missing name")
	}
	if len(val) >= 2 && (val[0] == '\'' || val[0] == '"') && val[len(val)-1] == val[0] {
		val = val[1 : len(val)-1]
	}
	return attrMatch{name: name, value: val, exact: true}, nil
}

func isNameChar(c byte) bool {
	return c == '-' || c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
