package redact

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/veil/selector"
	"github.com/hazyhaar/veil/store"
)

// ApplySnapshot applies marks to a parsed document. It always starts from a
// full marker reset so stale markers from a previous selector set never
// linger; when the extension is inactive that reset is the whole job.
//
// Selector failures are collected per record and never abort the remaining
// records. Elements carrying the guard class are skipped in every pass.
func ApplySnapshot(doc *html.Node, flags store.Flags, b store.Buckets) Result {
	Strip(doc)

	var res Result
	if !flags.Active {
		return res
	}

	injectStyle(doc)

	for _, kind := range store.Kinds {
		marker := MarkerClass(kind)
		for _, m := range b.ForKind(kind) {
			nodes, err := selector.Query(doc, m.Selector)
			if err != nil {
				res.Failures = append(res.Failures, Failure{Selector: m.Selector, Err: err.Error()})
				continue
			}
			for _, n := range nodes {
				if nodeHasClass(n, ClassGuard) {
					continue
				}
				addClass(n, marker)
				if kind == store.KindText {
					setAttr(n, AttrText, m.CustomText)
				}
				res.Applied++
			}
		}
	}
	return res
}

// Strip removes every modification marker, replacement attribute, and the
// injected stylesheet from doc. This is the complete off state: afterwards
// no element carries a blur, hide, or text-replace marker.
func Strip(doc *html.Node) {
	var styleNodes []*html.Node

	walkElements(doc, func(n *html.Node) {
		if n.Data == "style" && getAttr(n, "id") == StyleID {
			styleNodes = append(styleNodes, n)
			return
		}
		for _, cls := range MarkerClasses() {
			removeClass(n, cls)
		}
		removeAttr(n, AttrText)
	})

	for _, n := range styleNodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func injectStyle(doc *html.Node) {
	var head *html.Node
	walkElements(doc, func(n *html.Node) {
		if head == nil && n.Data == "head" {
			head = n
		}
	})
	if head == nil {
		return
	}

	style := &html.Node{
		Type: html.ElementNode,
		Data: "style",
		Attr: []html.Attribute{{Key: "id", Val: StyleID}},
	}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: StyleCSS})
	head.AppendChild(style)
}

func walkElements(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkElements(c, fn)
	}
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func nodeHasClass(n *html.Node, cls string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == cls {
			return true
		}
	}
	return false
}

func addClass(n *html.Node, cls string) {
	if nodeHasClass(n, cls) {
		return
	}
	existing := getAttr(n, "class")
	if existing == "" {
		setAttr(n, "class", cls)
		return
	}
	setAttr(n, "class", existing+" "+cls)
}

func removeClass(n *html.Node, cls string) {
	existing := getAttr(n, "class")
	if existing == "" {
		return
	}
	fields := strings.Fields(existing)
	kept := fields[:0]
	for _, c := range fields {
		if c != cls {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		removeAttr(n, "class")
		return
	}
	setAttr(n, "class", strings.Join(kept, " "))
}
