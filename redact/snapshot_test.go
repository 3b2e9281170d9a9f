package redact

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/veil/store"
)

func parseDoc(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func render(t *testing.T, doc *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

func countMarked(doc *html.Node, cls string) int {
	n := 0
	walkElements(doc, func(el *html.Node) {
		if nodeHasClass(el, cls) {
			n++
		}
	})
	return n
}

var activeFlags = store.Flags{Active: true}

func TestApplySnapshot_Blur(t *testing.T) {
	doc := parseDoc(t, `<html><body><img id="avatar"><img></body></html>`)

	res := ApplySnapshot(doc, activeFlags, store.Buckets{
		Blur: []store.Mark{{Selector: "#avatar"}},
	})
	if len(res.Failures) != 0 {
		t.Fatalf("failures: %v", res.Failures)
	}
	if res.Applied != 1 {
		t.Fatalf("applied: got %d, want 1", res.Applied)
	}
	if countMarked(doc, ClassBlur) != 1 {
		t.Fatal("expected exactly one blurred element")
	}
	if !strings.Contains(render(t, doc), StyleID) {
		t.Fatal("stylesheet not injected")
	}
}

func TestApplySnapshot_Idempotent(t *testing.T) {
	doc := parseDoc(t, `<html><body>
		<div class="row">a</div><div class="row">b</div>
		<span id="bal">42</span>
	</body></html>`)

	buckets := store.Buckets{
		Blur: []store.Mark{{Selector: ".row"}},
		Text: []store.Mark{{Selector: "#bal", CustomText: "xxx"}},
	}

	ApplySnapshot(doc, activeFlags, buckets)
	once := render(t, doc)
	ApplySnapshot(doc, activeFlags, buckets)
	twice := render(t, doc)

	if once != twice {
		t.Fatalf("not idempotent:\nonce:  %s\ntwice: %s", once, twice)
	}
}

func TestApplySnapshot_OffStateCompleteness(t *testing.T) {
	doc := parseDoc(t, `<html><body>
		<div class="row">a</div>
		<span id="bal">42</span>
	</body></html>`)

	buckets := store.Buckets{
		Blur: []store.Mark{{Selector: ".row"}},
		Hide: []store.Mark{{Selector: "div"}},
		Text: []store.Mark{{Selector: "#bal", CustomText: "xxx"}},
	}
	ApplySnapshot(doc, activeFlags, buckets)

	// Deactivate: every marker must go, buckets notwithstanding.
	res := ApplySnapshot(doc, store.Flags{Active: false}, buckets)
	if res.Applied != 0 {
		t.Fatalf("off state applied %d markers", res.Applied)
	}
	for _, cls := range MarkerClasses() {
		if n := countMarked(doc, cls); n != 0 {
			t.Fatalf("off state: %d elements still carry %s", n, cls)
		}
	}
	out := render(t, doc)
	if strings.Contains(out, AttrText) {
		t.Fatal("off state: replacement attribute still present")
	}
	if strings.Contains(out, StyleID) {
		t.Fatal("off state: stylesheet still present")
	}
}

func TestApplySnapshot_TextReplaceRoundTrip(t *testing.T) {
	doc := parseDoc(t, `<html><body><span id="bal">42</span></body></html>`)

	buckets := store.Buckets{Text: []store.Mark{{Selector: "#bal", CustomText: "hidden"}}}
	ApplySnapshot(doc, activeFlags, buckets)

	out := render(t, doc)
	if !strings.Contains(out, AttrText+`="hidden"`) {
		t.Fatal("replacement attribute missing")
	}
	// The original DOM text is preserved underneath.
	if !strings.Contains(out, ">42<") {
		t.Fatal("original text must stay in the DOM")
	}

	// Removing the record restores the pre-edit rendering.
	ApplySnapshot(doc, activeFlags, store.Buckets{})
	out = render(t, doc)
	if strings.Contains(out, AttrText) || strings.Contains(out, ClassText) {
		t.Fatal("text-replace markers must be gone after removal")
	}
	if !strings.Contains(out, ">42<") {
		t.Fatal("original text lost")
	}
}

func TestApplySnapshot_GuardSkipped(t *testing.T) {
	doc := parseDoc(t, `<html><body>
		<div class="panel `+ClassGuard+`">veil ui</div>
		<div class="panel">page content</div>
	</body></html>`)

	res := ApplySnapshot(doc, activeFlags, store.Buckets{
		Hide: []store.Mark{{Selector: ".panel"}},
	})
	if res.Applied != 1 {
		t.Fatalf("applied: got %d, want 1 (guarded element skipped)", res.Applied)
	}

	walkElements(doc, func(n *html.Node) {
		if nodeHasClass(n, ClassGuard) && nodeHasClass(n, ClassHide) {
			t.Fatal("guarded element was hidden")
		}
	})
}

func TestApplySnapshot_BadSelectorContained(t *testing.T) {
	doc := parseDoc(t, `<html><body><img id="a"><img id="b"></body></html>`)

	res := ApplySnapshot(doc, activeFlags, store.Buckets{
		Blur: []store.Mark{
			{Selector: "[[[broken"},
			{Selector: "#b"},
		},
	})

	if len(res.Failures) != 1 || res.Failures[0].Selector != "[[[broken" {
		t.Fatalf("failures: %+v", res.Failures)
	}
	if res.Applied != 1 {
		t.Fatalf("applied: got %d, want 1 (good selector after bad one)", res.Applied)
	}
	if countMarked(doc, ClassBlur) != 1 {
		t.Fatal("#b should still be blurred")
	}
}

func TestApplySnapshot_StaleMarkersReset(t *testing.T) {
	doc := parseDoc(t, `<html><body><p id="one">x</p><p id="two">y</p></body></html>`)

	ApplySnapshot(doc, activeFlags, store.Buckets{Blur: []store.Mark{{Selector: "#one"}}})
	// Selector set changed: #one is no longer marked anywhere.
	ApplySnapshot(doc, activeFlags, store.Buckets{Blur: []store.Mark{{Selector: "#two"}}})

	var one, two *html.Node
	walkElements(doc, func(n *html.Node) {
		switch getAttr(n, "id") {
		case "one":
			one = n
		case "two":
			two = n
		}
	})
	if nodeHasClass(one, ClassBlur) {
		t.Fatal("stale marker on #one survived the reset")
	}
	if !nodeHasClass(two, ClassBlur) {
		t.Fatal("#two not marked")
	}
}

func TestStyleCSS_MarkersOverridePageRules(t *testing.T) {
	// Pages routinely carry higher-specificity rules for the same elements;
	// every marker declaration must win regardless.
	for _, rule := range []string{
		"." + ClassBlur + " { filter: blur(5px) !important; }",
		"." + ClassHide + " { visibility: hidden !important; }",
		"." + ClassText + " { visibility: hidden !important; position: relative !important; }",
	} {
		if !strings.Contains(StyleCSS, rule) {
			t.Errorf("stylesheet missing %q", rule)
		}
	}
}
