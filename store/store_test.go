package store_test

import (
	"context"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/veil/dbopen"
	"github.com/hazyhaar/veil/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	return store.New(db)
}

func TestAdd_Uniqueness(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	m := store.Mark{Domain: "example.com", Kind: store.KindBlur, Selector: "#logo", Name: "Logo"}
	if err := s.Add(ctx, m); err != nil {
		t.Fatal(err)
	}
	m.Name = "Company logo"
	if err := s.Add(ctx, m); err != nil {
		t.Fatal(err)
	}

	b, err := s.ListForDomain(ctx, "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Blur) != 1 {
		t.Fatalf("blur bucket: got %d marks, want 1", len(b.Blur))
	}
	if b.Blur[0].Name != "Company logo" {
		t.Fatalf("name: got %q, want updated %q", b.Blur[0].Name, "Company logo")
	}
}

func TestAdd_MutualExclusivity(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, store.Mark{Domain: "example.com", Kind: store.KindHide, Selector: ".ad"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(ctx, store.Mark{Domain: "example.com", Kind: store.KindBlur, Selector: ".ad"}); err != nil {
		t.Fatal(err)
	}

	b, err := s.ListForDomain(ctx, "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Hide) != 0 {
		t.Fatalf("hide bucket: got %d marks, want 0 after re-type", len(b.Hide))
	}
	if len(b.Blur) != 1 {
		t.Fatalf("blur bucket: got %d marks, want 1", len(b.Blur))
	}

	kind, found, err := s.FindSelector(ctx, "example.com", ".ad")
	if err != nil {
		t.Fatal(err)
	}
	if !found || kind != store.KindBlur {
		t.Fatalf("FindSelector: got (%q, %v), want (blur, true)", kind, found)
	}
}

func TestAdd_ImplicitNameKeepsRename(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, store.Mark{Domain: "example.com", Kind: store.KindBlur, Selector: "#logo"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Rename(ctx, "example.com", store.KindBlur, "#logo", "Company logo"); err != nil {
		t.Fatal(err)
	}

	// Re-adding without a name must not reset the rename to the default.
	if err := s.Add(ctx, store.Mark{Domain: "example.com", Kind: store.KindBlur, Selector: "#logo"}); err != nil {
		t.Fatal(err)
	}

	b, err := s.ListForDomain(ctx, "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if b.Blur[0].Name != "Company logo" {
		t.Fatalf("name: got %q, want the rename preserved", b.Blur[0].Name)
	}
}

func TestAdd_DefaultName(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, store.Mark{Domain: "example.com", Kind: store.KindBlur, Selector: "div#main > img:nth-of-type(1)"}); err != nil {
		t.Fatal(err)
	}

	b, _ := s.ListForDomain(ctx, "example.com")
	if b.Blur[0].Name != "Image" {
		t.Fatalf("default name: got %q, want %q", b.Blur[0].Name, "Image")
	}
}

func TestAdd_InvalidKind(t *testing.T) {
	s := newStore(t)
	err := s.Add(context.Background(), store.Mark{Domain: "x", Kind: "sparkle", Selector: "#a"})
	if err == nil {
		t.Fatal("expected error for invalid kind")
	}
}

func TestRemove_AbsentIsNoop(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ch, cancel := s.Hub().Subscribe()
	defer cancel()

	if err := s.Remove(ctx, "example.com", store.KindBlur, "#never-added"); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}

	select {
	case c := <-ch:
		t.Fatalf("Remove absent: unexpected notification %+v", c)
	default:
	}
}

func TestRemove_Notifies(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, store.Mark{Domain: "example.com", Kind: store.KindBlur, Selector: "#x"}); err != nil {
		t.Fatal(err)
	}

	ch, cancel := s.Hub().Subscribe()
	defer cancel()

	if err := s.Remove(ctx, "example.com", store.KindBlur, "#x"); err != nil {
		t.Fatal(err)
	}

	c := <-ch
	if c.Type != store.ChangeMarks || c.Domain != "example.com" {
		t.Fatalf("notification: got %+v", c)
	}
}

func TestRename(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, store.Mark{Domain: "example.com", Kind: store.KindBlur, Selector: "#x", Name: "Old"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Rename(ctx, "example.com", store.KindBlur, "#x", "New"); err != nil {
		t.Fatal(err)
	}

	b, _ := s.ListForDomain(ctx, "example.com")
	if b.Blur[0].Name != "New" {
		t.Fatalf("rename: got %q, want %q", b.Blur[0].Name, "New")
	}

	// Renaming an unknown selector is silent and touches nothing.
	if err := s.Rename(ctx, "example.com", store.KindBlur, "#ghost", "X"); err != nil {
		t.Fatalf("Rename unknown: %v", err)
	}
}

func TestSetText(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, store.Mark{
		Domain: "example.com", Kind: store.KindText, Selector: "#bal",
		CustomText: "***", OriginalText: "1234.56",
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetText(ctx, "example.com", "#bal", "0.00"); err != nil {
		t.Fatal(err)
	}

	m, err := s.Get(ctx, "example.com", store.KindText, "#bal")
	if err != nil || m == nil {
		t.Fatalf("get: m=%v err=%v", m, err)
	}
	if m.CustomText != "0.00" {
		t.Fatalf("customText: got %q, want %q", m.CustomText, "0.00")
	}
	if m.OriginalText != "1234.56" {
		t.Fatalf("originalText: got %q, want preserved snapshot", m.OriginalText)
	}

	// Unknown selectors are silent and touch nothing.
	if err := s.SetText(ctx, "example.com", "#ghost", "x"); err != nil {
		t.Fatalf("SetText unknown: %v", err)
	}
	if m, _ := s.Get(ctx, "example.com", store.KindText, "#ghost"); m != nil {
		t.Fatalf("ghost mark created: %+v", m)
	}
}

func TestListForDomain_NoCrossDomainLeakage(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, store.Mark{Domain: "a.com", Kind: store.KindBlur, Selector: "#x"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(ctx, store.Mark{Domain: "b.com", Kind: store.KindBlur, Selector: "#y"}); err != nil {
		t.Fatal(err)
	}

	b, err := s.ListForDomain(ctx, "a.com")
	if err != nil {
		t.Fatal(err)
	}
	if b.Len() != 1 || b.Blur[0].Selector != "#x" {
		t.Fatalf("a.com buckets leaked: %+v", b)
	}
}

func TestTextMark_PreservesOriginalText(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, store.Mark{
		Domain: "example.com", Kind: store.KindText, Selector: "#balance",
		CustomText: "€1,00", OriginalText: "€123.456,78",
	}); err != nil {
		t.Fatal(err)
	}

	// A later text edit must not clobber the first-edit snapshot.
	if err := s.Add(ctx, store.Mark{
		Domain: "example.com", Kind: store.KindText, Selector: "#balance",
		CustomText: "€2,00",
	}); err != nil {
		t.Fatal(err)
	}

	m, err := s.Get(ctx, "example.com", store.KindText, "#balance")
	if err != nil {
		t.Fatal(err)
	}
	if m.CustomText != "€2,00" {
		t.Fatalf("customText: got %q, want %q", m.CustomText, "€2,00")
	}
	if m.OriginalText != "€123.456,78" {
		t.Fatalf("originalText: got %q, want preserved snapshot", m.OriginalText)
	}
}
