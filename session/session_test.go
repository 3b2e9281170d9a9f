package session

import (
	"testing"

	"github.com/go-rod/rod"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/veil/dbopen"
	"github.com/hazyhaar/veil/store"
)

func TestDomainOf(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://bank.example/accounts?tab=1", "bank.example"},
		{"http://sub.bank.example:8443/x", "sub.bank.example"},
		{"bank.example", "bank.example"},
		{"", ""},
		{"not a url at all", ""},
		{"/just/a/path", ""},
	}
	for _, tc := range cases {
		if got := DomainOf(tc.in); got != tc.want {
			t.Errorf("DomainOf(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSession_CloseNeverStarted(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	st := store.New(db)

	s, err := New("tab_x", Config{Page: &rod.Page{}, Store: st, URL: "https://bank.example"})
	if err != nil {
		t.Fatal(err)
	}
	// Close before Start (or after a failed Start, which unwinds its own
	// components) must not touch the page or block on the watch loop.
	s.Close()
}

func TestManager_ActiveFollowsMembership(t *testing.T) {
	m := NewManager()

	if m.Active() != nil {
		t.Fatal("empty manager has an active session")
	}

	a := &Session{id: "tab_a", domain: "a.example"}
	b := &Session{id: "tab_b", domain: "b.example"}
	m.Add(a)
	m.Add(b)

	if got := m.Active(); got != a {
		t.Fatalf("active: got %v, want first added", got)
	}
	if !m.SetActive("tab_b") {
		t.Fatal("SetActive rejected a live session")
	}
	if m.SetActive("tab_zzz") {
		t.Fatal("SetActive accepted an unknown id")
	}
	if got := m.Active(); got != b {
		t.Fatalf("active after SetActive: got %v", got)
	}

	// Removing the active session falls back to a survivor, not nil.
	if m.Remove("tab_b") != b {
		t.Fatal("Remove did not return the session")
	}
	if got := m.Active(); got != a {
		t.Fatalf("active after removal: got %v, want survivor", got)
	}

	m.Remove("tab_a")
	if m.Active() != nil {
		t.Fatal("active not cleared after last removal")
	}
}

func TestManager_ListOrdered(t *testing.T) {
	m := NewManager()
	m.Add(&Session{id: "tab_c"})
	m.Add(&Session{id: "tab_a"})
	m.Add(&Session{id: "tab_b"})

	got := m.List()
	if len(got) != 3 {
		t.Fatalf("list: got %d sessions", len(got))
	}
	for i, want := range []string{"tab_a", "tab_b", "tab_c"} {
		if got[i].ID() != want {
			t.Errorf("list[%d]: got %s, want %s", i, got[i].ID(), want)
		}
	}
}
