package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/veil/bridge"
	"github.com/hazyhaar/veil/dbopen"
	"github.com/hazyhaar/veil/preset"
	"github.com/hazyhaar/veil/session"
	"github.com/hazyhaar/veil/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	st := store.New(db)

	catalog, err := preset.Parse([]byte(`{"preset.example":[{"name":"Balances","selector":".balance","type":"blur"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(Config{
		Store:    st,
		Sessions: session.NewManager(),
		Presets:  catalog,
	}), st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestState_DegradedWithoutSession(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("state: status %d", rec.Code)
	}
	var view stateView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Attached || view.Tab != nil {
		t.Fatalf("no session must mean detached state: %+v", view)
	}
	if view.Flags.Active {
		t.Fatal("fresh store reported active")
	}
}

func TestFlags_SetAndCascade(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPut, "/v1/flags/"+store.FlagEditMode, map[string]bool{"value": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("set flag: status %d body %s", rec.Code, rec.Body)
	}
	var flags store.Flags
	if err := json.Unmarshal(rec.Body.Bytes(), &flags); err != nil {
		t.Fatal(err)
	}
	if !flags.EditMode || !flags.Active {
		t.Fatalf("edit mode must activate the extension: %+v", flags)
	}

	rec = doJSON(t, h, http.MethodPut, "/v1/flags/unknownFlag", map[string]bool{"value": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown flag: status %d", rec.Code)
	}
}

func TestMarks_CRUDOverHTTP(t *testing.T) {
	s, st := newTestServer(t)
	h := s.Handler()
	ctx := context.Background()

	rec := doJSON(t, h, http.MethodPost, "/v1/marks", map[string]string{
		"domain": "bank.example", "kind": "blur", "selector": "#balance",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("add: status %d body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/domains/bank.example/marks", nil)
	var buckets store.Buckets
	if err := json.Unmarshal(rec.Body.Bytes(), &buckets); err != nil {
		t.Fatal(err)
	}
	if len(buckets.Blur) != 1 || buckets.Blur[0].Selector != "#balance" {
		t.Fatalf("listing: %+v", buckets)
	}

	rec = doJSON(t, h, http.MethodPut, "/v1/domains/bank.example/marks/blur/name",
		map[string]string{"selector": "#balance", "name": "Account balance"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("rename: status %d", rec.Code)
	}
	m, err := st.Get(ctx, "bank.example", store.KindBlur, "#balance")
	if err != nil || m == nil || m.Name != "Account balance" {
		t.Fatalf("renamed mark: %+v err=%v", m, err)
	}

	rec = doJSON(t, h, http.MethodDelete,
		"/v1/domains/bank.example/marks/blur?selector=%23balance", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove: status %d", rec.Code)
	}
	m, err = st.Get(ctx, "bank.example", store.KindBlur, "#balance")
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Fatal("mark survived removal")
	}
}

func TestImportExport_RoundTripOverHTTP(t *testing.T) {
	s, st := newTestServer(t)
	h := s.Handler()
	ctx := context.Background()

	if err := st.Add(ctx, store.Mark{Domain: "a.example", Kind: store.KindBlur, Selector: ".x"}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, h, http.MethodGet, "/v1/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: status %d", rec.Code)
	}
	exported := rec.Body.Bytes()

	// A payload without the required key is rejected before any write.
	rec = doJSON(t, h, http.MethodPost, "/v1/import", map[string]any{"deleteSelectors": map[string]any{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("import without blurSelectors: status %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/import", bytes.NewReader(exported))
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusNoContent {
		t.Fatalf("import: status %d body %s", rec2.Code, rec2.Body)
	}
}

func TestPresets_ListAndAccept(t *testing.T) {
	s, st := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodGet, "/v1/presets/preset.example", nil)
	var suggestions []preset.Suggestion
	if err := json.Unmarshal(rec.Body.Bytes(), &suggestions); err != nil {
		t.Fatal(err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("suggestions: %+v", suggestions)
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/presets/preset.example/accept", suggestions[0])
	if rec.Code != http.StatusNoContent {
		t.Fatalf("accept: status %d body %s", rec.Code, rec.Body)
	}
	m, err := st.Get(context.Background(), "preset.example", store.KindBlur, ".balance")
	if err != nil || m == nil || !m.Preset {
		t.Fatalf("accepted preset: %+v err=%v", m, err)
	}

	// Unknown domains answer an empty list, not an error.
	rec = doJSON(t, h, http.MethodGet, "/v1/presets/nowhere.example", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("unknown domain: status %d body %q", rec.Code, rec.Body)
	}
}

func TestMessage_NoSessionAnswersEnvelope(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/message",
		map[string]any{"action": "toggleExtension", "enable": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("message: status %d", rec.Code)
	}
	var resp bridge.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Success || resp.Error == "" {
		t.Fatalf("missing session must answer a described failure: %+v", resp)
	}
}

func TestSnapshot_NoSessionIs404(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/snapshot", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("snapshot without session: status %d", rec.Code)
	}
}

func TestWS_StreamsStoreChanges(t *testing.T) {
	s, st := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The handler subscribes after the upgrade handshake; give it a moment
	// before producing the change.
	time.Sleep(50 * time.Millisecond)

	err = st.Add(context.Background(),
		store.Mark{Domain: "bank.example", Kind: store.KindBlur, Selector: "#b"})
	if err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var ev wsEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != store.ChangeMarks || ev.Domain != "bank.example" {
		t.Fatalf("event: %+v", ev)
	}
}
