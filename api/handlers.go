package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/veil/bridge"
	"github.com/hazyhaar/veil/preset"
	"github.com/hazyhaar/veil/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// stateView is what a popup needs to render its controls: the global flags
// plus where (if anywhere) the active session is attached.
type stateView struct {
	Flags    store.Flags     `json:"flags"`
	Attached bool            `json:"attached"`
	Tab      *bridge.TabInfo `json:"tab,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	flags, err := s.st.GetFlags(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	view := stateView{Flags: flags}
	if sess := s.sessions.Active(); sess != nil {
		view.Attached = true
		view.Tab = &bridge.TabInfo{URL: sess.URL(), Domain: sess.Domain()}
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSetFlag(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value bool `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("api: decode flag body: %w", err))
		return
	}
	if err := s.st.SetFlag(r.Context(), chi.URLParam(r, "key"), body.Value); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	flags, err := s.st.GetFlags(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, flags)
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req bridge.ChangeModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("api: decode mode body: %w", err))
		return
	}
	if err := s.st.SetMode(r.Context(), req.Kind()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	flags, err := s.st.GetFlags(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, flags)
}

func (s *Server) handleDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := s.st.Domains(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if domains == nil {
		domains = []string{}
	}
	s.writeJSON(w, http.StatusOK, domains)
}

func (s *Server) handleListMarks(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.st.ListForDomain(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, buckets)
}

func (s *Server) handleAddMark(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Domain string `json:"domain"`
		Kind   string `json:"kind"`
		store.Mark
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("api: decode mark body: %w", err))
		return
	}
	m := body.Mark
	m.Domain = body.Domain
	m.Kind = store.Kind(body.Kind)
	if err := s.st.Add(r.Context(), m); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveMark deletes one record. The selector travels in a query
// parameter: selectors routinely contain slashes and comma groups.
func (s *Server) handleRemoveMark(w http.ResponseWriter, r *http.Request) {
	sel := r.URL.Query().Get("selector")
	if sel == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("api: selector query parameter required"))
		return
	}
	err := s.st.Remove(r.Context(),
		chi.URLParam(r, "domain"), store.Kind(chi.URLParam(r, "kind")), sel)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenameMark(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Selector string `json:"selector"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("api: decode rename body: %w", err))
		return
	}
	err := s.st.Rename(r.Context(),
		chi.URLParam(r, "domain"), store.Kind(chi.URLParam(r, "kind")),
		body.Selector, body.Name)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.st.Export(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="veil-config.json"`)
	w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 8<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("api: read import body: %w", err))
		return
	}
	if err := s.st.Import(r.Context(), data); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if s.presets == nil {
		s.writeJSON(w, http.StatusOK, []preset.Suggestion{})
		return
	}
	suggestions := s.presets.For(chi.URLParam(r, "domain"))
	if suggestions == nil {
		suggestions = []preset.Suggestion{}
	}
	s.writeJSON(w, http.StatusOK, suggestions)
}

func (s *Server) handleAcceptPreset(w http.ResponseWriter, r *http.Request) {
	if s.presets == nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("api: no preset catalog"))
		return
	}
	var sug preset.Suggestion
	if err := json.NewDecoder(r.Body).Decode(&sug); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("api: decode suggestion: %w", err))
		return
	}
	if err := s.presets.Accept(r.Context(), s.st, chi.URLParam(r, "domain"), sug); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionView struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	active := s.sessions.Active()
	out := []sessionView{}
	for _, sess := range s.sessions.List() {
		out = append(out, sessionView{
			ID:     sess.ID(),
			Domain: sess.Domain(),
			URL:    sess.URL(),
			Active: sess == active,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetActiveSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("api: decode session body: %w", err))
		return
	}
	if !s.sessions.SetActive(body.ID) {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("api: unknown session %q", body.ID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMessage forwards one protocol message to the active session's router.
// Without a session the answer is still a protocol envelope, so callers can
// show "not available here" instead of hanging or crashing.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("api: read message: %w", err))
		return
	}

	sess := s.sessions.Active()
	if sess == nil {
		s.writeJSON(w, http.StatusOK, bridge.Response{Error: "api: no page session attached"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(sess.Router().Reply(r.Context(), raw))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Active()
	if sess == nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("api: no page session attached"))
		return
	}
	out, err := sess.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("api: bad limit %q", v))
			return
		}
		limit = n
	}
	events, err := s.st.RecentEvents(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []store.AuditEvent{}
	}
	s.writeJSON(w, http.StatusOK, events)
}
