package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hazyhaar/veil/store"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// wsEvent is one change notification on the stream.
type wsEvent struct {
	Type   store.ChangeType `json:"type"`
	Domain string           `json:"domain,omitempty"`
}

// handleWS streams store change events to a connected popup. The client is
// not expected to send anything; its reader is drained only to notice the
// close handshake.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("api: websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := s.st.Hub().Subscribe()
	defer cancel()

	// Drain the client side; a read error means the peer went away.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pings := time.NewTicker(wsPingInterval)
	defer pings.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-clientGone:
			return
		case c, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(wsEvent{Type: c.Type, Domain: c.Domain}); err != nil {
				s.logger.Debug("api: websocket write", "error", err)
				return
			}
		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
