package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"vibeboard/internal/orchestrator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API carries no credentials, so cross-origin dashboards may
	// subscribe directly
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

func (s *Server) handleOrchestratorStream(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	o := s.registry.GetOrCreate(projectID)
	s.streamEvents(w, r, o.Subscribe())
}

func (s *Server) handleDependencyStream(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	s.streamEvents(w, r, s.depFeeds.get(projectID).Subscribe())
}

func (s *Server) handleGenreStream(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	s.streamEvents(w, r, s.genreFeeds.get(projectID).Subscribe())
}

// streamEvents pushes the subscription's events as JSON frames until the
// client disconnects or the stream ends. Client frames are drained and
// ignored; they serve only as keep-alive.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, sub *orchestrator.Subscription) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	defer sub.Close()

	if s.metrics != nil {
		s.metrics.WebsocketClients.Inc()
		defer s.metrics.WebsocketClients.Dec()
	}

	// Drain reads so control frames are processed and closes detected
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
