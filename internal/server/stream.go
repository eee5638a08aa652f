package server

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

func (s *Server) streamStats(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	snapshots, cancel := s.orch.Subscribe()
	defer cancel()

	// Clients only listen; CloseRead handles control frames and cancels ctx on disconnect.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "orchestrator closed")
				return
			}
			if err := s.send(ctx, conn, withStats(snap)); err != nil {
				if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
					s.logger.Warn("failed to send snapshot", "error", err)
				}
				return
			}
		}
	}
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
