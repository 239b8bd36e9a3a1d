package main

import (
	"context"
	"net/http"
	"time"

	"chatsend/internal/constants"
	"chatsend/internal/database"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// handleStatusStream upgrades to a websocket and pushes every committed
// delivery status change as a JSON object. The stream is read-only; the
// connection closes when the client goes away or the server shuts down.
func (s *Server) handleStatusStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The server write timeout would otherwise cut long-lived streams.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
		})
		if err != nil {
			s.logger.WithError(err).Warn("Failed to accept status stream")
			return
		}
		defer conn.CloseNow()

		changes, unsubscribe := s.store.Subscribe()
		defer unsubscribe()

		// Nothing is expected from the client; CloseRead handles control frames.
		ctx := conn.CloseRead(r.Context())
		s.logger.WithField("remote_addr", r.RemoteAddr).Debug("Status stream opened")

		if err := s.streamChanges(ctx, conn, changes); err != nil {
			s.logger.WithError(err).Debug("Status stream ended")
			return
		}
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

func (s *Server) streamChanges(ctx context.Context, conn *websocket.Conn, changes <-chan database.StatusChange) error {
	writeTimeout := time.Duration(constants.DefaultWebsocketWriteTimeMs) * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, change)
			cancel()
			if err != nil {
				return err
			}
			s.logger.WithFields(logrus.Fields{
				"collection": change.Collection,
				"status":     change.StatusName,
			}).Trace("Pushed status change")
		}
	}
}
