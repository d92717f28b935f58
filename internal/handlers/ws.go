package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/veloce-hq/duckhub/internal/hub"
	"github.com/veloce-hq/duckhub/internal/ws"
)

// writeTimeout bounds a single frame write toward a client.
const writeTimeout = 5 * time.Second

// WSHandler upgrades the connection, binds it to an authenticated peer and
// runs the read loop against the hub. One goroutine reads, one drains the
// peer's out channel; the leave path runs exactly once when either side dies.
func WSHandler(logger *logrus.Logger, users UserSource, h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Identity first: a fresh guest's cookie rides the upgrade response.
		user, err := EnsureGuestUser(w, r, users)
		if err != nil {
			logger.Warnf("ws: authentication failed: %v", err)
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"duckhub"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("ws: accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler exit")

		if c.Subprotocol() != "duckhub" {
			logger.Warnf("ws: client connected with invalid subprotocol %q", c.Subprotocol())
			c.Close(websocket.StatusPolicyViolation, "client must use the 'duckhub' subprotocol")
			return
		}
		logger.Infof("ws: user %s (%s) connected from %s", user.Username, user.ID, r.RemoteAddr)

		if err := users.TouchSeen(r.Context(), user.ID); err != nil {
			logger.Debugf("ws: touching seen_at for %s: %v", user.ID, err)
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		peer := ws.NewPeer(user, cancel)
		session := h.NewSession(peer)

		go writePump(c, peer, logger)

		readLoop(ctx, c, session, logger)

		// Read loop is done: leave the room, then tear the peer down so the
		// write pump exits and the socket closes.
		session.Close(context.Background())
		peer.Terminate()
		logger.Infof("ws: user %s disconnected", user.ID)
	}
}

// readLoop feeds inbound frames to the session until the connection dies or
// the context is cancelled. Message handling is sequential per connection.
func readLoop(ctx context.Context, c *websocket.Conn, session *hub.Session, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				logger.Debugf("ws: closed normally")
			case strings.Contains(err.Error(), "context canceled"):
				logger.Debugf("ws: context canceled")
			default:
				logger.Warnf("ws: read error: %v", err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		session.HandleRaw(ctx, data)
	}
}

// writePump drains the peer's out channel onto the socket. It exits when the
// channel closes (peer terminated) or a write fails.
func writePump(c *websocket.Conn, peer *ws.Peer, logger *logrus.Logger) {
	for raw := range peer.Out {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.Write(ctx, websocket.MessageText, raw)
		cancel()
		if err != nil {
			logger.Debugf("ws: write to peer %s failed: %v", peer.ID, err)
			peer.Terminate()
			return
		}
	}
	c.Close(websocket.StatusNormalClosure, "")
}
