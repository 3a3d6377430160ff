package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	collab "github.com/sermonsmith/collab"
	"github.com/sermonsmith/collab/applier"
	"github.com/sermonsmith/collab/docstore"
	"github.com/sermonsmith/collab/presence"
)

// Gateway authenticates real-time connections, maps them onto document
// channels, and dispatches inbound events to the presence manager and the
// operation applier. One Gateway serves many connections; multiple Gateway
// instances may run in one process, each with its own registry.
type Gateway struct {
	verifier    *Verifier
	presence    *presence.Manager
	applier     *applier.Applier
	docs        docstore.Store
	registry    *Registry
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader
}

// New creates a connection gateway.
func New(verifier *Verifier, pm *presence.Manager, ap *applier.Applier, docs docstore.Store) *Gateway {
	registry := NewRegistry()
	return &Gateway{
		verifier:    verifier,
		presence:    pm,
		applier:     ap,
		docs:        docs,
		registry:    registry,
		broadcaster: NewBroadcaster(registry),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin enforcement belongs to the fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Broadcaster exposes the fan-out primitive for higher-level flows that need
// to announce state changes on a channel.
func (g *Gateway) Broadcaster() *Broadcaster {
	return g.broadcaster
}

// ServeHTTP upgrades the connection after authenticating it, then runs the
// read loop until the peer goes away. A bad credential terminates the
// attempt before any channel state changes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, err := g.verifier.Verify(TokenFromRequest(r))
	if err != nil {
		glog.Infof("gateway: rejecting connection: %v", err)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("gateway: upgrade failed for %s: %v", principal.UserID, err)
		return
	}

	conn := newConn(ws, principal)
	go conn.writePump()
	g.readLoop(conn)
}

// readLoop handles one message at a time per connection. Store operations
// inside a handler are awaited; other connections' events interleave freely.
func (g *Gateway) readLoop(conn *Conn) {
	defer g.teardown(conn)

	conn.ws.SetReadLimit(maxMessageSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				glog.Infof("gateway: connection %s closed: %v", conn.principal.UserID, err)
			}
			return
		}

		event, err := collab.DecodeInbound(data)
		if err != nil {
			g.sendError(conn, err)
			continue
		}
		if err := g.dispatch(context.Background(), conn, event); err != nil {
			g.sendError(conn, err)
		}
	}
}

// teardown handles graceful and ungraceful disconnects identically: the
// connection leaves every channel it had joined and the departures are
// announced to the remaining members.
func (g *Gateway) teardown(conn *Conn) {
	conn.close()
	g.registry.RemoveConn(conn)

	// Cleanup must run even though the socket is gone.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	channels, err := g.presence.Disconnect(ctx, conn.principal.UserID)
	if err != nil {
		glog.Warningf("gateway: disconnect cleanup for %s: %v", conn.principal.UserID, err)
	}
	for _, ch := range channels {
		g.broadcaster.Announce(ch.Key(), collab.CollabParticipantLeft, conn.principal.UserID,
			map[string]string{"userId": conn.principal.UserID}, conn)
	}
}

// sendError reports a failure to the originating connection only; engine
// errors never become a broadcast.
func (g *Gateway) sendError(conn *Conn, err error) {
	payload, encErr := collab.EncodeError(collab.ErrorEvent{
		Code:    collab.ErrorCode(err),
		Message: err.Error(),
	})
	if encErr != nil {
		glog.Errorf("gateway: encoding error event: %v", encErr)
		return
	}
	conn.trySend(payload)
}
