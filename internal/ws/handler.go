// Package ws exposes the conversation engine over a WebSocket endpoint.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mindviza/mindviza/internal/identity"
	"github.com/mindviza/mindviza/internal/session"
)

// credentialCookie is the cookie carrying the signed bearer credential.
const credentialCookie = "access_token"

// closeWriteTimeout bounds the close handshake write.
const closeWriteTimeout = 5 * time.Second

// Handler upgrades /ws/chat connections and hands each one to the
// session manager.
type Handler struct {
	resolver *identity.Resolver
	manager  *session.Manager
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(resolver *identity.Resolver, manager *session.Manager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		resolver: resolver,
		manager:  manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from the app origin; credential
			// verification happens after upgrade, not via Origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With("component", "ws"),
	}
}

// ServeHTTP upgrades the connection, resolves the caller's identity,
// and runs the session until the connection ends. The upgrade happens
// before credential checks so a rejection can be delivered as a proper
// close frame rather than an HTTP error the client never sees.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ch := newChannel(conn)

	credential := ""
	if c, err := r.Cookie(credentialCookie); err == nil {
		credential = c.Value
	}

	ident, err := h.resolver.Resolve(credential, remoteHost(r))
	if err != nil {
		h.logger.Warn("credential rejected", "remote", r.RemoteAddr, "error", err)
		_ = ch.Close(session.ClosePolicyViolation, "invalid credential")
		return
	}

	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		threadID = session.GenerateThreadID(ident, time.Now())
	}

	if err := h.manager.Run(r.Context(), ident, threadID, ch); err != nil {
		h.logger.Warn("session ended with error", "identity", ident, "error", err)
	}
}

// remoteHost strips the port from the peer address. Guest identities
// are derived from the host part only.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// channel adapts a gorilla connection to session.Channel. Writes are
// mutex-guarded because the turn loop, the registry's broadcasts, and
// close frames may all write concurrently.
type channel struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newChannel(conn *websocket.Conn) *channel {
	return &channel{conn: conn}
}

// SendText writes one text frame.
func (c *channel) SendText(_ context.Context, text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// ReceiveText blocks for the next text frame, skipping binary frames.
func (c *channel) ReceiveText(_ context.Context) (string, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if msgType == websocket.TextMessage {
			return string(data), nil
		}
	}
}

// Close sends a close frame with the given code and closes the socket.
func (c *channel) Close(code int, reason string) error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(code, reason)
	writeErr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	c.writeMu.Unlock()

	closeErr := c.conn.Close()
	if writeErr != nil && !errors.Is(writeErr, websocket.ErrCloseSent) {
		return writeErr
	}
	return closeErr
}
