// Package websocket owns the browser-facing leg: connection upgrade, the
// read/write pumps, and the lifecycle of the bridge session backing each
// connection.
package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sonora-voice/bridge/internal/audio"
	"github.com/sonora-voice/bridge/internal/bridge"
	"github.com/sonora-voice/bridge/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Deps carries everything the hub needs to stand up one session per
// connection.
type Deps struct {
	// DialUpstream opens a fresh model-facing leg for a new session.
	DialUpstream func(ctx context.Context) (bridge.UpstreamLeg, error)

	// Dispatcher resolves tool-use events.
	Dispatcher bridge.ToolDispatcher

	// Recorder persists transcripts at session close. Optional.
	Recorder bridge.TranscriptRecorder

	// Session is the per-connection config template. SessionID and
	// ClientID are filled in per connection.
	Session bridge.Config

	// EnableSpeechDetection attaches energy-based activity detection to
	// the inbound audio path.
	EnableSpeechDetection bool
}

// Hub maintains the set of active clients.
type Hub struct {
	// Registered clients keyed by session ID.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	deps Deps

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(deps Deps, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deps:       deps,
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.sessionID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered",
				zap.String("sessionID", client.sessionID),
				zap.String("clientID", client.clientID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.sessionID]; ok {
				delete(h.clients, client.sessionID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered",
				zap.String("sessionID", client.sessionID),
				zap.String("clientID", client.clientID))
		}
	}
}

// ActiveSessions returns the IDs of sessions currently connected.
func (h *Hub) ActiveSessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

type writeData struct {
	// Type is the websocket message type.
	// Expect websocket.TextMessage or websocket.CloseMessage
	Type    int
	Payload []byte
}

// Client is the browser-facing half of one session. It satisfies the
// session's client transport contract.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan writeData

	clientID  string
	sessionID string
	startedAt time.Time

	session *bridge.Session

	// Logger
	logger *zap.Logger

	closeOnce sync.Once
}

var _ bridge.ClientLeg = (*Client)(nil)

// Send encodes and queues an event for the browser. A full buffer drops
// the frame with an error rather than blocking the session loop.
func (c *Client) Send(ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	select {
	case c.send <- writeData{Type: websocket.TextMessage, Payload: data}:
		return nil
	default:
		return errors.New("client send buffer full")
	}
}

// CloseWithCode delivers a status close frame through the write pump so it
// never races a concurrent write.
func (c *Client) CloseWithCode(code int, reason string) {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		select {
		case c.send <- writeData{Type: websocket.CloseMessage, Payload: msg}:
		default:
			// Buffer full, tear the connection down directly.
			c.conn.Close()
		}
	})
}

// ServeSession upgrades the connection and runs a full bridge session over
// it. clientID comes from the already validated token.
func ServeSession(hub *Hub, c echo.Context, clientID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan writeData, 256),
		clientID:  clientID,
		startedAt: time.Now(),
		logger:    logger,
	}

	ctx, cancel := context.WithCancel(context.Background())

	go client.writePump()

	// The frontend waits for this before opening its audio pipeline.
	_ = client.Send(protocol.Event{
		Kind: protocol.KindConnectionStatus,
		ConnectionStatus: &protocol.ConnectionStatus{
			Status:  "authenticated",
			Message: "Connection authenticated successfully",
		},
	})

	upstream, err := hub.deps.DialUpstream(ctx)
	if err != nil {
		logger.Error("Upstream dial failed",
			zap.String("clientID", clientID),
			zap.Error(err))
		client.CloseWithCode(closeCodeFor(err))
		cancel()
		return nil
	}

	// Model audio reaches the browser only through the queue's renderer,
	// so an interrupt flush stops frames that have not been delivered yet.
	playback := audio.NewPlaybackQueue(
		hub.deps.Session.AudioOutput.SampleRateHertz,
		audio.RendererFunc(func(frame audio.Frame) error {
			return client.Send(frame.Event)
		}),
		logger,
	)
	go playback.Run(ctx)

	cfg := hub.deps.Session
	cfg.ClientID = clientID

	opts := []bridge.Option{}
	if hub.deps.Recorder != nil {
		opts = append(opts, bridge.WithRecorder(hub.deps.Recorder))
	}
	if hub.deps.EnableSpeechDetection {
		detector, err := audio.NewSpeechDetector(
			audio.DefaultSpeechDetectorConfig(cfg.AudioInput.SampleRateHertz))
		if err == nil {
			opts = append(opts, bridge.WithSpeechDetector(detector))
		} else {
			logger.Warn("Speech detection disabled", zap.Error(err))
		}
	}

	session := bridge.NewSession(cfg, upstream, client, hub.deps.Dispatcher,
		playback, nil, logger, opts...)
	client.session = session
	client.sessionID = session.ID()

	client.hub.register <- client

	if err := session.Start(ctx); err != nil {
		logger.Error("Session handshake failed",
			zap.String("sessionID", session.ID()),
			zap.Error(err))
		session.Close(err)
		client.hub.unregister <- client
		cancel()
		return nil
	}

	go session.Run(ctx)
	go client.readPump()

	go func() {
		<-session.Done()
		client.hub.unregister <- client
		cancel()
	}()

	return nil
}

// readPump pumps decoded events from the websocket connection into the
// session loop.
func (c *Client) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Client connection lost",
					zap.String("sessionID", c.sessionID),
					zap.Error(err))
				c.session.Close(&bridge.TransportError{Leg: "client", Err: err})
			} else {
				c.session.Close(nil)
			}
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("Ignoring non-text frame from client",
				zap.String("sessionID", c.sessionID),
				zap.Int("type", messageType))
			continue
		}

		ev, err := protocol.Decode(message)
		if err != nil {
			c.logger.Warn("Malformed frame from client",
				zap.String("sessionID", c.sessionID),
				zap.Error(err))
			c.session.Close(&bridge.ProtocolError{State: "client", Msg: err.Error()})
			return
		}

		c.session.IngestClient(ev)
	}
}

// writePump pumps queued frames to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}
			if message.Type == websocket.CloseMessage {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeCodeFor maps a pre-session failure to the close frame the client
// should see.
func closeCodeFor(err error) (int, string) {
	var authErr *bridge.AuthError
	var protoErr *bridge.ProtocolError
	var upstreamAuthErr *bridge.UpstreamAuthError
	switch {
	case errors.As(err, &authErr):
		return bridge.CloseAuthFailure, "Authentication failed"
	case errors.As(err, &protoErr):
		return bridge.CloseProtocolViolation, "Connection error"
	case errors.As(err, &upstreamAuthErr):
		return bridge.CloseUpstreamFailure, "Connection error"
	default:
		return bridge.CloseUpstreamFailure, "Connection error"
	}
}
