// Package transport owns the model-facing websocket leg. It dials with
// retry, splits writes into a control queue and an audio queue so chunk
// traffic never starves control events, and decodes inbound frames into
// protocol events for the session loop.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sonora-voice/bridge/internal/bridge"
	"github.com/sonora-voice/bridge/internal/protocol"
)

const (
	dialAttempts     = 5
	initialBackoff   = time.Second
	defaultDialLimit = 30 * time.Second
)

// Config describes one upstream connection.
type Config struct {
	// URL is the websocket endpoint of the model service.
	URL string
	// Credentials supplies the bearer token for the dial. Optional in
	// development.
	Credentials CredentialSource
	// DialTimeout bounds the whole retry sequence. Zero means 30s.
	DialTimeout time.Duration
}

// Upstream is the live connection. It satisfies the session's upstream
// transport contract.
type Upstream struct {
	conn   *websocket.Conn
	logger *zap.Logger

	events  chan protocol.Event
	errs    chan error
	writeCh chan []byte
	audioCh chan []byte

	done      chan struct{}
	writeDone chan struct{}
	closeOnce sync.Once
}

var _ bridge.UpstreamLeg = (*Upstream)(nil)

// Dial connects to the model service with exponential backoff, max 5
// attempts. A rejected handshake with an auth status is not retried; the
// caller gets an UpstreamAuthError straight away.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Upstream, error) {
	limit := cfg.DialTimeout
	if limit == 0 {
		limit = defaultDialLimit
	}
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	header := http.Header{}
	if cfg.Credentials != nil {
		token, err := cfg.Credentials.Token(ctx)
		if err != nil {
			return nil, err
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	var conn *websocket.Conn
	var err error

	backoff := initialBackoff
	for attempt := 0; attempt < dialAttempts; attempt++ {
		dialer := websocket.Dialer{}
		var resp *http.Response
		conn, resp, err = dialer.DialContext(ctx, cfg.URL, header)
		if err == nil {
			break
		}
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &bridge.UpstreamAuthError{
				Err: fmt.Errorf("upstream rejected credentials: %s", resp.Status),
			}
		}
		logger.Warn("Upstream dial failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("maxAttempts", dialAttempts),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return nil, &bridge.TransportError{Leg: "upstream", Err: ctx.Err()}
		}
	}
	if err != nil {
		return nil, &bridge.TransportError{
			Leg: "upstream",
			Err: fmt.Errorf("failed to connect after %d attempts: %w", dialAttempts, err),
		}
	}

	logger.Info("Connected to upstream", zap.String("url", cfg.URL))

	u := &Upstream{
		conn:      conn,
		logger:    logger,
		events:    make(chan protocol.Event, 64),
		errs:      make(chan error, 1),
		writeCh:   make(chan []byte, 64),
		audioCh:   make(chan []byte, 256),
		done:      make(chan struct{}),
		writeDone: make(chan struct{}),
	}

	go u.readLoop()
	go u.writeLoop()

	return u, nil
}

// Send queues a control event for delivery.
func (u *Upstream) Send(ctx context.Context, ev protocol.Event) error {
	return u.enqueue(ctx, ev, u.writeCh)
}

// SendAudio queues an audio chunk. Control events always win over queued
// audio in the write loop.
func (u *Upstream) SendAudio(ctx context.Context, ev protocol.Event) error {
	return u.enqueue(ctx, ev, u.audioCh)
}

func (u *Upstream) enqueue(ctx context.Context, ev protocol.Event, ch chan []byte) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Kind, err)
	}
	select {
	case ch <- data:
		return nil
	case <-u.done:
		return &bridge.TransportError{Leg: "upstream", Err: fmt.Errorf("connection closed")}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events delivers decoded upstream events. The channel closes when the
// connection ends cleanly.
func (u *Upstream) Events() <-chan protocol.Event {
	return u.events
}

// Errors delivers at most one terminal transport error.
func (u *Upstream) Errors() <-chan error {
	return u.errs
}

// Close tears the connection down. Safe to call more than once.
func (u *Upstream) Close() error {
	u.closeOnce.Do(func() {
		close(u.done)
		deadline := time.Now().Add(time.Second)
		_ = u.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = u.conn.Close()
	})
	return nil
}

func (u *Upstream) readLoop() {
	defer close(u.events)

	for {
		_, message, err := u.conn.ReadMessage()
		if err != nil {
			select {
			case <-u.done:
				// Closed by us, the event channel closing is enough.
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					u.logger.Info("Upstream closed normally")
				} else {
					u.reportError(&bridge.TransportError{Leg: "upstream", Err: err})
				}
			}
			return
		}

		ev, err := protocol.Decode(message)
		if err != nil {
			u.reportError(&bridge.ProtocolError{State: "upstream", Msg: err.Error()})
			return
		}

		select {
		case u.events <- ev:
		case <-u.done:
			return
		}
	}
}

// writeLoop drains both queues, always preferring control frames.
func (u *Upstream) writeLoop() {
	defer close(u.writeDone)

	for {
		select {
		case msg := <-u.writeCh:
			if !u.write(msg) {
				return
			}
			continue
		default:
		}

		select {
		case msg := <-u.writeCh:
			if !u.write(msg) {
				return
			}
		case msg := <-u.audioCh:
			if !u.write(msg) {
				return
			}
		case <-u.done:
			return
		}
	}
}

func (u *Upstream) write(msg []byte) bool {
	if err := u.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		select {
		case <-u.done:
		default:
			u.reportError(&bridge.TransportError{Leg: "upstream", Err: err})
		}
		return false
	}
	return true
}

func (u *Upstream) reportError(err error) {
	select {
	case u.errs <- err:
	default:
	}
}
