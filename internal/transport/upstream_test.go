package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sonora-voice/bridge/internal/bridge"
	"github.com/sonora-voice/bridge/internal/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// upstreamStub is a minimal model-service stand-in: records received
// frames and can push frames back to the client.
type upstreamStub struct {
	server   *httptest.Server
	received chan []byte
	outbound chan []byte
	gotAuth  chan string
}

func newUpstreamStub(t *testing.T) *upstreamStub {
	t.Helper()
	stub := &upstreamStub{
		received: make(chan []byte, 64),
		outbound: make(chan []byte, 64),
		gotAuth:  make(chan string, 1),
	}

	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case stub.gotAuth <- r.Header.Get("Authorization"):
		default:
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for msg := range stub.outbound {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			stub.received <- msg
		}
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *upstreamStub) wsURL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func TestDial_SendsBearerToken(t *testing.T) {
	stub := newUpstreamStub(t)

	u, err := Dial(context.Background(), Config{
		URL:         stub.wsURL(),
		Credentials: StaticToken("secret-token"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer u.Close()

	select {
	case auth := <-stub.gotAuth:
		if auth != "Bearer secret-token" {
			t.Errorf("Unexpected Authorization header: %q", auth)
		}
	case <-time.After(time.Second):
		t.Fatal("Server never saw the handshake")
	}
}

func TestDial_AuthRejectionIsNotRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	start := time.Now()
	_, err := Dial(context.Background(), Config{
		URL: "ws" + strings.TrimPrefix(server.URL, "http"),
	}, zap.NewNop())

	var authErr *bridge.UpstreamAuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected UpstreamAuthError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Auth rejection should fail fast, took %v", elapsed)
	}
}

func TestUpstream_SendAndReceive(t *testing.T) {
	stub := newUpstreamStub(t)

	u, err := Dial(context.Background(), Config{URL: stub.wsURL()}, zap.NewNop())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer u.Close()

	ctx := context.Background()
	err = u.Send(ctx, protocol.Event{
		Kind:      protocol.KindSessionStart,
		SessionStart: &protocol.SessionStart{
			InferenceConfiguration: protocol.InferenceConfiguration{MaxTokens: 1024},
		},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case frame := <-stub.received:
		ev, err := protocol.Decode(frame)
		if err != nil {
			t.Fatalf("Server received undecodable frame: %v", err)
		}
		if ev.Kind != protocol.KindSessionStart {
			t.Errorf("Expected sessionStart, got %s", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("Frame never arrived at server")
	}

	stub.outbound <- []byte(`{"event":{"textOutput":{"content":"hello","role":"ASSISTANT"}}}`)
	select {
	case ev := <-u.Events():
		if ev.Kind != protocol.KindTextOutput || ev.TextOutput.Content != "hello" {
			t.Errorf("Unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("Event never surfaced")
	}
}

func TestUpstream_ServerCloseEndsEventStream(t *testing.T) {
	stub := newUpstreamStub(t)

	u, err := Dial(context.Background(), Config{URL: stub.wsURL()}, zap.NewNop())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer u.Close()

	close(stub.outbound)

	select {
	case _, ok := <-u.Events():
		if ok {
			t.Error("Expected closed event channel after server close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Event channel never closed")
	}
}

func TestUpstream_SendAfterCloseFails(t *testing.T) {
	stub := newUpstreamStub(t)

	u, err := Dial(context.Background(), Config{URL: stub.wsURL()}, zap.NewNop())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	u.Close()

	// The queue may absorb a few buffered writes; keep sending until the
	// closed connection surfaces.
	deadline := time.Now().Add(2 * time.Second)
	for {
		err = u.SendAudio(context.Background(), protocol.Event{
			Kind:       protocol.KindAudioInput,
			AudioInput: &protocol.AudioPayload{Content: "AAAA"},
		})
		if err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("SendAudio kept succeeding after Close")
		}
	}
	var transportErr *bridge.TransportError
	if !errors.As(err, &transportErr) {
		t.Errorf("Expected TransportError, got %v", err)
	}
}

func TestRefreshingSource_CachesUntilExpiry(t *testing.T) {
	mints := 0
	source := NewRefreshingSource(func(ctx context.Context) (string, time.Time, error) {
		mints++
		return "tok", time.Now().Add(time.Hour), nil
	})

	for i := 0; i < 3; i++ {
		token, err := source.Token(context.Background())
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}
		if token != "tok" {
			t.Errorf("Unexpected token: %q", token)
		}
	}
	if mints != 1 {
		t.Errorf("Expected 1 mint, got %d", mints)
	}
}

func TestRefreshingSource_MintFailureIsAuthError(t *testing.T) {
	source := NewRefreshingSource(func(ctx context.Context) (string, time.Time, error) {
		return "", time.Time{}, errors.New("sts unavailable")
	})

	_, err := source.Token(context.Background())
	var authErr *bridge.UpstreamAuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected UpstreamAuthError, got %v", err)
	}
}
