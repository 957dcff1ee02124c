// Command devclient exercises a running bridge from the terminal: it
// exchanges the API key for a token, opens a websocket session, sends one
// text turn or a burst of synthetic audio, and prints what comes back.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sonora-voice/bridge/internal/audio"
	"github.com/sonora-voice/bridge/internal/protocol"
)

type tokenRequest struct {
	APIKey   string `json:"api_key"`
	ClientID string `json:"client_id"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
}

func main() {
	server := flag.String("server", "localhost:8080", "bridge host:port")
	apiKey := flag.String("api-key", os.Getenv("API_KEY"), "shared API key")
	text := flag.String("text", "", "send one text turn with this content")
	tone := flag.Duration("tone", 0, "send a synthetic audio tone of this duration")
	sampleRate := flag.Int("sample-rate", 16000, "tone sample rate")
	flag.Parse()

	token, err := fetchToken(*server, *apiKey)
	if err != nil {
		log.Fatal("Failed to fetch token: ", err)
	}
	log.Println("Token acquired")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	// One retry after an unexpected drop. Each dial is a brand-new session
	// server-side, so nothing from the first attempt carries over.
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			log.Println("connection dropped, retrying once")
			time.Sleep(time.Second)
		}
		clean, err := runSession(*server, token, *text, *tone, *sampleRate, interrupt)
		if err != nil {
			log.Fatal(err)
		}
		if clean {
			return
		}
	}
	log.Println("retry exhausted")
	os.Exit(1)
}

// runSession dials, runs one conversation, and reports whether the
// connection ended cleanly.
func runSession(server, token, text string, tone time.Duration, sampleRate int, interrupt chan os.Signal) (bool, error) {
	u := url.URL{Scheme: "ws", Host: server, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), headers)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer c.Close()

	done := make(chan struct{})
	clean := make(chan bool, 1)
	go printIncoming(c, done, clean)

	switch {
	case text != "":
		if err := sendTextTurn(c, text); err != nil {
			return false, fmt.Errorf("text turn: %w", err)
		}
	case tone > 0:
		if err := sendTone(c, tone, sampleRate); err != nil {
			return false, fmt.Errorf("tone: %w", err)
		}
	default:
		log.Println("No -text or -tone given, just listening")
	}

	select {
	case <-done:
		return <-clean, nil
	case <-interrupt:
		log.Println("interrupt")
		writeEvent(c, protocol.Event{Kind: protocol.KindSessionEnd, SessionEnd: &protocol.SessionEnd{}})
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return true, nil
	}
}

func fetchToken(server, apiKey string) (string, error) {
	body, err := json.Marshal(tokenRequest{APIKey: apiKey, ClientID: "devclient"})
	if err != nil {
		return "", err
	}

	resp, err := http.Post("http://"+server+"/api/v1/auth/token", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	return tr.Token, nil
}

func printIncoming(c *websocket.Conn, done chan struct{}, clean chan bool) {
	defer close(done)
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			log.Println("read: ", err)
			clean <- websocket.IsCloseError(err, websocket.CloseNormalClosure)
			return
		}
		ev, err := protocol.Decode(message)
		if err != nil {
			log.Printf("undecodable frame: %v", err)
			continue
		}
		switch ev.Kind {
		case protocol.KindConnectionStatus:
			log.Printf("connection %s", ev.ConnectionStatus.Status)
		case protocol.KindTextOutput:
			log.Printf("[%s] %s", ev.TextOutput.Role, ev.TextOutput.Content)
		case protocol.KindAudioOutput:
			log.Printf("audio chunk (%d base64 bytes)", len(ev.AudioOutput.Content))
		case protocol.KindContentEnd:
			log.Printf("contentEnd stopReason=%s", ev.ContentEnd.StopReason)
		default:
			log.Printf("event %s%s", ev.Kind, ev.RawKind)
		}
	}
}

func sendTextTurn(c *websocket.Conn, content string) error {
	name := uuid.NewString()
	if err := writeEvent(c, protocol.Event{
		Kind: protocol.KindContentStart,
		ContentStart: &protocol.ContentStart{
			ContentName: name,
			Type:        protocol.ContentTypeText,
			Role:        protocol.RoleUser,
			Interactive: true,
			TextInputConfiguration: &protocol.TextInputConfiguration{
				MediaType: "text/plain",
			},
		},
	}); err != nil {
		return err
	}
	if err := writeEvent(c, protocol.Event{
		Kind: protocol.KindTextInput,
		TextInput: &protocol.TextPayload{
			ContentName: name,
			Content:     content,
			Role:        protocol.RoleUser,
		},
	}); err != nil {
		return err
	}
	return writeEvent(c, protocol.Event{
		Kind:       protocol.KindContentEnd,
		ContentEnd: &protocol.ContentEnd{ContentName: name, StopReason: protocol.StopReasonEndTurn},
	})
}

// sendTone streams a 440Hz sine in 100ms chunks, the same framing a
// microphone capture pipeline would use.
func sendTone(c *websocket.Conn, d time.Duration, sampleRate int) error {
	name := uuid.NewString()
	if err := writeEvent(c, protocol.Event{
		Kind: protocol.KindContentStart,
		ContentStart: &protocol.ContentStart{
			ContentName: name,
			Type:        protocol.ContentTypeAudio,
			Role:        protocol.RoleUser,
			Interactive: true,
			AudioInputConfiguration: &protocol.AudioInputConfiguration{
				MediaType:       "audio/lpcm",
				SampleRateHertz: sampleRate,
				SampleSizeBits:  16,
				ChannelCount:    1,
				Encoding:        "base64",
				AudioType:       "SPEECH",
			},
		},
	}); err != nil {
		return err
	}

	chunkSamples := sampleRate / 10
	total := int(d.Seconds() * float64(sampleRate))
	for sent := 0; sent < total; sent += chunkSamples {
		samples := make([]float32, chunkSamples)
		for i := range samples {
			samples[i] = 0.3 * float32(math.Sin(2*math.Pi*440*float64(sent+i)/float64(sampleRate)))
		}
		if err := writeEvent(c, protocol.Event{
			Kind: protocol.KindAudioInput,
			AudioInput: &protocol.AudioPayload{
				ContentName: name,
				Content:     audio.EncodeChunk(samples),
			},
		}); err != nil {
			return err
		}
		time.Sleep(100 * time.Millisecond)
	}

	return writeEvent(c, protocol.Event{
		Kind:       protocol.KindContentEnd,
		ContentEnd: &protocol.ContentEnd{ContentName: name, StopReason: protocol.StopReasonEndTurn},
	})
}

func writeEvent(c *websocket.Conn, ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}
