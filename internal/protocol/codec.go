package protocol

import (
	"encoding/json"
	"fmt"
)

// envelope is the outer wire shape: {"event": {"<name>": {...}}}.
type envelope struct {
	Event map[string]json.RawMessage `json:"event"`
}

// encodeBody mirrors envelope for marshalling with stable field names.
type encodeBody struct {
	SessionStart     *SessionStart     `json:"sessionStart,omitempty"`
	PromptStart      *PromptStart      `json:"promptStart,omitempty"`
	ContentStart     *ContentStart     `json:"contentStart,omitempty"`
	TextInput        *TextPayload      `json:"textInput,omitempty"`
	TextOutput       *TextPayload      `json:"textOutput,omitempty"`
	AudioInput       *AudioPayload     `json:"audioInput,omitempty"`
	AudioOutput      *AudioPayload     `json:"audioOutput,omitempty"`
	ToolUse          *ToolUse          `json:"toolUse,omitempty"`
	ToolResult       *ToolResult       `json:"toolResult,omitempty"`
	ContentEnd       *ContentEnd       `json:"contentEnd,omitempty"`
	PromptEnd        *PromptEnd        `json:"promptEnd,omitempty"`
	SessionEnd       *SessionEnd       `json:"sessionEnd,omitempty"`
	ConnectionStatus *ConnectionStatus `json:"connectionStatus,omitempty"`
}

// Decode parses one wire message into a typed Event. A message whose event
// name is not recognized still decodes successfully with Kind unset and
// RawKind/Raw populated; the caller decides whether to warn or pass it
// through. A message that is not an event envelope at all is an error.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("invalid event envelope: %w", err)
	}
	if len(env.Event) == 0 {
		return Event{}, fmt.Errorf("event envelope is empty")
	}
	if len(env.Event) > 1 {
		return Event{}, fmt.Errorf("event envelope carries %d events, want 1", len(env.Event))
	}

	var name string
	var body json.RawMessage
	for k, v := range env.Event {
		name, body = k, v
	}

	ev := Event{Kind: Kind(name)}
	var dst any
	switch ev.Kind {
	case KindSessionStart:
		ev.SessionStart = &SessionStart{}
		dst = ev.SessionStart
	case KindPromptStart:
		ev.PromptStart = &PromptStart{}
		dst = ev.PromptStart
	case KindContentStart:
		ev.ContentStart = &ContentStart{}
		dst = ev.ContentStart
	case KindTextInput:
		ev.TextInput = &TextPayload{}
		dst = ev.TextInput
	case KindTextOutput:
		ev.TextOutput = &TextPayload{}
		dst = ev.TextOutput
	case KindAudioInput:
		ev.AudioInput = &AudioPayload{}
		dst = ev.AudioInput
	case KindAudioOutput:
		ev.AudioOutput = &AudioPayload{}
		dst = ev.AudioOutput
	case KindToolUse:
		ev.ToolUse = &ToolUse{}
		dst = ev.ToolUse
	case KindToolResult:
		ev.ToolResult = &ToolResult{}
		dst = ev.ToolResult
	case KindContentEnd:
		ev.ContentEnd = &ContentEnd{}
		dst = ev.ContentEnd
	case KindPromptEnd:
		ev.PromptEnd = &PromptEnd{}
		dst = ev.PromptEnd
	case KindSessionEnd:
		ev.SessionEnd = &SessionEnd{}
		dst = ev.SessionEnd
	case KindConnectionStatus:
		ev.ConnectionStatus = &ConnectionStatus{}
		dst = ev.ConnectionStatus
	default:
		// Forward compatibility: keep the raw payload, let the caller log it.
		ev.Kind = ""
		ev.RawKind = name
		ev.Raw = body
		return ev, nil
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return Event{}, fmt.Errorf("invalid %s event: %w", name, err)
	}
	return ev, nil
}

// Encode serializes a typed Event back into its wire envelope. Unknown
// events round-trip using their preserved raw body.
func Encode(ev Event) ([]byte, error) {
	if !ev.Known() {
		if ev.RawKind == "" {
			return nil, fmt.Errorf("cannot encode event without a kind")
		}
		raw := map[string]map[string]json.RawMessage{
			"event": {ev.RawKind: ev.Raw},
		}
		return json.Marshal(raw)
	}

	body := encodeBody{
		SessionStart:     ev.SessionStart,
		PromptStart:      ev.PromptStart,
		ContentStart:     ev.ContentStart,
		TextInput:        ev.TextInput,
		TextOutput:       ev.TextOutput,
		AudioInput:       ev.AudioInput,
		AudioOutput:      ev.AudioOutput,
		ToolUse:          ev.ToolUse,
		ToolResult:       ev.ToolResult,
		ContentEnd:       ev.ContentEnd,
		PromptEnd:        ev.PromptEnd,
		SessionEnd:       ev.SessionEnd,
		ConnectionStatus: ev.ConnectionStatus,
	}
	return json.Marshal(struct {
		Event encodeBody `json:"event"`
	}{Event: body})
}
