package protocol

import "encoding/json"

// Kind identifies a wire event inside the {"event":{...}} envelope.
type Kind string

// Event kinds understood by the bridge. The wire protocol keys each event
// by its name, one event per message.
const (
	KindSessionStart     Kind = "sessionStart"
	KindPromptStart      Kind = "promptStart"
	KindContentStart     Kind = "contentStart"
	KindTextInput        Kind = "textInput"
	KindTextOutput       Kind = "textOutput"
	KindAudioInput       Kind = "audioInput"
	KindAudioOutput      Kind = "audioOutput"
	KindToolUse          Kind = "toolUse"
	KindToolResult       Kind = "toolResult"
	KindContentEnd       Kind = "contentEnd"
	KindPromptEnd        Kind = "promptEnd"
	KindSessionEnd       Kind = "sessionEnd"
	KindConnectionStatus Kind = "connectionStatus"
)

// ContentType is the payload type of a content block.
type ContentType string

const (
	ContentTypeText  ContentType = "TEXT"
	ContentTypeAudio ContentType = "AUDIO"
	ContentTypeTool  ContentType = "TOOL"
)

// Role tags who a content block or text fragment belongs to.
type Role string

const (
	RoleSystem    Role = "SYSTEM"
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
	RoleTool      Role = "TOOL"
)

// Stop reasons carried on contentEnd.
const (
	StopReasonEndTurn     = "END_TURN"
	StopReasonPartialTurn = "PARTIAL_TURN"
	StopReasonInterrupted = "INTERRUPTED"
)

// Tool result statuses.
const (
	ToolStatusSuccess = "success"
	ToolStatusError   = "error"
)

// InferenceConfiguration is the model sampling configuration sent on
// sessionStart.
type InferenceConfiguration struct {
	MaxTokens   int     `json:"maxTokens"`
	TopP        float64 `json:"topP"`
	Temperature float64 `json:"temperature"`
}

// SessionStart opens the upstream session.
type SessionStart struct {
	InferenceConfiguration InferenceConfiguration `json:"inferenceConfiguration"`
}

// AudioOutputConfiguration describes the audio the model should synthesize.
type AudioOutputConfiguration struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	VoiceID         string `json:"voiceId"`
	Encoding        string `json:"encoding"`
}

// AudioInputConfiguration describes the audio the client captures.
type AudioInputConfiguration struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	Encoding        string `json:"encoding"`
	AudioType       string `json:"audioType,omitempty"`
}

// TextInputConfiguration describes a text content block's media type.
type TextInputConfiguration struct {
	MediaType string `json:"mediaType"`
}

// ToolSpec declares one tool the model may call: name, description and the
// JSON schema of its input.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolConfiguration is the set of tools advertised on promptStart.
type ToolConfiguration struct {
	Tools []ToolSpec `json:"tools"`
}

// PromptStart opens one turn-taking exchange within the session.
type PromptStart struct {
	PromptName               string                    `json:"promptName"`
	AudioOutputConfiguration *AudioOutputConfiguration `json:"audioOutputConfiguration,omitempty"`
	ToolConfiguration        *ToolConfiguration        `json:"toolConfiguration,omitempty"`
}

// ToolResultInputConfiguration correlates a tool-result content block with
// the toolUseId that requested it.
type ToolResultInputConfiguration struct {
	ToolUseID              string                  `json:"toolUseId"`
	Type                   ContentType             `json:"type"`
	TextInputConfiguration *TextInputConfiguration `json:"textInputConfiguration,omitempty"`
}

// ContentStart opens a content block within a prompt.
type ContentStart struct {
	PromptName                   string                        `json:"promptName"`
	ContentName                  string                        `json:"contentName"`
	Type                         ContentType                   `json:"type"`
	Role                         Role                          `json:"role,omitempty"`
	Interactive                  bool                          `json:"interactive"`
	TextInputConfiguration       *TextInputConfiguration       `json:"textInputConfiguration,omitempty"`
	AudioInputConfiguration      *AudioInputConfiguration      `json:"audioInputConfiguration,omitempty"`
	ToolResultInputConfiguration *ToolResultInputConfiguration `json:"toolResultInputConfiguration,omitempty"`
	AdditionalModelFields        string                        `json:"additionalModelFields,omitempty"`
}

// TextPayload carries one text fragment (textInput or textOutput).
type TextPayload struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
	Role        Role   `json:"role,omitempty"`
}

// AudioPayload carries one base64-encoded PCM chunk (audioInput or
// audioOutput).
type AudioPayload struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
	Role        Role   `json:"role,omitempty"`
}

// ToolUse is a model-issued request for external data. Content is an opaque
// JSON string holding the tool input.
type ToolUse struct {
	PromptName  string `json:"promptName,omitempty"`
	ContentName string `json:"contentName,omitempty"`
	ToolUseID   string `json:"toolUseId"`
	ToolName    string `json:"toolName"`
	Content     string `json:"content"`
}

// ToolResult answers a ToolUse. Content is a JSON string.
type ToolResult struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
	Status      string `json:"status,omitempty"`
}

// ContentEnd closes a content block. StopReason is notably INTERRUPTED when
// the user barged in over in-progress playback.
type ContentEnd struct {
	PromptName  string      `json:"promptName"`
	ContentName string      `json:"contentName"`
	Type        ContentType `json:"type,omitempty"`
	StopReason  string      `json:"stopReason,omitempty"`
}

// PromptEnd closes the active prompt.
type PromptEnd struct {
	PromptName string `json:"promptName"`
}

// SessionEnd closes the session. It carries no fields.
type SessionEnd struct{}

// ConnectionStatus is sent to the client leg after the handshake settles.
type ConnectionStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Event is the decoded form of one wire envelope. Exactly one payload field
// is non-nil for known kinds; unknown kinds keep the raw name and body so
// they can be logged or passed through.
type Event struct {
	Kind Kind

	SessionStart     *SessionStart
	PromptStart      *PromptStart
	ContentStart     *ContentStart
	TextInput        *TextPayload
	TextOutput       *TextPayload
	AudioInput       *AudioPayload
	AudioOutput      *AudioPayload
	ToolUse          *ToolUse
	ToolResult       *ToolResult
	ContentEnd       *ContentEnd
	PromptEnd        *PromptEnd
	SessionEnd       *SessionEnd
	ConnectionStatus *ConnectionStatus

	// RawKind and Raw are set when the event name is not recognized.
	RawKind string
	Raw     json.RawMessage
}

// Known reports whether the event kind is one the bridge understands.
func (e Event) Known() bool {
	return e.Kind != ""
}
