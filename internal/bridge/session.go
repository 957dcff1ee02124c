// Package bridge owns the session protocol state machine: it validates the
// session → prompt → content nesting, relays events between the client and
// upstream legs, intercepts tool use, and drives playback and transcript
// accumulation.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sonora-voice/bridge/internal/audio"
	"github.com/sonora-voice/bridge/internal/protocol"
)

// State is the coarse lifecycle position of a session. Content-open states
// are tracked per direction on top of this.
type State int

const (
	StateUnauthenticated State = iota
	StateConnecting
	StateSessionOpen
	StatePromptOpen
	StatePromptClosing
	StateSessionClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateConnecting:
		return "CONNECTING"
	case StateSessionOpen:
		return "SESSION_OPEN"
	case StatePromptOpen:
		return "PROMPT_OPEN"
	case StatePromptClosing:
		return "PROMPT_CLOSING"
	case StateSessionClosing:
		return "SESSION_CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// Direction distinguishes the two halves of the duplex stream.
type Direction int

const (
	// DirectionInbound is client → model.
	DirectionInbound Direction = iota
	// DirectionOutbound is model → client.
	DirectionOutbound
)

func (d Direction) String() string {
	if d == DirectionInbound {
		return "inbound"
	}
	return "outbound"
}

// UpstreamLeg is the model-facing transport consulted on every send and
// receive. SendAudio uses a dedicated queue so the steady stream of audio
// chunks never starves control events.
type UpstreamLeg interface {
	Send(ctx context.Context, ev protocol.Event) error
	SendAudio(ctx context.Context, ev protocol.Event) error
	Events() <-chan protocol.Event
	Errors() <-chan error
	Close() error
}

// ClientLeg is the browser-facing transport.
type ClientLeg interface {
	Send(ev protocol.Event) error
	CloseWithCode(code int, reason string)
}

// ToolDispatcher resolves a model-issued tool call into a JSON result
// string and a wire status. Dispatch never returns a session-fatal error
// unless the dispatcher is configured for strict failures.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, toolUseID, toolName, rawInput string) (result string, status string, err error)
}

// TranscriptRecorder persists a finished transcript at session close.
type TranscriptRecorder interface {
	SaveTranscript(ctx context.Context, sessionID, clientID string, records []TranscriptRecord) error
}

// Config carries the per-session parameters.
type Config struct {
	SessionID    string
	ClientID     string
	SystemPrompt string
	Inference    protocol.InferenceConfiguration
	AudioOutput  protocol.AudioOutputConfiguration
	AudioInput   protocol.AudioInputConfiguration
	Tools        []protocol.ToolSpec
	IdleTimeout  time.Duration
}

// contentBlock tracks one open content block in one direction.
type contentBlock struct {
	name string
	typ  protocol.ContentType
	role protocol.Role
}

// Session is the stateful relay for one client connection. All event
// processing runs on a single goroutine (Run); the legs feed it through
// channels, so handlers never need locking.
type Session struct {
	cfg        Config
	upstream   UpstreamLeg
	client     ClientLeg
	dispatcher ToolDispatcher
	playback   *audio.PlaybackQueue
	detector   *audio.SpeechDetector
	transcript *transcript
	recorder   TranscriptRecorder
	logger     *zap.Logger

	// stateMu guards state and closeErr, which Close may write from a
	// different goroutine than the Run loop.
	stateMu  sync.RWMutex
	state    State
	closeErr error

	promptName string
	inbound    *contentBlock
	outbound   *contentBlock

	// pendingTool holds the toolUse captured inside the currently open
	// TOOL content block until its contentEnd triggers dispatch.
	pendingTool *protocol.ToolUse

	fromClient chan protocol.Event
	closeOnce  sync.Once
	done       chan struct{}
}

// Option customizes a Session at construction time.
type Option func(*Session)

// WithRecorder persists the transcript when the session closes.
func WithRecorder(r TranscriptRecorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithSpeechDetector attaches speech-activity detection to the inbound
// audio path.
func WithSpeechDetector(d *audio.SpeechDetector) Option {
	return func(s *Session) { s.detector = d }
}

// NewSession builds a session in CONNECTING state. The caller has already
// authenticated the client; Start performs the upstream handshake.
func NewSession(
	cfg Config,
	upstream UpstreamLeg,
	client ClientLeg,
	dispatcher ToolDispatcher,
	playback *audio.PlaybackQueue,
	sink TranscriptSink,
	logger *zap.Logger,
	opts ...Option,
) *Session {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	s := &Session{
		cfg:        cfg,
		upstream:   upstream,
		client:     client,
		dispatcher: dispatcher,
		playback:   playback,
		transcript: newTranscript(sink),
		logger:     logger,
		state:      StateConnecting,
		fromClient: make(chan protocol.Event, 64),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.cfg.SessionID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// PromptName returns the active prompt's identifier, or "" before Start.
func (s *Session) PromptName() string { return s.promptName }

// Done is closed when the session has fully shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session closed, nil for a normal close.
func (s *Session) Err() error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.closeErr
}

// Transcript returns the records accumulated so far.
func (s *Session) Transcript() []TranscriptRecord { return s.transcript.records() }

// Start performs the upstream handshake: sessionStart, then one prompt with
// the audio output and tool configuration, then the system prompt as a
// SYSTEM text content block. One prompt per session lifetime; turn taking
// happens inside it.
func (s *Session) Start(ctx context.Context) error {
	if st := s.State(); st != StateConnecting {
		return &ProtocolError{State: st.String(), Msg: "session already started"}
	}

	if err := s.upstream.Send(ctx, protocol.Event{
		Kind:         protocol.KindSessionStart,
		SessionStart: &protocol.SessionStart{InferenceConfiguration: s.cfg.Inference},
	}); err != nil {
		return &TransportError{Leg: "upstream", Err: err}
	}
	s.setState(StateSessionOpen)

	s.promptName = uuid.NewString()
	audioOut := s.cfg.AudioOutput
	if err := s.upstream.Send(ctx, protocol.Event{
		Kind: protocol.KindPromptStart,
		PromptStart: &protocol.PromptStart{
			PromptName:               s.promptName,
			AudioOutputConfiguration: &audioOut,
			ToolConfiguration:        &protocol.ToolConfiguration{Tools: s.cfg.Tools},
		},
	}); err != nil {
		return &TransportError{Leg: "upstream", Err: err}
	}
	s.setState(StatePromptOpen)

	if s.cfg.SystemPrompt != "" {
		if err := s.sendSystemPrompt(ctx); err != nil {
			return err
		}
	}

	s.logger.Info("Session started",
		zap.String("sessionID", s.cfg.SessionID),
		zap.String("promptName", s.promptName))
	return nil
}

func (s *Session) sendSystemPrompt(ctx context.Context) error {
	contentName := uuid.NewString()
	events := []protocol.Event{
		{Kind: protocol.KindContentStart, ContentStart: &protocol.ContentStart{
			PromptName:             s.promptName,
			ContentName:            contentName,
			Type:                   protocol.ContentTypeText,
			Role:                   protocol.RoleSystem,
			Interactive:            true,
			TextInputConfiguration: &protocol.TextInputConfiguration{MediaType: "text/plain"},
		}},
		{Kind: protocol.KindTextInput, TextInput: &protocol.TextPayload{
			PromptName:  s.promptName,
			ContentName: contentName,
			Content:     s.cfg.SystemPrompt,
			Role:        protocol.RoleSystem,
		}},
		{Kind: protocol.KindContentEnd, ContentEnd: &protocol.ContentEnd{
			PromptName:  s.promptName,
			ContentName: contentName,
		}},
	}
	for _, ev := range events {
		if err := s.upstream.Send(ctx, ev); err != nil {
			return &TransportError{Leg: "upstream", Err: err}
		}
	}
	return nil
}

// IngestClient queues one decoded client event onto the session's
// serialized processing queue. Non-blocking once the session is closed.
func (s *Session) IngestClient(ev protocol.Event) {
	select {
	case <-s.done:
	case s.fromClient <- ev:
	}
}

// Run is the single-threaded event loop, fed by both legs. It returns when
// the session closes for any reason.
func (s *Session) Run(ctx context.Context) {
	var idle *time.Timer
	var idleC <-chan time.Time
	if s.cfg.IdleTimeout > 0 {
		idle = time.NewTimer(s.cfg.IdleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}

	for {
		select {
		case <-ctx.Done():
			s.Close(ctx.Err())
			return

		case <-s.done:
			return

		case ev := <-s.fromClient:
			if err := s.handleClientEvent(ctx, ev); err != nil {
				s.fail(err)
				return
			}

		case ev, ok := <-s.upstream.Events():
			if !ok {
				s.fail(&TransportError{Leg: "upstream", Err: fmt.Errorf("stream ended")})
				return
			}
			if idle != nil {
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(s.cfg.IdleTimeout)
			}
			if err := s.handleUpstreamEvent(ctx, ev); err != nil {
				s.fail(err)
				return
			}

		case err := <-s.upstream.Errors():
			s.fail(err)
			return

		case <-idleC:
			s.fail(&IdleTimeoutError{Idle: s.cfg.IdleTimeout.String()})
			return
		}
	}
}

// OpenContent validates and registers a new content block in the given
// direction, returning its generated contentName. Fails if no prompt is
// open or a block of the same direction is already open.
func (s *Session) OpenContent(direction Direction, typ protocol.ContentType, role protocol.Role) (string, error) {
	name := uuid.NewString()
	if err := s.trackContentStart(direction, &contentBlock{name: name, typ: typ, role: role}); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Session) trackContentStart(direction Direction, block *contentBlock) error {
	if st := s.State(); st != StatePromptOpen {
		return &ProtocolError{State: st.String(), Msg: "content block requires an open prompt"}
	}
	slot := &s.inbound
	if direction == DirectionOutbound {
		slot = &s.outbound
	}
	if *slot != nil {
		return &ProtocolError{
			State: s.State().String(),
			Msg: fmt.Sprintf("content block %q already open in %s direction",
				(*slot).name, direction),
		}
	}
	*slot = block
	// Transcript text only ever arrives on outbound blocks; an inbound
	// open must not clear the outbound block's dedupe scope.
	if direction == DirectionOutbound {
		s.transcript.beginBlock()
	}
	return nil
}

func (s *Session) trackContentEnd(direction Direction, contentName string) (*contentBlock, error) {
	slot := &s.inbound
	if direction == DirectionOutbound {
		slot = &s.outbound
	}
	block := *slot
	if block == nil {
		return nil, &ProtocolError{
			State: s.State().String(),
			Msg:   fmt.Sprintf("contentEnd for %q with no open %s block", contentName, direction),
		}
	}
	if block.name != contentName {
		return nil, &ProtocolError{
			State: s.State().String(),
			Msg:   fmt.Sprintf("contentEnd names %q but open %s block is %q", contentName, direction, block.name),
		}
	}
	*slot = nil
	return block, nil
}

func (s *Session) handleClientEvent(ctx context.Context, ev protocol.Event) error {
	if !ev.Known() {
		// Forward compatibility: unknown event kinds are logged and dropped.
		s.logger.Warn("Unknown client event kind ignored",
			zap.String("sessionID", s.cfg.SessionID),
			zap.String("kind", ev.RawKind))
		return nil
	}

	switch ev.Kind {
	case protocol.KindContentStart:
		cs := ev.ContentStart
		if err := s.trackContentStart(DirectionInbound, &contentBlock{
			name: cs.ContentName, typ: cs.Type, role: cs.Role,
		}); err != nil {
			return err
		}
		cs.PromptName = s.promptName
		return s.forwardUpstream(ctx, ev)

	case protocol.KindAudioInput:
		if s.inbound == nil || s.inbound.typ != protocol.ContentTypeAudio {
			return &ProtocolError{State: s.State().String(), Msg: "audioInput without an open AUDIO content block"}
		}
		s.detectSpeech(ev.AudioInput.Content)
		ev.AudioInput.PromptName = s.promptName
		if err := s.upstream.SendAudio(ctx, ev); err != nil {
			return &TransportError{Leg: "upstream", Err: err}
		}
		return nil

	case protocol.KindTextInput:
		if s.inbound == nil || s.inbound.typ != protocol.ContentTypeText {
			return &ProtocolError{State: s.State().String(), Msg: "textInput without an open TEXT content block"}
		}
		ev.TextInput.PromptName = s.promptName
		return s.forwardUpstream(ctx, ev)

	case protocol.KindContentEnd:
		if _, err := s.trackContentEnd(DirectionInbound, ev.ContentEnd.ContentName); err != nil {
			return err
		}
		ev.ContentEnd.PromptName = s.promptName
		return s.forwardUpstream(ctx, ev)

	case protocol.KindPromptEnd:
		s.setState(StatePromptClosing)
		ev.PromptEnd.PromptName = s.promptName
		return s.forwardUpstream(ctx, ev)

	case protocol.KindSessionEnd:
		s.setState(StateSessionClosing)
		_ = s.forwardUpstream(ctx, ev)
		s.Close(nil)
		return nil

	default:
		// The bridge owns sessionStart/promptStart; a client copy is noise,
		// not a violation.
		s.logger.Warn("Dropping client event the bridge owns",
			zap.String("sessionID", s.cfg.SessionID),
			zap.String("kind", string(ev.Kind)))
		return nil
	}
}

func (s *Session) handleUpstreamEvent(ctx context.Context, ev protocol.Event) error {
	if !ev.Known() {
		s.logger.Warn("Unknown upstream event kind forwarded as-is",
			zap.String("sessionID", s.cfg.SessionID),
			zap.String("kind", ev.RawKind))
		s.forwardClient(ev)
		return nil
	}

	switch ev.Kind {
	case protocol.KindContentStart:
		cs := ev.ContentStart
		if err := s.trackContentStart(DirectionOutbound, &contentBlock{
			name: cs.ContentName, typ: cs.Type, role: cs.Role,
		}); err != nil {
			return err
		}
		s.forwardClient(ev)
		return nil

	case protocol.KindTextOutput:
		role := ev.TextOutput.Role
		if role == "" {
			role = protocol.RoleAssistant
		}
		s.transcript.append(role, ev.TextOutput.Content)
		s.forwardClient(ev)
		return nil

	case protocol.KindAudioOutput:
		samples, err := audio.DecodeChunk(ev.AudioOutput.Content)
		if err != nil {
			s.logger.Warn("Dropping undecodable audio output chunk",
				zap.String("sessionID", s.cfg.SessionID),
				zap.Error(err))
			return nil
		}
		// Audio reaches the client through the playback queue's renderer,
		// so a barge-in flush stops queued frames before delivery.
		s.playback.Enqueue(audio.Frame{Samples: samples, Event: ev})
		return nil

	case protocol.KindToolUse:
		s.pendingTool = ev.ToolUse
		s.logger.Info("Tool use detected",
			zap.String("sessionID", s.cfg.SessionID),
			zap.String("toolName", ev.ToolUse.ToolName),
			zap.String("toolUseId", ev.ToolUse.ToolUseID))
		s.forwardClient(ev)
		return nil

	case protocol.KindContentEnd:
		return s.handleUpstreamContentEnd(ctx, ev)

	case protocol.KindPromptEnd:
		s.setState(StatePromptClosing)
		s.forwardClient(ev)
		return nil

	case protocol.KindSessionEnd:
		s.setState(StateSessionClosing)
		s.forwardClient(ev)
		s.Close(nil)
		return nil

	default:
		s.forwardClient(ev)
		return nil
	}
}

func (s *Session) handleUpstreamContentEnd(ctx context.Context, ev protocol.Event) error {
	ce := ev.ContentEnd

	// Tool content blocks close by handing control to the dispatcher: the
	// model is blocked until the result goes back upstream, so dispatch is
	// deliberately synchronous here.
	if ce.Type == protocol.ContentTypeTool && s.pendingTool != nil {
		if s.outbound != nil && s.outbound.name == ce.ContentName {
			s.outbound = nil
		}
		err := s.dispatchPendingTool(ctx)
		s.forwardClient(ev)
		return err
	}

	block, err := s.trackContentEnd(DirectionOutbound, ce.ContentName)
	if err != nil {
		return err
	}

	if ce.StopReason == protocol.StopReasonInterrupted {
		s.HandleInterrupt()
	} else {
		role := block.role
		if role == "" {
			role = protocol.RoleAssistant
		}
		s.transcript.closeTurn(role)
	}

	s.forwardClient(ev)
	return nil
}

// HandleInterrupt models user barge-in: queued playback frames are
// discarded before anything else happens, then the in-progress assistant
// turn is closed. Transport stays up.
func (s *Session) HandleInterrupt() {
	dropped := s.playback.Flush()
	s.transcript.closeTurn(protocol.RoleAssistant)
	s.logger.Info("Playback interrupted",
		zap.String("sessionID", s.cfg.SessionID),
		zap.Int("droppedFrames", dropped))
}

func (s *Session) dispatchPendingTool(ctx context.Context) error {
	tool := s.pendingTool
	s.pendingTool = nil

	result, status, err := s.dispatcher.Dispatch(ctx, tool.ToolUseID, tool.ToolName, tool.Content)
	if err != nil {
		// Strict mode only: a failed lookup is session-fatal.
		return err
	}

	contentName := uuid.NewString()
	events := []protocol.Event{
		{Kind: protocol.KindContentStart, ContentStart: &protocol.ContentStart{
			PromptName:  s.promptName,
			ContentName: contentName,
			Type:        protocol.ContentTypeTool,
			Role:        protocol.RoleTool,
			Interactive: true,
			ToolResultInputConfiguration: &protocol.ToolResultInputConfiguration{
				ToolUseID:              tool.ToolUseID,
				Type:                   protocol.ContentTypeText,
				TextInputConfiguration: &protocol.TextInputConfiguration{MediaType: "text/plain"},
			},
		}},
		{Kind: protocol.KindToolResult, ToolResult: &protocol.ToolResult{
			PromptName:  s.promptName,
			ContentName: contentName,
			Content:     result,
			Status:      status,
		}},
		{Kind: protocol.KindContentEnd, ContentEnd: &protocol.ContentEnd{
			PromptName:  s.promptName,
			ContentName: contentName,
		}},
	}
	for _, out := range events {
		if err := s.upstream.Send(ctx, out); err != nil {
			return &TransportError{Leg: "upstream", Err: err}
		}
	}

	s.logger.Info("Tool result forwarded",
		zap.String("sessionID", s.cfg.SessionID),
		zap.String("toolUseId", tool.ToolUseID),
		zap.String("status", status))
	return nil
}

func (s *Session) detectSpeech(encoded string) {
	if s.detector == nil {
		return
	}
	samples, err := audio.DecodeChunk(encoded)
	if err != nil {
		return
	}
	if ev, fired := s.detector.Process(samples); fired {
		switch ev {
		case audio.SpeechStart:
			s.logger.Debug("Speech started", zap.String("sessionID", s.cfg.SessionID))
		case audio.SpeechEnd:
			s.logger.Debug("Speech ended", zap.String("sessionID", s.cfg.SessionID))
		}
	}
}

func (s *Session) forwardUpstream(ctx context.Context, ev protocol.Event) error {
	if err := s.upstream.Send(ctx, ev); err != nil {
		return &TransportError{Leg: "upstream", Err: err}
	}
	return nil
}

func (s *Session) forwardClient(ev protocol.Event) {
	if err := s.client.Send(ev); err != nil {
		s.logger.Warn("Failed to forward event to client",
			zap.String("sessionID", s.cfg.SessionID),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err))
	}
}

// fail closes the session with a classified error.
func (s *Session) fail(err error) {
	s.Close(err)
}

// Close shuts the session down. Idempotent: any state transitions to
// CLOSED, the transcript is finalized exactly once, and the client leg
// receives a status close frame rather than a raw protocol error.
func (s *Session) Close(reason error) {
	s.closeOnce.Do(func() {
		s.stateMu.Lock()
		s.closeErr = reason
		s.state = StateClosed
		s.stateMu.Unlock()

		s.playback.Flush()
		s.playback.Close()
		s.transcript.finish()

		if s.recorder != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.recorder.SaveTranscript(ctx, s.cfg.SessionID, s.cfg.ClientID, s.transcript.records()); err != nil {
				s.logger.Error("Failed to persist transcript",
					zap.String("sessionID", s.cfg.SessionID),
					zap.Error(err))
			}
			cancel()
		}

		if err := s.upstream.Close(); err != nil {
			s.logger.Warn("Upstream close failed",
				zap.String("sessionID", s.cfg.SessionID),
				zap.Error(err))
		}

		code, msg := closeStatus(reason)
		s.client.CloseWithCode(code, msg)

		if reason != nil {
			s.logger.Info("Session closed with error",
				zap.String("sessionID", s.cfg.SessionID),
				zap.Error(reason))
		} else {
			s.logger.Info("Session closed",
				zap.String("sessionID", s.cfg.SessionID))
		}
		close(s.done)
	})
}

// closeStatus maps an internal error to the user-visible close code and
// message. Raw protocol details never reach the end user.
func closeStatus(reason error) (int, string) {
	switch reason.(type) {
	case nil:
		return CloseNormal, "Disconnected"
	case *AuthError:
		return CloseAuthFailure, "Authentication failed"
	case *ProtocolError:
		return CloseProtocolViolation, "Connection error"
	case *IdleTimeoutError:
		return CloseIdleTimeout, "Disconnected"
	case *UpstreamAuthError, *TransportError:
		return CloseUpstreamFailure, "Connection error"
	default:
		return CloseUpstreamFailure, "Connection error"
	}
}
