package bridge

import (
	"sync"

	"github.com/sonora-voice/bridge/internal/protocol"
)

// TranscriptRecord is one ordered entry handed to the transcript sink.
// EndOfResponse marks the close of the turn's content block;
// EndOfConversation is emitted exactly once, at session close.
type TranscriptRecord struct {
	Role              protocol.Role `json:"role"`
	Message           string        `json:"message"`
	EndOfResponse     bool          `json:"endOfResponse"`
	EndOfConversation bool          `json:"endOfConversation"`
}

// TranscriptSink receives ordered transcript records for display or
// persistence. The accumulator never reads anything back from it.
type TranscriptSink interface {
	WriteRecord(rec TranscriptRecord)
}

// TranscriptSinkFunc adapts a function to the TranscriptSink interface.
type TranscriptSinkFunc func(rec TranscriptRecord)

func (f TranscriptSinkFunc) WriteRecord(rec TranscriptRecord) { f(rec) }

// transcript accumulates text fragments into per-role turns. Adjacent
// same-role fragments coalesce into one turn; an exact duplicate fragment
// is suppressed once per content block. Appends run on the session's event
// loop while finish may arrive from whichever goroutine closes the
// session, so every method locks.
type transcript struct {
	sink TranscriptSink

	mu      sync.Mutex
	pending map[protocol.Role]string
	seen    map[protocol.Role]map[string]struct{}
	history []TranscriptRecord
	ended   bool
}

func newTranscript(sink TranscriptSink) *transcript {
	return &transcript{
		sink:    sink,
		pending: make(map[protocol.Role]string),
		seen:    make(map[protocol.Role]map[string]struct{}),
	}
}

// beginBlock resets duplicate suppression for a new content block.
func (t *transcript) beginBlock() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = make(map[protocol.Role]map[string]struct{})
}

// append adds a text fragment to the given role's open turn. Fragments are
// only ever appended to their own role's buffer, even if roles interleave
// inside one block.
func (t *transcript) append(role protocol.Role, fragment string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended || fragment == "" {
		return
	}

	dups, ok := t.seen[role]
	if !ok {
		dups = make(map[string]struct{})
		t.seen[role] = dups
	}
	if _, dup := dups[fragment]; dup {
		return
	}
	dups[fragment] = struct{}{}

	t.pending[role] += fragment
}

// closeTurn flushes the role's accumulated turn with endOfResponse set.
// A role with no pending text produces nothing.
func (t *transcript) closeTurn(role protocol.Role) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeTurnLocked(role)
}

func (t *transcript) closeTurnLocked(role protocol.Role) {
	if t.ended {
		return
	}
	msg, ok := t.pending[role]
	if !ok || msg == "" {
		return
	}
	delete(t.pending, role)

	rec := TranscriptRecord{Role: role, Message: msg, EndOfResponse: true}
	t.history = append(t.history, rec)
	if t.sink != nil {
		t.sink.WriteRecord(rec)
	}
}

// finish flushes any open turns and emits the endOfConversation marker.
// Safe to call more than once; only the first call emits anything.
func (t *transcript) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return
	}
	for _, role := range []protocol.Role{protocol.RoleUser, protocol.RoleAssistant, protocol.RoleSystem} {
		t.closeTurnLocked(role)
	}
	t.ended = true

	rec := TranscriptRecord{EndOfConversation: true}
	t.history = append(t.history, rec)
	if t.sink != nil {
		t.sink.WriteRecord(rec)
	}
}

// records returns the accumulated transcript so far.
func (t *transcript) records() []TranscriptRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranscriptRecord, len(t.history))
	copy(out, t.history)
	return out
}
