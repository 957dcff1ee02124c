package audio

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sonora-voice/bridge/internal/protocol"
)

// Frame is one playback unit. Samples drive pacing; Event is the wire
// envelope that carried them, handed unchanged to the renderer.
type Frame struct {
	Samples []float32
	Event   protocol.Event
}

// Renderer receives frames in playback order. Implementations typically
// hand frames to an audio device or forward them to the client connection.
type Renderer interface {
	Render(frame Frame) error
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(frame Frame) error

func (f RendererFunc) Render(frame Frame) error { return f(frame) }

// PlaybackQueue is an ordered FIFO of decoded audio frames with a single
// background consumer. Enqueue and Flush may be called from different
// goroutines; the queue guarantees that no frame still queued when Flush
// is called will ever reach the renderer.
type PlaybackQueue struct {
	mu     sync.Mutex
	frames []Frame
	closed bool

	sampleRate int
	renderer   Renderer
	notify     chan struct{}
	logger     *zap.Logger
}

// NewPlaybackQueue creates a playback queue rendering at the given sample
// rate. The consumer does not start until Run is called.
func NewPlaybackQueue(sampleRate int, renderer Renderer, logger *zap.Logger) *PlaybackQueue {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &PlaybackQueue{
		sampleRate: sampleRate,
		renderer:   renderer,
		notify:     make(chan struct{}, 1),
		logger:     logger,
	}
}

// Enqueue appends a frame to the playback queue.
func (q *PlaybackQueue) Enqueue(frame Frame) {
	if len(frame.Samples) == 0 {
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.frames = append(q.frames, frame)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Flush discards every frame that has not yet been handed to the renderer
// and returns how many were dropped. This is the barge-in primitive: it
// must complete before any further frame is drained, which the shared
// mutex guarantees.
func (q *PlaybackQueue) Flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.frames)
	q.frames = nil
	return n
}

// Len returns the number of frames awaiting playback.
func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Close stops accepting frames and drops anything still queued.
func (q *PlaybackQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.frames = nil
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Run consumes frames in FIFO order until the context is cancelled or the
// queue is closed. Frames are paced at the configured sample rate so the
// queue drains roughly in real time.
func (q *PlaybackQueue) Run(ctx context.Context) {
	for {
		frame, ok := q.pop()
		if !ok {
			q.mu.Lock()
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
				continue
			}
		}

		if err := q.renderer.Render(frame); err != nil {
			q.logger.Warn("Playback renderer failed", zap.Error(err))
		}

		// Pace to the frame's real-time duration so Flush has a chance to
		// discard queued frames mid-utterance.
		d := time.Duration(len(frame.Samples)) * time.Second / time.Duration(q.sampleRate)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
	}
}

func (q *PlaybackQueue) pop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return Frame{}, false
	}
	frame := q.frames[0]
	q.frames = q.frames[1:]
	return frame, true
}
