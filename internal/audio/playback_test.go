package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordingRenderer struct {
	mu     sync.Mutex
	frames []Frame
}

func (r *recordingRenderer) Render(frame Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
	return nil
}

func (r *recordingRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestPlaybackQueue_FIFOOrder(t *testing.T) {
	renderer := &recordingRenderer{}
	// High sample rate keeps pacing delays negligible in tests.
	q := NewPlaybackQueue(48000, renderer, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	for i := 0; i < 5; i++ {
		q.Enqueue(Frame{Samples: []float32{float32(i)}})
	}

	deadline := time.After(2 * time.Second)
	for renderer.count() < 5 {
		select {
		case <-deadline:
			t.Fatalf("Only %d of 5 frames rendered before timeout", renderer.count())
		case <-time.After(5 * time.Millisecond):
		}
	}

	renderer.mu.Lock()
	defer renderer.mu.Unlock()
	for i, frame := range renderer.frames {
		if frame.Samples[0] != float32(i) {
			t.Errorf("Frame %d out of order: got %f", i, frame.Samples[0])
		}
	}
}

func TestPlaybackQueue_FlushDiscardsQueuedFrames(t *testing.T) {
	renderer := &recordingRenderer{}
	q := NewPlaybackQueue(24000, renderer, zap.NewNop())

	// No consumer running: everything stays queued.
	for i := 0; i < 10; i++ {
		q.Enqueue(Frame{Samples: []float32{1, 2, 3}})
	}
	if q.Len() != 10 {
		t.Fatalf("Expected 10 queued frames, got %d", q.Len())
	}

	dropped := q.Flush()
	if dropped != 10 {
		t.Errorf("Expected 10 dropped frames, got %d", dropped)
	}
	if q.Len() != 0 {
		t.Errorf("Queue should be empty after flush, got %d", q.Len())
	}

	// Start the consumer after the flush: none of the flushed frames play.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	if renderer.count() != 0 {
		t.Errorf("Flushed frames were rendered: %d", renderer.count())
	}
}

func TestPlaybackQueue_InterruptWhileDraining(t *testing.T) {
	renderer := &recordingRenderer{}
	// Low sample rate so each frame takes ~100ms to pace, leaving a wide
	// window to interrupt mid-drain.
	q := NewPlaybackQueue(10, renderer, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	for i := 0; i < 20; i++ {
		q.Enqueue(Frame{Samples: []float32{0.1}})
	}

	time.Sleep(150 * time.Millisecond)
	dropped := q.Flush()
	playedAtFlush := renderer.count()

	time.Sleep(300 * time.Millisecond)
	playedAfter := renderer.count()

	if dropped == 0 {
		t.Fatal("Expected frames still queued at flush time")
	}
	// At most one frame (already popped when flush fired) may complete
	// after the flush; none of the queued ones may.
	if playedAfter > playedAtFlush+1 {
		t.Errorf("Frames rendered after flush: %d before, %d after, %d dropped",
			playedAtFlush, playedAfter, dropped)
	}
	if playedAfter+dropped > 20+1 {
		t.Errorf("Accounting mismatch: played %d + dropped %d exceeds enqueued", playedAfter, dropped)
	}
}

func TestPlaybackQueue_EnqueueAfterClose(t *testing.T) {
	q := NewPlaybackQueue(24000, &recordingRenderer{}, zap.NewNop())
	q.Close()
	q.Enqueue(Frame{Samples: []float32{1}})
	if q.Len() != 0 {
		t.Error("Enqueue after Close should be a no-op")
	}
}
