package call

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	voice "github.com/voxgate/voxgate/internal"
	"github.com/voxgate/voxgate/internal/ratelimit"
	"github.com/voxgate/voxgate/internal/testutil"
)

type inFrame struct {
	data   []byte
	binary bool
}

// fakeTransport scripts inbound frames through a channel and records writes.
type fakeTransport struct {
	in chan inFrame

	mu       sync.Mutex
	controls []voice.Control
	audio    [][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan inFrame, 32)}
}

func (t *fakeTransport) ReadFrame(ctx context.Context) ([]byte, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case f, ok := <-t.in:
		if !ok {
			return nil, false, io.EOF
		}
		return f.data, f.binary, nil
	}
}

func (t *fakeTransport) WriteControl(_ context.Context, msg voice.Control) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.controls = append(t.controls, msg)
	return nil
}

func (t *fakeTransport) WriteAudio(_ context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.audio = append(t.audio, data)
	return nil
}

func (t *fakeTransport) snapshot() ([]voice.Control, [][]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]voice.Control(nil), t.controls...), append([][]byte(nil), t.audio...)
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func generousLimits() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	cfg.BucketCapacity = 1000
	cfg.MaxMessagesPerSecond = 1000
	cfg.MaxBytesPerSecond = 10_000_000
	return cfg
}

func defaultPipeline() Pipeline {
	return Pipeline{
		Transcriber: &testutil.FakeTranscriber{},
		Agent:       &testutil.FakeAgent{GreetingText: "Good afternoon!"},
		Synthesizer: &testutil.FakeSynthesizer{},
	}
}

func newTestSession(transport Transport, limits ratelimit.Config, pipe Pipeline, cfg Config) *Session {
	key := ratelimit.ClientKey{Origin: "1.2.3.4", Session: "test-call"}
	return New("test-call", key, ratelimit.NewLimiter(limits), transport, pipe, cfg, nil, nil)
}

// runSession starts the session and returns a channel with its result.
func runSession(s *Session) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	return done
}

func controlOfType(controls []voice.Control, msgType string) (voice.Control, bool) {
	for _, c := range controls {
		if c.Type == msgType {
			return c, true
		}
	}
	return voice.Control{}, false
}

func TestSession_GreetingSentAtStart(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	s := newTestSession(tr, generousLimits(), defaultPipeline(), Config{})
	done := runSession(s)

	waitFor(t, func() bool {
		_, audio := tr.snapshot()
		return len(audio) > 0
	})
	_, audio := tr.snapshot()
	if string(audio[0]) != "audio:Good afternoon!" {
		t.Errorf("greeting audio = %q", audio[0])
	}

	close(tr.in)
	if err := <-done; !errors.Is(err, io.EOF) {
		t.Errorf("Run returned %v, want io.EOF from transport close", err)
	}
}

func TestSession_FrameFlowsThroughPipeline(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	s := newTestSession(tr, generousLimits(), defaultPipeline(), Config{})
	done := runSession(s)

	tr.in <- inFrame{data: []byte("pcm-audio"), binary: true}

	waitFor(t, func() bool {
		controls, audio := tr.snapshot()
		_, hasResp := controlOfType(controls, voice.ControlResponse)
		return hasResp && len(audio) >= 2 // greeting + reply
	})

	controls, audio := tr.snapshot()
	if c, ok := controlOfType(controls, voice.ControlTranscription); !ok || c.Text != "hello" || !c.Final {
		t.Errorf("transcription control = %+v", c)
	}
	if c, _ := controlOfType(controls, voice.ControlResponse); c.Text != "you said: hello" {
		t.Errorf("response control = %+v", c)
	}
	if string(audio[len(audio)-1]) != "audio:you said: hello" {
		t.Errorf("reply audio = %q", audio[len(audio)-1])
	}

	close(tr.in)
	<-done
}

func TestSession_ThrottledFrameKeepsSessionActive(t *testing.T) {
	t.Parallel()
	limits := generousLimits()
	limits.BucketCapacity = 1
	limits.MaxMessagesPerSecond = 0.001 // effectively no refill during the test

	tr := newFakeTransport()
	s := newTestSession(tr, limits, defaultPipeline(), Config{})
	done := runSession(s)

	tr.in <- inFrame{data: []byte("a"), binary: true}
	tr.in <- inFrame{data: []byte("b"), binary: true}

	waitFor(t, func() bool {
		controls, _ := tr.snapshot()
		c, ok := controlOfType(controls, voice.ControlError)
		return ok && c.Message == "Message rate limit exceeded. Please slow down."
	})

	// The session is still alive: a ping is answered.
	tr.in <- inFrame{data: []byte(`{"type":"ping"}`)}
	waitFor(t, func() bool {
		controls, _ := tr.snapshot()
		_, ok := controlOfType(controls, voice.ControlPong)
		return ok
	})

	close(tr.in)
	<-done
}

func TestSession_BandwidthReasonCarriesByteCount(t *testing.T) {
	t.Parallel()
	limits := generousLimits()
	limits.MaxBytesPerSecond = 10 // 20-byte burst capacity

	tr := newFakeTransport()
	s := newTestSession(tr, limits, defaultPipeline(), Config{})
	done := runSession(s)

	tr.in <- inFrame{data: make([]byte, 500), binary: true}

	waitFor(t, func() bool {
		controls, _ := tr.snapshot()
		c, ok := controlOfType(controls, voice.ControlError)
		return ok && c.Message == "Bandwidth limit exceeded (500 bytes)"
	})

	close(tr.in)
	<-done
}

func TestSession_OversizedFrameRejectedNotFatal(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	s := newTestSession(tr, generousLimits(), defaultPipeline(), Config{MaxFrameBytes: 100})
	done := runSession(s)

	tr.in <- inFrame{data: make([]byte, 200), binary: true}

	waitFor(t, func() bool {
		controls, _ := tr.snapshot()
		c, ok := controlOfType(controls, voice.ControlError)
		return ok && c.Message == "Frame exceeds maximum size (200 bytes)"
	})

	// Still active afterwards.
	tr.in <- inFrame{data: []byte(`{"type":"ping"}`)}
	waitFor(t, func() bool {
		controls, _ := tr.snapshot()
		_, ok := controlOfType(controls, voice.ControlPong)
		return ok
	})

	close(tr.in)
	<-done
}

func TestSession_QueueFullDropsFrame(t *testing.T) {
	t.Parallel()
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	blocking := &testutil.FakeTranscriber{
		TranscribeFn: func(ctx context.Context, _ []byte) (*voice.Transcription, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil, nil
		},
	}

	tr := newFakeTransport()
	pipe := Pipeline{Transcriber: blocking}
	s := newTestSession(tr, generousLimits(), pipe, Config{QueueDepth: 1})
	done := runSession(s)

	// First frame occupies the consumer, second fills the queue, third drops.
	tr.in <- inFrame{data: []byte("a"), binary: true}
	<-started
	tr.in <- inFrame{data: []byte("b"), binary: true}
	tr.in <- inFrame{data: []byte("c"), binary: true}

	waitFor(t, func() bool {
		controls, _ := tr.snapshot()
		c, ok := controlOfType(controls, voice.ControlError)
		return ok && c.Message == "Server busy, frame dropped."
	})

	close(release)
	close(tr.in)
	<-done
}

func TestSession_DisconnectUnblocksPendingStage(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{})
	stalled := &testutil.FakeTranscriber{
		TranscribeFn: func(ctx context.Context, _ []byte) (*voice.Transcription, error) {
			close(entered)
			// No internal deadline, like a vendor stream during an outage.
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	tr := newFakeTransport()
	s := newTestSession(tr, generousLimits(), Pipeline{Transcriber: stalled}, Config{})
	done := runSession(s)

	// One admitted frame parks the consumer inside the stage, then the
	// client hangs up while the stage is still waiting on its context.
	tr.in <- inFrame{data: []byte("pcm"), binary: true}
	<-entered
	close(tr.in)

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("Run returned %v, want io.EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session never ended with a stage blocked on its context")
	}
}

func TestSession_EndCallTerminatesCleanly(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	s := newTestSession(tr, generousLimits(), defaultPipeline(), Config{})
	done := runSession(s)

	tr.in <- inFrame{data: []byte(`{"type":"end_call"}`)}

	if err := <-done; err != nil {
		t.Errorf("Run returned %v, want nil on end_call", err)
	}
}

func TestSession_UnknownControlReportsError(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	s := newTestSession(tr, generousLimits(), defaultPipeline(), Config{})
	done := runSession(s)

	tr.in <- inFrame{data: []byte(`{"type":"teleport"}`)}

	waitFor(t, func() bool {
		controls, _ := tr.snapshot()
		c, ok := controlOfType(controls, voice.ControlError)
		return ok && c.Message == "Unknown message type: teleport"
	})

	close(tr.in)
	<-done
}

func TestSession_CancelledContextReturnsNil(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	s := newTestSession(tr, generousLimits(), defaultPipeline(), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Let the loop start, then cancel as a read timeout would.
	waitFor(t, func() bool {
		_, audio := tr.snapshot()
		return len(audio) > 0
	})
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run returned %v, want nil on cancellation", err)
	}
}

func TestSession_TranscriberErrorReported(t *testing.T) {
	t.Parallel()
	failing := &testutil.FakeTranscriber{
		TranscribeFn: func(context.Context, []byte) (*voice.Transcription, error) {
			return nil, errors.New("stt unavailable")
		},
	}
	tr := newFakeTransport()
	s := newTestSession(tr, generousLimits(), Pipeline{Transcriber: failing}, Config{})
	done := runSession(s)

	tr.in <- inFrame{data: []byte("pcm"), binary: true}

	waitFor(t, func() bool {
		controls, _ := tr.snapshot()
		c, ok := controlOfType(controls, voice.ControlError)
		return ok && c.Message == "Could not recognize speech"
	})

	close(tr.in)
	<-done
}
