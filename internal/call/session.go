// Package call implements the per-call WebSocket session loop: frame
// admission, control messages, and the downstream speech pipeline.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	voice "github.com/voxgate/voxgate/internal"
	"github.com/voxgate/voxgate/internal/ratelimit"
	"github.com/voxgate/voxgate/internal/telemetry"
)

// Transport is the session's view of the WebSocket connection.
type Transport interface {
	// ReadFrame blocks until the next inbound frame. binary reports whether
	// the frame is an audio payload (true) or a JSON control message.
	ReadFrame(ctx context.Context) (data []byte, binary bool, err error)
	// WriteControl sends a JSON control message to the client.
	WriteControl(ctx context.Context, msg voice.Control) error
	// WriteAudio sends a binary audio payload to the client.
	WriteAudio(ctx context.Context, data []byte) error
}

// Pipeline bundles the downstream speech collaborators. Any field may be nil;
// the corresponding stage is then skipped.
type Pipeline struct {
	Transcriber voice.Transcriber
	Agent       voice.Agent
	Synthesizer voice.Synthesizer
}

// Config holds per-session frame policy.
type Config struct {
	MaxFrameBytes int // absolute single-frame ceiling, independent of buckets
	QueueDepth    int // bounded downstream frame queue
}

// Session drives one voice call over a Transport. The connection slot is
// acquired and released by the caller; the session itself only consumes the
// per-frame checks.
type Session struct {
	id        string
	key       ratelimit.ClientKey
	limiter   *ratelimit.Limiter
	usage     *ratelimit.UsageTracker
	transport Transport
	pipe      Pipeline
	cfg       Config
	metrics   *telemetry.Metrics

	frames chan []byte
}

// New creates a session for an already-admitted connection. usage and
// metrics may be nil.
func New(id string, key ratelimit.ClientKey, limiter *ratelimit.Limiter, transport Transport, pipe Pipeline, cfg Config, usage *ratelimit.UsageTracker, metrics *telemetry.Metrics) *Session {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 16
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 1_000_000
	}
	return &Session{
		id:        id,
		key:       key,
		limiter:   limiter,
		usage:     usage,
		transport: transport,
		pipe:      pipe,
		cfg:       cfg,
		metrics:   metrics,
		frames:    make(chan []byte, cfg.QueueDepth),
	}
}

// Run processes the call until the client disconnects, sends end_call, or
// ctx is cancelled. Throttled frames never terminate the session; only
// transport errors and cancellation do. Run returns nil on a normal end.
func (s *Session) Run(ctx context.Context) error {
	ctx = voice.ContextWithCallID(ctx, s.id)
	ctx, span := telemetry.Tracer("voxgate/call").Start(ctx, "call.session",
		trace.WithAttributes(
			attribute.String("call.id", s.id),
			attribute.String("call.origin", s.key.Origin),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.CallDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if err := s.sendGreeting(ctx); err != nil {
		return fmt.Errorf("send greeting: %w", err)
	}

	// Downstream consumer. The bounded frames channel decouples the read
	// loop from pipeline latency; admission drops frames when it is full.
	pipelineDone := make(chan struct{})
	pipelineCtx, cancelPipeline := context.WithCancel(ctx)
	go func() {
		defer close(pipelineDone)
		for frame := range s.frames {
			s.process(pipelineCtx, frame)
		}
	}()
	// Cancel before waiting: a stage parked on pipelineCtx must be released
	// or the drain below never finishes. The session ctx is the hijacked
	// request's and does not end on client disconnect.
	defer func() {
		cancelPipeline()
		close(s.frames)
		<-pipelineDone
	}()

	for {
		data, binary, err := s.transport.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		// Bound idle-bucket growth; cheap early exit makes this safe on
		// every frame.
		s.limiter.CleanupOldBuckets()

		if binary {
			s.admitFrame(ctx, data)
			continue
		}
		if err := s.handleControl(ctx, data); err != nil {
			if errors.Is(err, voice.ErrCallEnded) {
				return nil
			}
			return err
		}
	}
}

// admitFrame runs the per-frame admission chain: message rate, bandwidth,
// size ceiling, queue depth. A rejected frame is reported and dropped; the
// session stays active.
func (s *Session) admitFrame(ctx context.Context, data []byte) {
	if allowed, reason := s.limiter.CheckMessageRate(s.key); !allowed {
		s.rejectFrame(ctx, telemetry.RejectMessage, reason)
		return
	}
	if allowed, reason := s.limiter.CheckBandwidth(s.key, len(data)); !allowed {
		s.rejectFrame(ctx, telemetry.RejectBandwidth, reason)
		return
	}
	// The buckets smooth sustained rate; the absolute ceiling bounds
	// worst-case memory per frame regardless of bucket state.
	if len(data) > s.cfg.MaxFrameBytes {
		s.rejectFrame(ctx, telemetry.RejectOversize,
			fmt.Sprintf("Frame exceeds maximum size (%d bytes)", len(data)))
		return
	}

	select {
	case s.frames <- data:
		if s.usage != nil {
			s.usage.RecordFrame(s.key.Origin, len(data))
		}
		if s.metrics != nil {
			s.metrics.FramesTotal.Inc()
			s.metrics.FrameBytesTotal.Add(float64(len(data)))
		}
	default:
		// Slow consumer, not fast producer: backpressure, orthogonal to
		// the rate buckets.
		if s.metrics != nil {
			s.metrics.PipelineQueueFull.Inc()
			s.metrics.RateLimitRejects.WithLabelValues(telemetry.RejectQueueFull).Inc()
		}
		slog.Warn("frame dropped, pipeline queue full", "call_id", s.id, "client", s.key.String())
		s.writeError(ctx, "Server busy, frame dropped.")
	}
}

// rejectFrame reports a throttled frame to the client and metrics.
func (s *Session) rejectFrame(ctx context.Context, kind, reason string) {
	if s.metrics != nil {
		s.metrics.RateLimitRejects.WithLabelValues(kind).Inc()
	}
	s.writeError(ctx, reason)
}

func (s *Session) writeError(ctx context.Context, message string) {
	err := s.transport.WriteControl(ctx, voice.Control{
		Type:    voice.ControlError,
		Message: message,
	})
	if err != nil {
		slog.Warn("write control failed", "call_id", s.id, "error", err)
	}
}

// handleControl dispatches a JSON text frame by its type field.
func (s *Session) handleControl(ctx context.Context, data []byte) error {
	switch msgType := gjson.GetBytes(data, "type").String(); msgType {
	case "ping":
		return s.transport.WriteControl(ctx, voice.Control{Type: voice.ControlPong})
	case "end_call":
		slog.Info("call ended by client", "call_id", s.id)
		return voice.ErrCallEnded
	default:
		s.writeError(ctx, fmt.Sprintf("Unknown message type: %s", msgType))
		return nil
	}
}

// sendGreeting synthesizes and sends the agent's opening line, if any.
func (s *Session) sendGreeting(ctx context.Context) error {
	if s.pipe.Agent == nil || s.pipe.Synthesizer == nil {
		return nil
	}
	greeting := s.pipe.Agent.Greeting()
	if greeting == "" {
		return nil
	}
	audio, err := s.pipe.Synthesizer.Synthesize(ctx, greeting)
	if err != nil {
		// A failed greeting is not fatal; the call proceeds silent.
		slog.Warn("greeting synthesis failed", "call_id", s.id, "error", err)
		return nil
	}
	return s.transport.WriteAudio(ctx, audio)
}

// process runs one admitted audio frame through the speech pipeline:
// transcribe, respond, synthesize. Stage errors are reported to the client
// and never tear down the session.
func (s *Session) process(ctx context.Context, frame []byte) {
	if s.pipe.Transcriber == nil {
		return
	}

	s.sendStatus(ctx, voice.StatusListening)
	tr, err := s.pipe.Transcriber.Transcribe(ctx, frame)
	if err != nil {
		slog.Error("transcription failed", "call_id", s.id, "error", err)
		s.writeError(ctx, "Could not recognize speech")
		return
	}
	if tr == nil || tr.Text == "" {
		return
	}

	if err := s.transport.WriteControl(ctx, voice.Control{
		Type:  voice.ControlTranscription,
		Text:  tr.Text,
		Final: tr.Final,
	}); err != nil {
		slog.Warn("write transcription failed", "call_id", s.id, "error", err)
		return
	}
	if !tr.Final || s.pipe.Agent == nil {
		return
	}

	s.sendStatus(ctx, voice.StatusProcessing)
	reply, err := s.pipe.Agent.Respond(ctx, s.id, tr.Text)
	if err != nil {
		slog.Error("agent response failed", "call_id", s.id, "error", err)
		s.writeError(ctx, "Could not generate a response")
		return
	}

	if err := s.transport.WriteControl(ctx, voice.Control{
		Type: voice.ControlResponse,
		Text: reply,
	}); err != nil {
		slog.Warn("write response failed", "call_id", s.id, "error", err)
		return
	}
	if s.pipe.Synthesizer == nil {
		return
	}

	s.sendStatus(ctx, voice.StatusSpeaking)
	audio, err := s.pipe.Synthesizer.Synthesize(ctx, reply)
	if err != nil {
		slog.Error("synthesis failed", "call_id", s.id, "error", err)
		s.writeError(ctx, "Could not synthesize speech")
		return
	}
	if err := s.transport.WriteAudio(ctx, audio); err != nil {
		slog.Warn("write audio failed", "call_id", s.id, "error", err)
	}
}

func (s *Session) sendStatus(ctx context.Context, status string) {
	err := s.transport.WriteControl(ctx, voice.Control{
		Type:   voice.ControlStatus,
		Status: status,
	})
	if err != nil {
		slog.Warn("write status failed", "call_id", s.id, "error", err)
	}
}
