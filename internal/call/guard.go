package call

import (
	"context"

	voice "github.com/voxgate/voxgate/internal"
	"github.com/voxgate/voxgate/internal/circuitbreaker"
)

// GuardPipeline wraps each configured stage with its own circuit breaker.
// An open breaker fails the stage with ErrPipelineUnavailable immediately,
// which the session reports to the client like any other stage error; the
// call itself stays up.
func GuardPipeline(p Pipeline, cfg circuitbreaker.Config) Pipeline {
	if p.Transcriber != nil {
		p.Transcriber = &guardedTranscriber{
			next:    p.Transcriber,
			breaker: circuitbreaker.NewBreaker(cfg),
		}
	}
	if p.Agent != nil {
		p.Agent = &guardedAgent{
			next:    p.Agent,
			breaker: circuitbreaker.NewBreaker(cfg),
		}
	}
	if p.Synthesizer != nil {
		p.Synthesizer = &guardedSynthesizer{
			next:    p.Synthesizer,
			breaker: circuitbreaker.NewBreaker(cfg),
		}
	}
	return p
}

type guardedTranscriber struct {
	next    voice.Transcriber
	breaker *circuitbreaker.Breaker
}

func (g *guardedTranscriber) Transcribe(ctx context.Context, audio []byte) (*voice.Transcription, error) {
	if !g.breaker.Allow() {
		return nil, voice.ErrPipelineUnavailable
	}
	tr, err := g.next.Transcribe(ctx, audio)
	if err != nil {
		g.breaker.RecordError(circuitbreaker.ClassifyError(err))
		return nil, err
	}
	g.breaker.RecordSuccess()
	return tr, nil
}

type guardedAgent struct {
	next    voice.Agent
	breaker *circuitbreaker.Breaker
}

// Greeting is a local lookup, never a remote call; it bypasses the breaker.
func (g *guardedAgent) Greeting() string { return g.next.Greeting() }

func (g *guardedAgent) Respond(ctx context.Context, callID, userText string) (string, error) {
	if !g.breaker.Allow() {
		return "", voice.ErrPipelineUnavailable
	}
	reply, err := g.next.Respond(ctx, callID, userText)
	if err != nil {
		g.breaker.RecordError(circuitbreaker.ClassifyError(err))
		return "", err
	}
	g.breaker.RecordSuccess()
	return reply, nil
}

type guardedSynthesizer struct {
	next    voice.Synthesizer
	breaker *circuitbreaker.Breaker
}

func (g *guardedSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if !g.breaker.Allow() {
		return nil, voice.ErrPipelineUnavailable
	}
	audio, err := g.next.Synthesize(ctx, text)
	if err != nil {
		g.breaker.RecordError(circuitbreaker.ClassifyError(err))
		return nil, err
	}
	g.breaker.RecordSuccess()
	return audio, nil
}
