// Package testutil provides configurable test fakes for gateway interfaces.
package testutil

import (
	"context"

	voice "github.com/voxgate/voxgate/internal"
)

// FakeTranscriber is a configurable voice.Transcriber for testing.
type FakeTranscriber struct {
	TranscribeFn func(ctx context.Context, audio []byte) (*voice.Transcription, error)
}

// Transcribe delegates to TranscribeFn or returns a fixed final result.
func (f *FakeTranscriber) Transcribe(ctx context.Context, audio []byte) (*voice.Transcription, error) {
	if f.TranscribeFn != nil {
		return f.TranscribeFn(ctx, audio)
	}
	return &voice.Transcription{Text: "hello", Final: true}, nil
}

// FakeAgent is a configurable voice.Agent for testing.
type FakeAgent struct {
	GreetingText string
	RespondFn    func(ctx context.Context, callID, userText string) (string, error)
}

// Greeting returns the configured greeting.
func (f *FakeAgent) Greeting() string { return f.GreetingText }

// Respond delegates to RespondFn or echoes the input.
func (f *FakeAgent) Respond(ctx context.Context, callID, userText string) (string, error) {
	if f.RespondFn != nil {
		return f.RespondFn(ctx, callID, userText)
	}
	return "you said: " + userText, nil
}

// FakeSynthesizer is a configurable voice.Synthesizer for testing.
type FakeSynthesizer struct {
	SynthesizeFn func(ctx context.Context, text string) ([]byte, error)
}

// Synthesize delegates to SynthesizeFn or returns the text prefixed as audio.
func (f *FakeSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if f.SynthesizeFn != nil {
		return f.SynthesizeFn(ctx, text)
	}
	return []byte("audio:" + text), nil
}
