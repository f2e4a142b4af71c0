// Package voice defines domain types and interfaces for the voxgate voice
// gateway. This package has no project imports; it is the dependency root.
package voice

import (
	"context"
)

// --- Speech pipeline ---

// Transcription is a speech-to-text result for one or more audio frames.
type Transcription struct {
	Text  string `json:"text"`
	Final bool   `json:"is_final"`
}

// Transcriber converts inbound audio frames into text. Implementations wrap
// a vendor STT service; partial results carry Final=false.
type Transcriber interface {
	// Transcribe feeds one audio frame and returns the resulting
	// transcription, or nil when the frame produced no output yet.
	Transcribe(ctx context.Context, audio []byte) (*Transcription, error)
}

// Agent produces the conversational reply for a finalized utterance.
type Agent interface {
	// Greeting returns the opening line spoken when a call starts.
	// Empty string means no greeting.
	Greeting() string
	// Respond generates the reply text for the user's utterance.
	Respond(ctx context.Context, callID, userText string) (string, error)
}

// Synthesizer converts reply text into an audio payload.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// --- Control messages ---

// Control is a JSON text message exchanged over the call transport.
// The zero fields are omitted, so the same type serves status, error,
// transcription and response messages.
type Control struct {
	Type    string `json:"type"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
	Final   bool   `json:"is_final,omitempty"`
	CallID  string `json:"call_id,omitempty"`
}

// Control message types.
const (
	ControlStatus        = "status"
	ControlError         = "error"
	ControlTranscription = "transcription"
	ControlResponse      = "agent_response"
	ControlPong          = "pong"
)

// Call status values sent to the client while a frame moves through the pipeline.
const (
	StatusListening  = "listening"
	StatusProcessing = "processing"
	StatusSpeaking   = "speaking"
)
