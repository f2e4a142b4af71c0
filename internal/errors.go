package voice

import "errors"

// Sentinel errors for the voice gateway domain.
var (
	ErrTooManyConnections  = errors.New("too many connections")
	ErrCallNotFound        = errors.New("call not found")
	ErrCallEnded           = errors.New("call ended")
	ErrPipelineUnavailable = errors.New("pipeline unavailable")
	ErrBadRequest          = errors.New("bad request")
)
