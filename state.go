package vision

import (
	"context"
	"sync/atomic"
)

// State is a step of the per-call recognition state machine:
//
//	Idle → Capturing → Extracting → Matching → Decided → Idle
//
// Failures return to Idle from the state they occurred in. RecognizeToken
// starts from an encoded token and skips Extracting.
type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateExtracting
	StateMatching
	StateDecided
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCapturing:
		return "Capturing"
	case StateExtracting:
		return "Extracting"
	case StateMatching:
		return "Matching"
	case StateDecided:
		return "Decided"
	default:
		return "Unknown"
	}
}

// StateObserver is notified of every transition of a recognition call.
// It is called synchronously and must be safe for concurrent use.
type StateObserver func(callID uint64, from, to State)

// call tracks the state of one recognition.
type call struct {
	id       uint64
	state    State
	logger   *Logger
	observer StateObserver
}

var callIDs atomic.Uint64

func (o *Orchestrator) newCall() *call {
	id := callIDs.Add(1)
	return &call{
		id:       id,
		state:    StateIdle,
		logger:   o.logger.WithCall(id),
		observer: o.observer,
	}
}

func (c *call) to(ctx context.Context, next State) {
	prev := c.state
	if prev == next {
		return
	}
	c.state = next
	c.logger.LogState(ctx, prev, next)
	if c.observer != nil {
		c.observer(c.id, prev, next)
	}
}
