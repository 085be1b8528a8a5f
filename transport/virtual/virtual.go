// Package virtual provides an in-process uds.Transport double, the role
// the teacher codebase's VirtualCanBus (virtual.go) plays for CANopen
// tests — minus the TCP framing, since this core exchanges one
// request/response pair at a time rather than a stream of CAN frames.
package virtual

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Handler computes a response for a given request. Used when a test wants
// to react to the request bytes (e.g. to assert on them) rather than just
// replay a canned response.
type Handler func(request []byte) ([]byte, error)

// Transport implements uds.Transport without touching real hardware. It
// can be driven either by a fixed queue of responses (FIFO, one per call)
// or by a Handler; a Handler set via SetHandler takes priority.
type Transport struct {
	mu        sync.Mutex
	responses [][]byte
	handler   Handler
	requests  [][]byte
}

// New returns an empty virtual transport. Configure it with SetHandler or
// QueueResponse before use.
func New() *Transport {
	return &Transport{}
}

// NewWithResponse is a convenience constructor for a transport with response
// already queued: the first Send returns it, and later Sends fail unless more
// responses are queued or a Handler is set (spec.md scenarios S1/S2/S4-S6
// only ever need a single canned response).
func NewWithResponse(response []byte) *Transport {
	return &Transport{responses: [][]byte{response}}
}

// QueueResponse appends a response to be returned by the next Send call
// that isn't satisfied by a Handler.
func (t *Transport) QueueResponse(response []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses = append(t.responses, response)
}

// SetHandler installs a function computing each response from its request.
func (t *Transport) SetHandler(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Requests returns every request Send has received so far, in order —
// useful for asserting on the bytes the Dispatcher built (spec.md §8
// invariants 1/2).
func (t *Transport) Requests() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.requests))
	copy(out, t.requests)
	return out
}

// Send implements uds.Transport.
func (t *Transport) Send(request []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.requests = append(t.requests, append([]byte{}, request...))
	log.Debugf("virtual transport: request % X", request)

	if t.handler != nil {
		return t.handler(request)
	}
	if len(t.responses) == 0 {
		return nil, errNoResponseQueued
	}
	response := t.responses[0]
	t.responses = t.responses[1:]
	log.Debugf("virtual transport: response % X", response)
	return response, nil
}

var errNoResponseQueued = transportError("virtual transport: no response queued and no handler set")

type transportError string

func (e transportError) Error() string { return string(e) }
