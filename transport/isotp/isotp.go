// Package isotp implements a uds.Transport over ISO 15765-2 (ISO-TP)
// segmentation on top of a CAN bus. The segmentation/reassembly loop is
// new (the teacher has no equivalent protocol), but its shape — a
// Bus-style send/subscribe interface plus a timeout-guarded blocking
// wait for the matching reply — is grounded on the teacher's BusManager
// (bus.go) and SDO client timeout handling (sdo_client.go).
package isotp

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	uds "github.com/JoSglch/uds-odx"
	"github.com/JoSglch/uds-odx/config"
	"github.com/JoSglch/uds-odx/internal/reassembly"
)

// Frame is the subset of a CAN frame isotp needs. Keeping it local to
// this package (instead of importing brutella/can's type directly into
// the protocol logic) lets the segmentation/reassembly code be driven by
// a fake CanBus in tests.
type Frame struct {
	ID   uint32
	Data []byte
}

// CanBus is the link-layer dependency isotp needs. socketcan.go adapts
// github.com/brutella/can to this interface.
type CanBus interface {
	Send(Frame) error
	Subscribe(handler func(Frame))
	Connect() error
}

const (
	pciTypeSingleFrame      = 0x0
	pciTypeFirstFrame       = 0x1
	pciTypeConsecutiveFrame = 0x2
	pciTypeFlowControl      = 0x3

	flowStatusContinueToSend = 0x0
	flowStatusWait           = 0x1
	flowStatusOverflow       = 0x2

	maxSingleFrameLen = 7
	reassemblyCap     = 4096
)

// Transport implements uds.Transport by segmenting a UDS request over
// ISO-TP frames and reassembling the ISO-TP response. Only NORMAL
// addressing is implemented; extended/mixed addressing is rejected at
// construction (spec.md §6's other addressing_type values parse but are
// not wired to a transport behavior yet).
type Transport struct {
	bus CanBus

	reqID, resID uint32
	p2Client     time.Duration

	mu      sync.Mutex
	replies chan Frame

	cancelMu sync.Mutex
	cancel   chan struct{}
}

// New builds a Transport bound to bus using cfg's arbitration IDs and P2
// timer. bus.Connect is called once; incoming frames on cfg.ResID are
// buffered for the next Send call awaiting a reply.
func New(bus CanBus, cfg *config.ConnectionConfig) (*Transport, error) {
	if cfg.AddressingType != config.AddressingNormal {
		return nil, fmt.Errorf("isotp: addressing type %q: %w", cfg.AddressingType, notImplemented("non-NORMAL ISO-TP addressing"))
	}
	if cfg.TransportProtocol != config.TransportProtocolCAN {
		return nil, fmt.Errorf("isotp: transport protocol %q: %w", cfg.TransportProtocol, notImplemented("non-CAN transport protocol"))
	}

	t := &Transport{
		bus:      bus,
		reqID:    cfg.ReqID,
		resID:    cfg.ResID,
		p2Client: time.Duration(cfg.P2CanClient * float64(time.Second)),
		replies:  make(chan Frame, 16),
	}

	bus.Subscribe(t.onFrame)
	if err := bus.Connect(); err != nil {
		return nil, fmt.Errorf("isotp: connect: %w: %w", uds.ErrTransportIO, err)
	}
	return t, nil
}

func (t *Transport) onFrame(f Frame) {
	if f.ID != t.resID {
		return
	}
	select {
	case t.replies <- f:
	default:
		log.Warn("isotp: reply channel full, dropping frame")
	}
}

// Send implements uds.Transport: it segments request into ISO-TP frames,
// sends it, then blocks for the reassembled reply or until the P2 client
// timer expires. Cancel aborts an in-flight Send from another goroutine.
func (t *Transport) Send(request []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cancel := make(chan struct{})
	t.cancelMu.Lock()
	t.cancel = cancel
	t.cancelMu.Unlock()

	if err := t.sendPayload(request, cancel); err != nil {
		return nil, err
	}
	return t.receivePayload(cancel)
}

// Cancel aborts the Transport's in-flight Send, if any, causing it to
// return uds.ErrCancelled. It is a no-op if nothing is in flight.
func (t *Transport) Cancel() {
	t.cancelMu.Lock()
	defer t.cancelMu.Unlock()
	if t.cancel == nil {
		return
	}
	select {
	case <-t.cancel:
	default:
		close(t.cancel)
	}
}

func (t *Transport) sendPayload(payload []byte, cancel chan struct{}) error {
	if len(payload) <= maxSingleFrameLen {
		data := make([]byte, len(payload)+1)
		data[0] = byte(pciTypeSingleFrame<<4) | byte(len(payload))
		copy(data[1:], payload)
		if err := t.bus.Send(Frame{ID: t.reqID, Data: data}); err != nil {
			return fmt.Errorf("isotp: send single frame: %w: %w", uds.ErrTransportIO, err)
		}
		return nil
	}

	first := make([]byte, 8)
	first[0] = byte(pciTypeFirstFrame<<4) | byte((len(payload)>>8)&0x0F)
	first[1] = byte(len(payload) & 0xFF)
	copy(first[2:], payload[:6])
	if err := t.bus.Send(Frame{ID: t.reqID, Data: first}); err != nil {
		return fmt.Errorf("isotp: send first frame: %w: %w", uds.ErrTransportIO, err)
	}

	fc, err := t.awaitFlowControl(cancel)
	if err != nil {
		return err
	}

	remaining := payload[6:]
	seq := byte(1)
	for len(remaining) > 0 {
		chunkLen := 7
		if len(remaining) < chunkLen {
			chunkLen = len(remaining)
		}
		data := make([]byte, chunkLen+1)
		data[0] = byte(pciTypeConsecutiveFrame<<4) | (seq & 0x0F)
		copy(data[1:], remaining[:chunkLen])
		if err := t.bus.Send(Frame{ID: t.reqID, Data: data}); err != nil {
			return fmt.Errorf("isotp: send consecutive frame: %w: %w", uds.ErrTransportIO, err)
		}
		if fc.separationTime > 0 {
			time.Sleep(fc.separationTime)
		}
		remaining = remaining[chunkLen:]
		seq++
	}
	return nil
}

type flowControl struct {
	separationTime time.Duration
}

func (t *Transport) awaitFlowControl(cancel chan struct{}) (flowControl, error) {
	deadline := time.NewTimer(t.p2Client)
	defer deadline.Stop()
	for {
		select {
		case f := <-t.replies:
			if len(f.Data) == 0 || f.Data[0]>>4 != pciTypeFlowControl {
				continue
			}
			status := f.Data[0] & 0x0F
			if status == flowStatusOverflow {
				return flowControl{}, fmt.Errorf("isotp: flow control overflow")
			}
			if status == flowStatusWait {
				continue
			}
			st := stMinToDuration(f.Data[2])
			return flowControl{separationTime: st}, nil
		case <-deadline.C:
			return flowControl{}, uds.ErrTransportTimeout
		case <-cancel:
			return flowControl{}, uds.ErrCancelled
		}
	}
}

func stMinToDuration(raw byte) time.Duration {
	switch {
	case raw <= 0x7F:
		return time.Duration(raw) * time.Millisecond
	case raw >= 0xF1 && raw <= 0xF9:
		return time.Duration(raw-0xF0) * 100 * time.Microsecond
	default:
		return 0
	}
}

func (t *Transport) receivePayload(cancel chan struct{}) ([]byte, error) {
	deadline := time.NewTimer(t.p2Client)
	defer deadline.Stop()

	var f Frame
	select {
	case f = <-t.replies:
	case <-deadline.C:
		return nil, uds.ErrTransportTimeout
	case <-cancel:
		return nil, uds.ErrCancelled
	}

	if len(f.Data) == 0 {
		return nil, fmt.Errorf("isotp: empty frame received")
	}

	switch f.Data[0] >> 4 {
	case pciTypeSingleFrame:
		n := int(f.Data[0] & 0x0F)
		if n > len(f.Data)-1 {
			return nil, fmt.Errorf("isotp: single frame declares length %d longer than payload", n)
		}
		return append([]byte{}, f.Data[1:1+n]...), nil

	case pciTypeFirstFrame:
		total := int(f.Data[0]&0x0F)<<8 | int(f.Data[1])
		if total > reassemblyCap {
			return nil, fmt.Errorf("isotp: reassembly buffer too small for %d byte message", total)
		}
		buf := reassembly.New(reassemblyCap)
		buf.Write(f.Data[2:])

		if err := t.bus.Send(Frame{ID: t.reqID, Data: []byte{byte(pciTypeFlowControl<<4) | flowStatusContinueToSend, 0, 0}}); err != nil {
			return nil, fmt.Errorf("isotp: send flow control: %w: %w", uds.ErrTransportIO, err)
		}

		for buf.Occupied() < total {
			select {
			case cf := <-t.replies:
				if len(cf.Data) == 0 || cf.Data[0]>>4 != pciTypeConsecutiveFrame {
					continue
				}
				buf.Write(cf.Data[1:])
			case <-deadline.C:
				return nil, uds.ErrTransportTimeout
			case <-cancel:
				return nil, uds.ErrCancelled
			}
		}
		return buf.ReadAll()[:total], nil

	default:
		return nil, fmt.Errorf("isotp: unexpected PCI type %#x in reply", f.Data[0]>>4)
	}
}

type notImplementedError string

func (e notImplementedError) Error() string { return string(e) }

func notImplemented(feature string) error { return notImplementedError("isotp: not implemented: " + feature) }
