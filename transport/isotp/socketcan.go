package isotp

import (
	"github.com/brutella/can"
)

// socketcanBus adapts github.com/brutella/can to the CanBus interface,
// the same wrapping the teacher's socketcan.go does for CANopen's own Bus
// interface: convert frame types at the boundary, nothing else.
type socketcanBus struct {
	bus     *can.Bus
	handler func(Frame)
}

// NewSocketcanBus opens a real SocketCAN interface (e.g. "vcan0", "can0").
func NewSocketcanBus(name string) (CanBus, error) {
	bus, err := can.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, err
	}
	return &socketcanBus{bus: bus}, nil
}

// Send implements CanBus.
func (s *socketcanBus) Send(f Frame) error {
	frame := can.Frame{ID: f.ID, Length: uint8(len(f.Data))}
	copy(frame.Data[:], f.Data)
	return s.bus.Publish(frame)
}

// Subscribe implements CanBus.
func (s *socketcanBus) Subscribe(handler func(Frame)) {
	s.handler = handler
	s.bus.Subscribe(s)
}

// Connect implements CanBus: brutella/can's receive loop blocks, so it is
// run in its own goroutine the way the teacher's SocketcanBus.Connect does.
func (s *socketcanBus) Connect() error {
	go s.bus.ConnectAndPublish()
	return nil
}

// Handle implements brutella/can's frame-handling interface.
func (s *socketcanBus) Handle(frame can.Frame) {
	if s.handler != nil {
		s.handler(Frame{ID: frame.ID, Data: append([]byte{}, frame.Data[:frame.Length]...)})
	}
}
