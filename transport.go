package uds

// Transport is the boundary this core depends on (spec.md §4.7/§6). It is
// synchronous: Send blocks until the reassembled application-layer response
// arrives or the implementation's own P2 timer expires.
//
// Frame-level detail (ISO-TP segmentation, flow control, padding, CAN
// arbitration) is entirely the implementation's concern — see
// transport/isotp for a concrete one and transport/virtual for the double
// used throughout this repo's tests.
type Transport interface {
	Send(request []byte) ([]byte, error)
}
