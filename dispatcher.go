package uds

import (
	log "github.com/sirupsen/logrus"
)

// Connection drives a single UDS exchange at a time over one Transport,
// using descriptors compiled into a ServiceContainer. It holds no locks:
// it owns the transport for the duration of each exchange, and the caller
// is responsible for serializing back-to-back calls (spec.md §5).
type Connection struct {
	transport Transport
	rdbi      *ServiceContainer
}

// NewConnection wires a compiled RDBI ServiceContainer to a Transport. Use
// CompileOdx (odx_compiler.go) to build the container from an ODX file.
func NewConnection(transport Transport, rdbi *ServiceContainer) *Connection {
	return &Connection{transport: transport, rdbi: rdbi}
}

// ReadDataByIdentifier performs a Read-Data-By-Identifier exchange for one
// or more DID names (spec.md §4.6). A single name returns a
// map[string]any; two or more names return a []map[string]any in request
// order. A negative response short-circuits and is returned as a
// *NegativeResponse value, not an error.
func (c *Connection) ReadDataByIdentifier(names ...string) (any, error) {
	if len(names) == 0 {
		return nil, ErrUnknownIdentifier
	}

	descriptors := make([]*ServiceDescriptor, len(names))
	for i, name := range names {
		d, err := c.rdbi.Lookup(name)
		if err != nil {
			return nil, err
		}
		descriptors[i] = d
	}

	if err := checkConcatenationIsUnambiguous(descriptors); err != nil {
		return nil, err
	}

	request := append([]byte{}, descriptors[0].RequestSID...)
	for _, d := range descriptors {
		request = append(request, d.RequestDID...)
	}
	log.Debugf("readDataByIdentifier request: % X", request)

	response, err := c.transport.Send(request)
	if err != nil {
		return nil, err
	}
	log.Debugf("readDataByIdentifier response: % X", response)

	if neg := descriptors[0].NegChecker.Check(response); neg != nil {
		return neg, nil
	}

	first := descriptors[0].PosResponse
	if err := first.CheckSIDInResponse(response); err != nil {
		return nil, err
	}
	remaining := response[first.SidLength:]

	results := make([]map[string]any, len(descriptors))
	for i, d := range descriptors {
		parsedParams, consumed, err := d.PosResponse.ParseDIDResponseComponent(remaining)
		if err != nil {
			return nil, err
		}
		if err := d.PosResponse.CheckDIDInResponse(consumed); err != nil {
			return nil, err
		}
		decoded, err := Decode(parsedParams)
		if err != nil {
			return nil, err
		}
		results[i] = decoded
		remaining = remaining[len(consumed):]
	}

	if len(remaining) != 0 {
		return nil, ErrUnexpectedTrailingBytes
	}

	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

// checkConcatenationIsUnambiguous rejects multi-DID calls where any DID's
// DATA param is END-OF-PDU terminated — its payload would consume the rest
// of the buffer, leaving nothing for subsequent DIDs (spec.md §9, resolved
// in SPEC_FULL.md §9 item 4).
func checkConcatenationIsUnambiguous(descriptors []*ServiceDescriptor) error {
	if len(descriptors) < 2 {
		return nil
	}
	for _, d := range descriptors {
		for _, p := range d.PosResponse.Params {
			if p.DiagCodedType.Kind == MinMaxLengthKind && p.DiagCodedType.Termination == TerminationEndOfPdu {
				return ErrAmbiguousConcatenation
			}
		}
	}
	return nil
}
