package uds

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"
)

// PosResponse is the compiled, immutable per-DID positive-response
// descriptor. Params carries descriptor templates only (Data is always nil
// here) — per spec.md §9, a ServiceContainer's PosResponse must not mutate
// shared state across calls, so parsing clones Params into a fresh slice
// per exchange (see ParseDIDResponseComponent).
type PosResponse struct {
	SidLength int
	SID       byte
	DidLength int
	DID       uint16
	Params    []*Param
}

// CheckSIDInResponse validates the leading SidLength bytes of a full
// response against SID.
func (r *PosResponse) CheckSIDInResponse(resp []byte) error {
	if len(resp) < r.SidLength {
		return ErrResponseTooShort
	}
	actual := beUint(resp[:r.SidLength])
	if byte(actual) != r.SID {
		return &SidMismatchError{Expected: r.SID, Actual: byte(actual)}
	}
	return nil
}

// CheckDIDInResponse validates the leading DidLength bytes of a DID's
// response slice against DID.
func (r *PosResponse) CheckDIDInResponse(didSlice []byte) error {
	if len(didSlice) < r.DidLength {
		return ErrResponseTooShort
	}
	actual := uint16(beUint(didSlice[:r.DidLength]))
	if actual != r.DID {
		return &DidMismatchError{Expected: r.DID, Actual: actual}
	}
	return nil
}

// ParseDIDResponseComponent walks Params in order over tail (which begins
// at this DID's own DID bytes), consuming exactly as many bytes as each
// Param requires. It returns fresh Param instances carrying captured
// bytes (leaving the compiled templates in r.Params untouched) and the
// slice of tail actually consumed (DID bytes + every Param's bytes).
func (r *PosResponse) ParseDIDResponseComponent(tail []byte) ([]*Param, []byte, error) {
	if len(tail) < r.DidLength {
		return nil, nil, ErrResponseTooShort
	}
	cursor := r.DidLength
	parsed := make([]*Param, 0, len(r.Params))
	for _, template := range r.Params {
		paramLen, err := template.CalculateLength(tail[cursor:])
		if err != nil {
			return nil, nil, err
		}
		if cursor+paramLen > len(tail) {
			return nil, nil, ErrResponseTooShort
		}
		p := template.clone()
		p.Data = tail[cursor : cursor+paramLen]
		parsed = append(parsed, p)
		cursor += paramLen
	}
	log.Debugf("parsed DID 0x%04X response component: %d bytes consumed", r.DID, cursor)
	return parsed, tail[:cursor], nil
}

// Decode turns a slice of populated Params (as returned by
// ParseDIDResponseComponent) into a short_name -> value map.
func Decode(params []*Param) (map[string]any, error) {
	result := make(map[string]any, len(params))
	for _, p := range params {
		v, err := p.Decode()
		if err != nil {
			return nil, err
		}
		result[p.ShortName] = v
	}
	return result, nil
}

func beUint(b []byte) uint64 {
	buf := make([]byte, 8)
	copy(buf[8-len(b):], b)
	return binary.BigEndian.Uint64(buf)
}
