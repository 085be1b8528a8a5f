// Package config loads connection/session parameters for a UDS
// connection from an INI file, the way the teacher codebase loads its
// object dictionary from an INI-shaped EDS file (see od_parser.go) —
// gopkg.in/ini.v1 is reused here for a much smaller, fixed schema.
package config

import (
	"fmt"
	"strconv"

	"gopkg.in/ini.v1"

	uds "github.com/JoSglch/uds-odx"
)

// AddressingType mirrors the ISO-TP addressing modes this core passes
// through to the transport (spec.md §6). Only NORMAL is implemented by
// transport/isotp today; others parse but are rejected at transport
// construction.
type AddressingType string

const (
	AddressingNormal AddressingType = "NORMAL"
)

// TransportProtocol identifies the underlying link layer (spec.md §6).
type TransportProtocol string

const (
	TransportProtocolCAN TransportProtocol = "CAN"
)

// ConnectionConfig carries every field spec.md §6 enumerates as flowing
// through to the transport and UDS layer constructors.
type ConnectionConfig struct {
	AddressingType AddressingType
	NSA            uint32
	NTA            uint32
	NAE            uint32
	MType          string
	DiscardNegResp bool
	ReqID          uint32
	ResID          uint32

	TransportProtocol TransportProtocol
	P2CanClient       float64
	P2CanServer       float64
}

// LoadConnectionConfig parses path (see SPEC_FULL.md §4.8 for the expected
// [isotp]/[uds] section layout). Missing optional keys fall back to the
// defaults below; a missing required key or unparsable value returns
// uds.ErrConfig-shaped detail via the returned error.
func LoadConnectionConfig(path string) (*ConnectionConfig, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w: %w", uds.ErrConfig, err)
	}
	return connectionConfigFromFile(file)
}

func connectionConfigFromFile(file *ini.File) (*ConnectionConfig, error) {
	isotp := file.Section("isotp")
	udsSection := file.Section("uds")

	cfg := &ConnectionConfig{
		AddressingType:    AddressingType(isotp.Key("addressing_type").MustString(string(AddressingNormal))),
		MType:             isotp.Key("m_type").MustString("DIAGNOSTICS"),
		DiscardNegResp:    isotp.Key("discard_neg_resp").MustBool(false),
		TransportProtocol: TransportProtocol(udsSection.Key("transport_protocol").MustString(string(TransportProtocolCAN))),
		P2CanClient:       udsSection.Key("p2_can_client").MustFloat64(1.0),
		P2CanServer:       udsSection.Key("p2_can_server").MustFloat64(1.0),
	}

	nsa, err := parseHexOrDecimalUint(isotp.Key("n_sa").String())
	if err != nil {
		return nil, fmt.Errorf("config: n_sa: %w: %w", uds.ErrConfig, err)
	}
	cfg.NSA = nsa

	nta, err := parseHexOrDecimalUint(isotp.Key("n_ta").String())
	if err != nil {
		return nil, fmt.Errorf("config: n_ta: %w: %w", uds.ErrConfig, err)
	}
	cfg.NTA = nta

	// n_ae is only meaningful for extended/mixed addressing; default to 0.
	if v := isotp.Key("n_ae").String(); v != "" {
		nae, err := parseHexOrDecimalUint(v)
		if err != nil {
			return nil, fmt.Errorf("config: n_ae: %w: %w", uds.ErrConfig, err)
		}
		cfg.NAE = nae
	}

	reqID, err := parseHexOrDecimalUint(isotp.Key("req_id").String())
	if err != nil {
		return nil, fmt.Errorf("config: req_id: %w: %w", uds.ErrConfig, err)
	}
	cfg.ReqID = reqID

	resID, err := parseHexOrDecimalUint(isotp.Key("res_id").String())
	if err != nil {
		return nil, fmt.Errorf("config: res_id: %w: %w", uds.ErrConfig, err)
	}
	cfg.ResID = resID

	return cfg, nil
}

// parseHexOrDecimalUint accepts both plain decimal and 0x-prefixed hex,
// since arbitration IDs in a connection config are conventionally written
// in hex (req_id = 0x600) while ini.v1's own Key.Uint only parses decimal.
func parseHexOrDecimalUint(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
