package uds

// ODX base data type tags this core knows how to decode.
const (
	BaseDataTypeAsciiString = "A_ASCIISTRING"
	BaseDataTypeUint32      = "A_UINT32"
)

// Param is a named field at a byte position within a PosResponse, bound to
// a DiagCodedType. Data is populated per-call during response parsing and
// must not be shared across concurrent exchanges on the same container —
// the Dispatcher allocates a fresh Param per parse (see
// PosResponse.ParseDIDResponseComponent).
type Param struct {
	ShortName     string
	BytePosition  int
	DiagCodedType DiagCodedType
	Data          []byte
}

// CalculateLength delegates to the bound DiagCodedType.
func (p *Param) CalculateLength(tail []byte) (int, error) {
	return p.DiagCodedType.CalculateLength(tail)
}

// Decode returns a typed value from previously captured Data.
//
//   - A_ASCIISTRING decodes as text.
//   - A_UINT32 returns the raw byte slice; callers interpret it.
//   - any other base type passes the raw slice through unchanged, mirroring
//     the source's documented limitation (spec.md §4.2).
func (p *Param) Decode() (any, error) {
	if p.Data == nil {
		return nil, ErrParamNotPopulated
	}
	toDecode := p.Data
	if termLen := p.DiagCodedType.TerminatorLength(); termLen > 0 {
		toDecode = toDecode[:len(toDecode)-termLen]
	}
	switch p.DiagCodedType.BaseDataType {
	case BaseDataTypeAsciiString:
		return string(toDecode), nil
	case BaseDataTypeUint32:
		return toDecode, nil
	default:
		return toDecode, nil
	}
}

// clone returns a Param descriptor with Data cleared, safe to populate
// during a fresh parse without mutating the ServiceContainer's copy.
func (p *Param) clone() *Param {
	return &Param{
		ShortName:     p.ShortName,
		BytePosition:  p.BytePosition,
		DiagCodedType: p.DiagCodedType,
	}
}
