package uds

// Termination byte values for MinMaxLengthType, per ODX @TERMINATION.
const (
	TerminationZero  = byte(0x00)
	TerminationHexFF = byte(0xFF)
)

// Termination identifies how a MinMaxLengthType field's length is discovered.
type Termination int

const (
	// TerminationByte means a literal byte value (ZERO or HEX_FF) ends the field.
	TerminationByte Termination = iota
	TerminationEndOfPdu
)

// DiagCodedType is the sum type ODX uses to describe how many bytes of a
// response a field occupies. The set is small and closed, so this is a
// tagged struct with one operation rather than an interface hierarchy.
type DiagCodedType struct {
	// Kind selects which of the two shapes below is populated.
	Kind DiagCodedTypeKind

	// BaseDataType is the ODX primitive tag (A_ASCIISTRING, A_UINT32, ...).
	BaseDataType string

	// StandardLength fields.
	ByteLength int

	// MinMaxLength fields. MaxLength == -1 means "not specified".
	MinLength   int
	MaxLength   int
	Termination Termination
	TermByte    byte
}

type DiagCodedTypeKind int

const (
	StandardLengthKind DiagCodedTypeKind = iota
	MinMaxLengthKind
)

// NoMaxLength marks MinMaxLengthType.MaxLength as absent from the ODX document.
const NoMaxLength = -1

func NewStandardLengthType(baseDataType string, byteLength int) DiagCodedType {
	return DiagCodedType{
		Kind:         StandardLengthKind,
		BaseDataType: baseDataType,
		ByteLength:   byteLength,
	}
}

func NewMinMaxLengthType(baseDataType string, minLength, maxLength int, termination string) (DiagCodedType, error) {
	dct := DiagCodedType{
		Kind:         MinMaxLengthKind,
		BaseDataType: baseDataType,
		MinLength:    minLength,
		MaxLength:    maxLength,
	}
	switch termination {
	case "ZERO":
		dct.Termination = TerminationByte
		dct.TermByte = TerminationZero
	case "HEX-FF":
		dct.Termination = TerminationByte
		dct.TermByte = TerminationHexFF
	case "END-OF-PDU":
		dct.Termination = TerminationEndOfPdu
	default:
		return DiagCodedType{}, &OdxParseError{Reason: "unknown TERMINATION: " + termination}
	}
	return dct, nil
}

// TerminatorLength returns the number of trailing bytes Param.Decode must
// strip before interpreting the payload. END-OF-PDU fields carry no
// terminator byte in the stream.
func (d DiagCodedType) TerminatorLength() int {
	if d.Kind == MinMaxLengthKind && d.Termination == TerminationByte {
		return 1
	}
	return 0
}

// CalculateLength returns the number of bytes this field consumes at the
// front of tail. tail does not include the DID prefix, which PosResponse
// handles separately.
func (d DiagCodedType) CalculateLength(tail []byte) (int, error) {
	switch d.Kind {
	case StandardLengthKind:
		return d.ByteLength, nil
	case MinMaxLengthKind:
		if d.Termination == TerminationEndOfPdu {
			if d.MaxLength == NoMaxLength {
				return len(tail), nil
			}
			if d.MaxLength < len(tail) {
				return d.MaxLength, nil
			}
			return len(tail), nil
		}
		return d.calculateTerminatedLength(tail)
	default:
		return 0, &NotImplementedError{Feature: "unknown DiagCodedType kind"}
	}
}

// calculateTerminatedLength implements spec.md §4.1's ZERO/HEX_FF scan.
//
// Source-compatible behavior is preserved for the max-length-without-terminator
// case: it returns maxLength+1, consuming one byte past the declared maximum
// (see DESIGN.md / spec.md §9). This is a known quirk of the original
// implementation, not a design choice made here.
func (d DiagCodedType) calculateTerminatedLength(tail []byte) (int, error) {
	for i, b := range tail {
		if b == d.TermByte {
			if i < d.MinLength {
				return 0, ErrResponseTooShort
			}
			return i + 1, nil
		}
		if i == d.MaxLength {
			return i + 1, nil
		}
		if d.MaxLength != NoMaxLength && i > d.MaxLength {
			return 0, ErrResponseTooLong
		}
	}
	// Ran off the end of tail without hitting the terminator or max length.
	return 0, ErrResponseTooShort
}
