package uds

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"sort"

	log "github.com/sirupsen/logrus"
)

// ODX SEMANTIC attribute values this compiler recognizes on a PARAM.
const (
	semanticServiceID = "SERVICE-ID"
	semanticID        = "ID"
	semanticData      = "DATA"
)

const (
	sidReadDataByIdentifier         = 0x22
	sidReadDataByIdentifierPositive = 0x62
)

// CompileOdx reads the ODX document at path and builds a ServiceContainer
// for the Read-Data-By-Identifier service (SID 0x22). This is the only
// service this core compiles; spec.md §1 notes the container shape is
// identical for the others.
func CompileOdx(path string) (*ServiceContainer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &OdxParseError{Path: path, Reason: err.Error()}
	}
	defer f.Close()
	container, err := compileOdxReader(f)
	if err != nil {
		if pe, ok := err.(*OdxParseError); ok {
			pe.Path = path
			return nil, pe
		}
		return nil, &OdxParseError{Path: path, Reason: err.Error()}
	}
	return container, nil
}

// CompileOdxBytes is CompileOdx for an in-memory document (used by tests
// and by embedders that fetch ODX over the network rather than from disk).
func CompileOdxBytes(data []byte) (*ServiceContainer, error) {
	return compileOdxReader(bytes.NewReader(data))
}

func compileOdxReader(r io.Reader) (*ServiceContainer, error) {
	root := &element{}
	if err := xml.NewDecoder(r).Decode(root); err != nil {
		return nil, &OdxParseError{Reason: "malformed xml: " + err.Error()}
	}

	index := buildXmlElementsIndex(root)
	log.Debugf("odx compiler: indexed %d elements by ID", len(index))

	container := NewServiceContainer()

	for _, e := range index {
		if e.XMLName.Local != "DIAG-SERVICE" {
			continue
		}
		serviceID, err := serviceIDFromDiagService(e, index)
		if err != nil {
			log.Warnf("odx compiler: skipping DIAG-SERVICE without resolvable SERVICE-ID: %v", err)
			continue
		}
		if serviceID != sidReadDataByIdentifier {
			// Other services (WDBI, ECU reset, session control, ...) share
			// this container shape per spec.md §1 but are out of scope here.
			continue
		}
		name := diagInstanceName(e)
		if name == "" {
			return nil, &OdxParseError{Reason: "DIAG-SERVICE has no SDGS/SDG DiagInstanceName"}
		}
		descriptor, err := compileRdbiDescriptor(e, index)
		if err != nil {
			return nil, err
		}
		container.Register(name, descriptor)
		log.Infof("odx compiler: registered RDBI service %q", name)
	}

	return container, nil
}

// diagInstanceName resolves SDGS/SDG -> SD[@SI='DiagInstanceName'] (spec.md §4.5 step 3).
func diagInstanceName(diagService *element) string {
	sdgs := diagService.Find("SDGS")
	if sdgs == nil {
		return ""
	}
	sdg := sdgs.Find("SDG")
	if sdg == nil {
		return ""
	}
	for _, sd := range sdg.FindAll("SD") {
		if si, ok := sd.Attr("SI"); ok && si == "DiagInstanceName" {
			return sd.Text()
		}
	}
	return ""
}

// serviceIDFromDiagService resolves REQUEST-REF -> PARAMS -> PARAM[@SEMANTIC='SERVICE-ID']
// -> CODED-VALUE (spec.md §4.5 step 4).
func serviceIDFromDiagService(diagService *element, index map[string]*element) (int64, error) {
	requestRef := diagService.Find("REQUEST-REF")
	if requestRef == nil {
		return 0, &OdxParseError{Reason: "DIAG-SERVICE missing REQUEST-REF"}
	}
	requestElement, ok := idRef(requestRef, index)
	if !ok {
		return 0, &OdxParseError{Reason: "REQUEST-REF does not resolve"}
	}
	param := findParamBySemantic(requestElement, semanticServiceID)
	if param == nil {
		return 0, &OdxParseError{Reason: "request has no SERVICE-ID param"}
	}
	return codedValueInt(param)
}

// codedValueInt reads a PARAM's (or any element's) child CODED-VALUE as an integer.
func codedValueInt(e *element) (int64, error) {
	codedValue := e.Find("CODED-VALUE")
	if codedValue == nil {
		return 0, &OdxParseError{Reason: e.XMLName.Local + " missing CODED-VALUE"}
	}
	return parseCodedInt(codedValue.Text())
}

func findParamBySemantic(requestOrResponse *element, semantic string) *element {
	params := requestOrResponse.Find("PARAMS")
	if params == nil {
		return nil
	}
	for _, p := range params.FindAll("PARAM") {
		if s, ok := p.Attr("SEMANTIC"); ok && s == semantic {
			return p
		}
	}
	return nil
}

// compileRdbiDescriptor builds the ServiceDescriptor for one RDBI
// DIAG-SERVICE element: request SID/DID bytes, the positive response
// descriptor, and the negative response checker (spec.md §4.5 "RDBI
// descriptor construction").
func compileRdbiDescriptor(diagService *element, index map[string]*element) (*ServiceDescriptor, error) {
	requestRef := diagService.Find("REQUEST-REF")
	requestElement, ok := idRef(requestRef, index)
	if !ok {
		return nil, &OdxParseError{Reason: "REQUEST-REF does not resolve"}
	}

	sidParam := findParamBySemantic(requestElement, semanticServiceID)
	if sidParam == nil {
		return nil, &OdxParseError{Reason: "request has no SERVICE-ID param"}
	}
	sidValue, err := codedValueInt(sidParam)
	if err != nil {
		return nil, &OdxParseError{Reason: "bad SERVICE-ID CODED-VALUE: " + err.Error()}
	}

	didParam := findParamBySemantic(requestElement, semanticID)
	if didParam == nil {
		return nil, &OdxParseError{Reason: "request has no ID (DID) param"}
	}
	didValue, err := codedValueInt(didParam)
	if err != nil {
		return nil, &OdxParseError{Reason: "bad DID CODED-VALUE: " + err.Error()}
	}

	posResponse, err := compilePosResponse(diagService, index)
	if err != nil {
		return nil, err
	}
	if uint16(didValue) != posResponse.DID {
		log.Warnf("odx compiler: request DID 0x%04X differs from positive response DID 0x%04X", didValue, posResponse.DID)
	}

	negChecker, err := compileNegResponseChecker(diagService, index, byte(sidValue))
	if err != nil {
		return nil, err
	}

	return &ServiceDescriptor{
		RequestSID:  []byte{byte(sidValue)},
		RequestDID:  beBytes(uint16(didValue), 2),
		PosResponse: posResponse,
		NegChecker:  negChecker,
	}, nil
}

// compilePosResponse follows POS-RESPONSE-REFS/POS-RESPONSE-REF and walks
// its PARAMS, dispatching on SEMANTIC (spec.md §4.5).
func compilePosResponse(diagService *element, index map[string]*element) (*PosResponse, error) {
	refs := diagService.Find("POS-RESPONSE-REFS")
	if refs == nil {
		return nil, &OdxParseError{Reason: "DIAG-SERVICE missing POS-RESPONSE-REFS"}
	}
	ref := refs.Find("POS-RESPONSE-REF")
	if ref == nil {
		return nil, &OdxParseError{Reason: "POS-RESPONSE-REFS has no POS-RESPONSE-REF"}
	}
	responseElement, ok := idRef(ref, index)
	if !ok {
		return nil, &OdxParseError{Reason: "POS-RESPONSE-REF does not resolve"}
	}

	params := responseElement.Find("PARAMS")
	if params == nil {
		return nil, &OdxParseError{Reason: "positive response has no PARAMS"}
	}

	r := &PosResponse{}
	var endOfPduSeen bool
	for _, p := range params.FindAll("PARAM") {
		semantic, _ := p.Attr("SEMANTIC")
		switch semantic {
		case semanticServiceID:
			codedValue, err := codedValueInt(p)
			if err != nil {
				return nil, &OdxParseError{Reason: "bad response SERVICE-ID: " + err.Error()}
			}
			bitLength, err := paramBitLength(p)
			if err != nil {
				return nil, err
			}
			r.SidLength = bitLength / 8
			r.SID = byte(codedValue)
		case semanticID:
			codedValue, err := codedValueInt(p)
			if err != nil {
				return nil, &OdxParseError{Reason: "bad response DID: " + err.Error()}
			}
			bitLength, err := paramBitLength(p)
			if err != nil {
				return nil, err
			}
			r.DidLength = bitLength / 8
			r.DID = uint16(codedValue)
		case semanticData:
			param, isEndOfPdu, err := compileDataParam(p, index)
			if err != nil {
				return nil, err
			}
			if isEndOfPdu {
				endOfPduSeen = true
			}
			r.Params = append(r.Params, param)
		}
	}

	// ODX documents list PARAMS in declaration order, which is normally
	// ascending BYTE-POSITION already; sorting here makes that an
	// invariant instead of an assumption (spec.md §9 "multi-param DATA
	// per DID").
	sort.SliceStable(r.Params, func(i, j int) bool {
		return r.Params[i].BytePosition < r.Params[j].BytePosition
	})

	if r.SidLength == 0 {
		return nil, &OdxParseError{Reason: "positive response missing SERVICE-ID param"}
	}
	if r.DidLength == 0 {
		return nil, &OdxParseError{Reason: "positive response missing ID param"}
	}
	if len(r.Params) == 0 {
		return nil, &OdxParseError{Reason: "positive response has no DATA params"}
	}
	if r.SID != sidReadDataByIdentifierPositive {
		log.Warnf("odx compiler: positive response SID 0x%02X is not the expected RDBI positive SID 0x%02X", r.SID, sidReadDataByIdentifierPositive)
	}
	_ = endOfPduSeen // concatenation ambiguity is enforced at call time (dispatcher.go)

	return r, nil
}

func paramBitLength(param *element) (int, error) {
	dct := param.Find("DIAG-CODED-TYPE")
	if dct == nil {
		return 0, &OdxParseError{Reason: "param missing DIAG-CODED-TYPE"}
	}
	bitLengthElem := dct.Find("BIT-LENGTH")
	if bitLengthElem == nil {
		return 0, &OdxParseError{Reason: "DIAG-CODED-TYPE missing BIT-LENGTH"}
	}
	v, err := parseCodedInt(bitLengthElem.Text())
	if err != nil {
		return 0, &OdxParseError{Reason: "bad BIT-LENGTH: " + err.Error()}
	}
	return int(v), nil
}

// compileDataParam builds one Param from a PARAM with SEMANTIC='DATA',
// resolving its DOP-REF per spec.md §4.5's DATA-OBJECT-PROP / STRUCTURE
// rules. isEndOfPdu is reported up so compilePosResponse can track it.
func compileDataParam(param *element, index map[string]*element) (p *Param, isEndOfPdu bool, err error) {
	shortName := ""
	if sn := param.Find("SHORT-NAME"); sn != nil {
		shortName = sn.Text()
	}
	bytePosition := 0
	if bp := param.Find("BYTE-POSITION"); bp != nil {
		if v, perr := parseCodedInt(bp.Text()); perr == nil {
			bytePosition = int(v)
		}
	}

	dopRef := param.Find("DOP-REF")
	if dopRef == nil {
		return nil, false, &OdxParseError{Reason: "DATA param missing DOP-REF"}
	}
	dop, ok := idRef(dopRef, index)
	if !ok {
		return nil, false, &OdxParseError{Reason: "DOP-REF does not resolve"}
	}

	dct, err := diagCodedTypeFromDopOrStructure(dop, index)
	if err != nil {
		return nil, false, err
	}
	isEndOfPdu = dct.Kind == MinMaxLengthKind && dct.Termination == TerminationEndOfPdu

	return &Param{ShortName: shortName, BytePosition: bytePosition, DiagCodedType: dct}, isEndOfPdu, nil
}

// diagCodedTypeFromDopOrStructure implements spec.md §4.5's DOP-REF
// resolution: DATA-OBJECT-PROP is read directly; STRUCTURE either declares
// BYTE-SIZE itself or nests a DOP-REF to recurse into.
func diagCodedTypeFromDopOrStructure(dop *element, index map[string]*element) (DiagCodedType, error) {
	switch dop.XMLName.Local {
	case "DATA-OBJECT-PROP":
		return diagCodedTypeFromDop(dop)
	case "STRUCTURE":
		if byteSize := dop.Find("BYTE-SIZE"); byteSize != nil {
			size, err := parseCodedInt(byteSize.Text())
			if err != nil {
				return DiagCodedType{}, &OdxParseError{Reason: "bad BYTE-SIZE: " + err.Error()}
			}
			baseDataType := firstDescendantDopBaseType(dop, index)
			return NewStandardLengthType(baseDataType, int(size)), nil
		}
		nestedRef := dop.findDescendant("DOP-REF")
		if nestedRef == nil {
			return DiagCodedType{}, &OdxParseError{Reason: "STRUCTURE has neither BYTE-SIZE nor a nested DOP-REF"}
		}
		nestedDop, ok := idRef(nestedRef, index)
		if !ok {
			return DiagCodedType{}, &OdxParseError{Reason: "nested DOP-REF does not resolve"}
		}
		return diagCodedTypeFromDopOrStructure(nestedDop, index)
	default:
		return DiagCodedType{}, &NotImplementedError{Feature: "DOP-REF target " + dop.XMLName.Local}
	}
}

// firstDescendantDopBaseType looks up the BASE-DATA-TYPE of the first
// DATA-OBJECT-PROP reachable from a STRUCTURE, used when the STRUCTURE
// itself declares BYTE-SIZE (spec.md §4.5).
func firstDescendantDopBaseType(structure *element, index map[string]*element) string {
	ref := structure.findDescendant("DOP-REF")
	if ref == nil {
		return ""
	}
	dop, ok := idRef(ref, index)
	if !ok || dop.XMLName.Local != "DATA-OBJECT-PROP" {
		return ""
	}
	dct := dop.Find("DIAG-CODED-TYPE")
	if dct == nil {
		return ""
	}
	bdt, _ := dct.Attr("BASE-DATA-TYPE")
	return bdt
}

func diagCodedTypeFromDop(dop *element) (DiagCodedType, error) {
	dct := dop.Find("DIAG-CODED-TYPE")
	if dct == nil {
		return DiagCodedType{}, &OdxParseError{Reason: "DATA-OBJECT-PROP missing DIAG-CODED-TYPE"}
	}
	baseDataType, _ := dct.Attr("BASE-DATA-TYPE")
	lengthType, _ := dct.Attr("type")

	switch lengthType {
	case "STANDARD-LENGTH-TYPE":
		bitLengthElem := dct.Find("BIT-LENGTH")
		if bitLengthElem == nil {
			return DiagCodedType{}, &OdxParseError{Reason: "STANDARD-LENGTH-TYPE missing BIT-LENGTH"}
		}
		bitLength, err := parseCodedInt(bitLengthElem.Text())
		if err != nil {
			return DiagCodedType{}, &OdxParseError{Reason: "bad BIT-LENGTH: " + err.Error()}
		}
		return NewStandardLengthType(baseDataType, int(bitLength)/8), nil
	case "MIN-MAX-LENGTH-TYPE":
		minLength := 0
		maxLength := NoMaxLength
		if e := dct.Find("MIN-LENGTH"); e != nil {
			v, err := parseCodedInt(e.Text())
			if err != nil {
				return DiagCodedType{}, &OdxParseError{Reason: "bad MIN-LENGTH: " + err.Error()}
			}
			minLength = int(v)
		}
		if e := dct.Find("MAX-LENGTH"); e != nil {
			v, err := parseCodedInt(e.Text())
			if err != nil {
				return DiagCodedType{}, &OdxParseError{Reason: "bad MAX-LENGTH: " + err.Error()}
			}
			maxLength = int(v)
		}
		termination, ok := dct.Attr("TERMINATION")
		if !ok {
			return DiagCodedType{}, &OdxParseError{Reason: "MIN-MAX-LENGTH-TYPE missing TERMINATION"}
		}
		return NewMinMaxLengthType(baseDataType, minLength, maxLength, termination)
	default:
		return DiagCodedType{}, &NotImplementedError{Feature: "DIAG-CODED-TYPE xsi:type " + lengthType}
	}
}

// compileNegResponseChecker scans NEG-RESPONSE-REFS for the NRC label table
// (spec.md §4.4, grounded on original_source's
// create_checkNegativeResponseFunction).
func compileNegResponseChecker(diagService *element, index map[string]*element, requestSID byte) (*NegResponseChecker, error) {
	refs := diagService.Find("NEG-RESPONSE-REFS")
	if refs == nil {
		return &NegResponseChecker{SidLength: 1, RequestSID: requestSID, NRCLabels: map[byte]string{}}, nil
	}

	labels := make(map[byte]string)
	for _, ref := range refs.FindAll("NEG-RESPONSE-REF") {
		negResponse, ok := idRef(ref, index)
		if !ok {
			continue
		}
		params := negResponse.Find("PARAMS")
		if params == nil {
			continue
		}
		for _, p := range params.FindAll("PARAM") {
			bytePos := -1
			if bp := p.Find("BYTE-POSITION"); bp != nil {
				if v, err := parseCodedInt(bp.Text()); err == nil {
					bytePos = int(v)
				}
			}
			if bytePos != 2 {
				continue
			}
			dopRef := p.Find("DOP-REF")
			if dopRef == nil {
				continue
			}
			dop, ok := idRef(dopRef, index)
			if !ok {
				continue
			}
			compuMethod := dop.Find("COMPU-METHOD")
			if compuMethod == nil {
				continue
			}
			internalToPhys := compuMethod.Find("COMPU-INTERNAL-TO-PHYS")
			if internalToPhys == nil {
				continue
			}
			for _, scale := range internalToPhys.Find("COMPU-SCALES").FindAll("COMPU-SCALE") {
				lowerLimit := scale.Find("LOWER-LIMIT")
				compuConst := scale.Find("COMPU-CONST")
				if lowerLimit == nil || compuConst == nil {
					continue
				}
				vt := compuConst.Find("VT")
				if vt == nil {
					continue
				}
				v, err := parseCodedInt(lowerLimit.Text())
				if err != nil {
					continue
				}
				labels[byte(v)] = vt.Text()
			}
		}
	}

	return &NegResponseChecker{SidLength: 1, RequestSID: requestSID, NRCLabels: labels}, nil
}

func beBytes(v uint16, n int) []byte {
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}
