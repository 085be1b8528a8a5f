package uds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const fixtureOdx = `<?xml version="1.0"?>
<ODX xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <DIAG-LAYER>
    <DIAG-SERVICES>
      <DIAG-SERVICE ID="DS.numberOfModules">
        <SDGS><SDG><SD SI="DiagInstanceName">numberOfModules</SD></SDG></SDGS>
        <REQUEST-REF ID-REF="REQ.numberOfModules"/>
        <POS-RESPONSE-REFS><POS-RESPONSE-REF ID-REF="POS.numberOfModules"/></POS-RESPONSE-REFS>
        <NEG-RESPONSE-REFS><NEG-RESPONSE-REF ID-REF="NEG.generic"/></NEG-RESPONSE-REFS>
      </DIAG-SERVICE>
      <DIAG-SERVICE ID="DS.serialNumber">
        <SDGS><SDG><SD SI="DiagInstanceName">serialNumber</SD></SDG></SDGS>
        <REQUEST-REF ID-REF="REQ.serialNumber"/>
        <POS-RESPONSE-REFS><POS-RESPONSE-REF ID-REF="POS.serialNumber"/></POS-RESPONSE-REFS>
        <NEG-RESPONSE-REFS><NEG-RESPONSE-REF ID-REF="NEG.generic"/></NEG-RESPONSE-REFS>
      </DIAG-SERVICE>
      <DIAG-SERVICE ID="DS.notRdbi">
        <SDGS><SDG><SD SI="DiagInstanceName">ecuReset</SD></SDG></SDGS>
        <REQUEST-REF ID-REF="REQ.notRdbi"/>
        <POS-RESPONSE-REFS><POS-RESPONSE-REF ID-REF="POS.numberOfModules"/></POS-RESPONSE-REFS>
      </DIAG-SERVICE>
    </DIAG-SERVICES>

    <REQUEST ID="REQ.numberOfModules">
      <PARAMS>
        <PARAM SEMANTIC="SERVICE-ID"><CODED-VALUE>34</CODED-VALUE></PARAM>
        <PARAM SEMANTIC="ID"><CODED-VALUE>61856</CODED-VALUE></PARAM>
      </PARAMS>
    </REQUEST>
    <REQUEST ID="REQ.serialNumber">
      <PARAMS>
        <PARAM SEMANTIC="SERVICE-ID"><CODED-VALUE>34</CODED-VALUE></PARAM>
        <PARAM SEMANTIC="ID"><CODED-VALUE>61868</CODED-VALUE></PARAM>
      </PARAMS>
    </REQUEST>
    <REQUEST ID="REQ.notRdbi">
      <PARAMS>
        <PARAM SEMANTIC="SERVICE-ID"><CODED-VALUE>17</CODED-VALUE></PARAM>
      </PARAMS>
    </REQUEST>

    <POS-RESPONSE ID="POS.numberOfModules">
      <PARAMS>
        <PARAM SEMANTIC="SERVICE-ID">
          <CODED-VALUE>98</CODED-VALUE>
          <DIAG-CODED-TYPE><BIT-LENGTH>8</BIT-LENGTH></DIAG-CODED-TYPE>
        </PARAM>
        <PARAM SEMANTIC="ID">
          <CODED-VALUE>61856</CODED-VALUE>
          <DIAG-CODED-TYPE><BIT-LENGTH>16</BIT-LENGTH></DIAG-CODED-TYPE>
        </PARAM>
        <PARAM SEMANTIC="DATA">
          <SHORT-NAME>numberOfModules</SHORT-NAME>
          <BYTE-POSITION>2</BYTE-POSITION>
          <DOP-REF ID-REF="DOP.uint8"/>
        </PARAM>
      </PARAMS>
    </POS-RESPONSE>

    <POS-RESPONSE ID="POS.serialNumber">
      <PARAMS>
        <PARAM SEMANTIC="SERVICE-ID">
          <CODED-VALUE>98</CODED-VALUE>
          <DIAG-CODED-TYPE><BIT-LENGTH>8</BIT-LENGTH></DIAG-CODED-TYPE>
        </PARAM>
        <PARAM SEMANTIC="ID">
          <CODED-VALUE>61868</CODED-VALUE>
          <DIAG-CODED-TYPE><BIT-LENGTH>16</BIT-LENGTH></DIAG-CODED-TYPE>
        </PARAM>
        <PARAM SEMANTIC="DATA">
          <SHORT-NAME>serialNumber</SHORT-NAME>
          <BYTE-POSITION>2</BYTE-POSITION>
          <DOP-REF ID-REF="STR.serialNumber"/>
        </PARAM>
      </PARAMS>
    </POS-RESPONSE>

    <DATA-OBJECT-PROP ID="DOP.uint8">
      <DIAG-CODED-TYPE xsi:type="STANDARD-LENGTH-TYPE" BASE-DATA-TYPE="A_UINT32">
        <BIT-LENGTH>8</BIT-LENGTH>
      </DIAG-CODED-TYPE>
    </DATA-OBJECT-PROP>

    <DATA-OBJECT-PROP ID="DOP.asciiZeroTerminated">
      <DIAG-CODED-TYPE xsi:type="MIN-MAX-LENGTH-TYPE" BASE-DATA-TYPE="A_ASCIISTRING" TERMINATION="ZERO">
        <MIN-LENGTH>0</MIN-LENGTH>
        <MAX-LENGTH>20</MAX-LENGTH>
      </DIAG-CODED-TYPE>
    </DATA-OBJECT-PROP>

    <STRUCTURE ID="STR.serialNumber">
      <DOP-REF ID-REF="DOP.asciiZeroTerminated"/>
    </STRUCTURE>

    <NEG-RESPONSE ID="NEG.generic">
      <PARAMS>
        <PARAM>
          <BYTE-POSITION>2</BYTE-POSITION>
          <DOP-REF ID-REF="DOP.nrc"/>
        </PARAM>
      </PARAMS>
    </NEG-RESPONSE>

    <DATA-OBJECT-PROP ID="DOP.nrc">
      <COMPU-METHOD>
        <COMPU-INTERNAL-TO-PHYS>
          <COMPU-SCALES>
            <COMPU-SCALE>
              <LOWER-LIMIT>49</LOWER-LIMIT>
              <COMPU-CONST><VT>requestOutOfRange</VT></COMPU-CONST>
            </COMPU-SCALE>
          </COMPU-SCALES>
        </COMPU-INTERNAL-TO-PHYS>
      </COMPU-METHOD>
    </DATA-OBJECT-PROP>
  </DIAG-LAYER>
</ODX>
`

func TestCompileOdxBytesRegistersRdbiServicesOnly(t *testing.T) {
	container, err := CompileOdxBytes([]byte(fixtureOdx))
	assert.NoError(t, err)

	names := container.Names()
	assert.ElementsMatch(t, []string{"numberOfModules", "serialNumber"}, names)
}

func TestCompileOdxBytesStandardLengthDescriptor(t *testing.T) {
	container, err := CompileOdxBytes([]byte(fixtureOdx))
	assert.NoError(t, err)

	d, err := container.Lookup("numberOfModules")
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x22}, d.RequestSID)
	assert.Equal(t, []byte{0xF1, 0xA0}, d.RequestDID)
	assert.Equal(t, byte(0x62), d.PosResponse.SID)
	assert.Equal(t, uint16(0xF1A0), d.PosResponse.DID)
	assert.Len(t, d.PosResponse.Params, 1)
	assert.Equal(t, StandardLengthKind, d.PosResponse.Params[0].DiagCodedType.Kind)
	assert.Equal(t, 1, d.PosResponse.Params[0].DiagCodedType.ByteLength)
}

func TestCompileOdxBytesStructureWithNestedDopRef(t *testing.T) {
	container, err := CompileOdxBytes([]byte(fixtureOdx))
	assert.NoError(t, err)

	d, err := container.Lookup("serialNumber")
	assert.NoError(t, err)
	assert.Len(t, d.PosResponse.Params, 1)
	dct := d.PosResponse.Params[0].DiagCodedType
	assert.Equal(t, MinMaxLengthKind, dct.Kind)
	assert.Equal(t, TerminationByte, dct.Termination)
	assert.Equal(t, TerminationZero, dct.TermByte)
	assert.Equal(t, 20, dct.MaxLength)
}

func TestCompileOdxBytesNegResponseChecker(t *testing.T) {
	container, err := CompileOdxBytes([]byte(fixtureOdx))
	assert.NoError(t, err)

	d, err := container.Lookup("numberOfModules")
	assert.NoError(t, err)
	neg := d.NegChecker.Check([]byte{0x7F, 0x22, 0x31})
	assert.NotNil(t, neg)
	assert.Equal(t, "requestOutOfRange", neg.NRCLabel)
}

func TestCompileOdxBytesMalformedXmlErrors(t *testing.T) {
	_, err := CompileOdxBytes([]byte("not xml"))
	assert.Error(t, err)
	var parseErr *OdxParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestCompileOdxMissingFileErrors(t *testing.T) {
	_, err := CompileOdx("/nonexistent/path/to/file.odx")
	var parseErr *OdxParseError
	assert.ErrorAs(t, err, &parseErr)
}
