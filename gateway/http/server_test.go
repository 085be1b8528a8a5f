package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uds "github.com/JoSglch/uds-odx"
	"github.com/JoSglch/uds-odx/transport/virtual"
)

func vinDescriptor() *uds.ServiceDescriptor {
	return &uds.ServiceDescriptor{
		RequestSID: []byte{0x22},
		RequestDID: []byte{0xF1, 0x90},
		PosResponse: &uds.PosResponse{
			SidLength: 1,
			SID:       0x62,
			DidLength: 2,
			DID:       0xF190,
			Params: []*uds.Param{
				{ShortName: "vin", BytePosition: 3, DiagCodedType: uds.NewStandardLengthType(uds.BaseDataTypeAsciiString, 17)},
			},
		},
		NegChecker: &uds.NegResponseChecker{SidLength: 1, RequestSID: 0x22, NRCLabels: map[byte]string{0x31: "requestOutOfRange"}},
	}
}

func numberOfModulesDescriptor() *uds.ServiceDescriptor {
	return &uds.ServiceDescriptor{
		RequestSID: []byte{0x22},
		RequestDID: []byte{0xF1, 0xA0},
		PosResponse: &uds.PosResponse{
			SidLength: 1,
			SID:       0x62,
			DidLength: 2,
			DID:       0xF1A0,
			Params: []*uds.Param{
				{ShortName: "numberOfModules", BytePosition: 2, DiagCodedType: uds.NewStandardLengthType(uds.BaseDataTypeUint32, 1)},
			},
		},
		NegChecker: &uds.NegResponseChecker{SidLength: 1, RequestSID: 0x22, NRCLabels: map[byte]string{0x31: "requestOutOfRange"}},
	}
}

func newTestServer(t *testing.T, tr *virtual.Transport) *Server {
	t.Helper()
	container := uds.NewServiceContainer()
	container.Register("vin", vinDescriptor())
	container.Register("numberOfModules", numberOfModulesDescriptor())
	conn := uds.NewConnection(tr, container)
	return NewServer(conn)
}

func TestHandleReadDIDSingleName(t *testing.T) {
	tr := virtual.NewWithResponse(append([]byte{0x62, 0xF1, 0x90}, []byte("WBA12345678901234")[:17]...))
	s := newTestServer(t, tr)

	req := httptest.NewRequest(http.MethodGet, "/did/vin", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body didResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]any{"vin": "WBA12345678901234"}, body.Data)
}

func TestHandleReadDIDCommaSeparatedNames(t *testing.T) {
	tr := virtual.New()
	response := append([]byte{0x62, 0xF1, 0x90}, []byte("WBA12345678901234")[:17]...)
	response = append(response, 0xF1, 0x90)
	response = append(response, []byte("WBA12345678901234")[:17]...)
	tr.QueueResponse(response)
	s := newTestServer(t, tr)

	req := httptest.NewRequest(http.MethodGet, "/did/vin,vin", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReadDIDNegativeResponseReturns422(t *testing.T) {
	tr := virtual.NewWithResponse([]byte{0x7F, 0x22, 0x31})
	s := newTestServer(t, tr)

	req := httptest.NewRequest(http.MethodGet, "/did/numberOfModules", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body negativeResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, byte(0x31), body.NRC)
	assert.Equal(t, "requestOutOfRange", body.NRCLabel)
}

func TestHandleReadDIDUnknownNameReturns404(t *testing.T) {
	tr := virtual.New()
	s := newTestServer(t, tr)

	req := httptest.NewRequest(http.MethodGet, "/did/nosuchname", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleReadDIDTransportTimeoutReturns504(t *testing.T) {
	tr := virtual.New()
	tr.SetHandler(func(request []byte) ([]byte, error) {
		return nil, uds.ErrTransportTimeout
	})
	s := newTestServer(t, tr)

	req := httptest.NewRequest(http.MethodGet, "/did/vin", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestHandleReadDIDWrongMethodReturns405(t *testing.T) {
	tr := virtual.New()
	s := newTestServer(t, tr)

	req := httptest.NewRequest(http.MethodPost, "/did/vin", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
