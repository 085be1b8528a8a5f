package http

// didResponse is the success envelope for GET /did/{name[,name...]}.
type didResponse struct {
	Data any `json:"data"`
}

// errorResponse is the failure envelope for any gateway request.
type errorResponse struct {
	Error string `json:"error"`
}

// negativeResponseBody reports a UDS negative response (spec.md §4.4), not
// an error: the exchange itself succeeded, the ECU declined the request.
type negativeResponseBody struct {
	NRC      byte   `json:"nrc"`
	NRCLabel string `json:"nrc_label,omitempty"`
}
