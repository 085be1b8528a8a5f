package uds

// NegativeResponseSid is the fixed ISO 14229 negative-response prefix byte.
const NegativeResponseSid = byte(0x7F)

// NegativeResponse carries the NRC extracted from a 0x7F frame, plus its
// human-readable label resolved from the ODX NRC table, when known.
type NegativeResponse struct {
	NRC      byte
	NRCLabel string
}

// NegResponseChecker recognizes the [0x7F, requestedSID, NRC] frame layout
// for one service and resolves NRC -> label from the ODX COMPU-METHOD
// table extracted at compile time.
type NegResponseChecker struct {
	SidLength  int
	RequestSID byte
	NRCLabels  map[byte]string
}

// Check inspects a full response buffer. A nil return means
// "not a negative response" (spec.md §4.4: "falsy" for positive responses).
func (c *NegResponseChecker) Check(resp []byte) *NegativeResponse {
	if len(resp) < c.SidLength+2 {
		return nil
	}
	if byte(beUint(resp[:c.SidLength])) != NegativeResponseSid {
		return nil
	}
	if resp[c.SidLength] != c.RequestSID {
		return nil
	}
	nrc := resp[c.SidLength+1]
	return &NegativeResponse{
		NRC:      nrc,
		NRCLabel: c.NRCLabels[nrc],
	}
}
