package uds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamDecodeAsciiStringStripsTerminator(t *testing.T) {
	dct, err := NewMinMaxLengthType(BaseDataTypeAsciiString, 0, 10, "ZERO")
	assert.NoError(t, err)

	p := &Param{ShortName: "text", DiagCodedType: dct, Data: []byte("hello\x00")}
	v, err := p.Decode()
	assert.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestParamDecodeUint32PassesBytesThrough(t *testing.T) {
	p := &Param{ShortName: "count", DiagCodedType: NewStandardLengthType(BaseDataTypeUint32, 4), Data: []byte{0, 0, 0, 7}}
	v, err := p.Decode()
	assert.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 7}, v)
}

func TestParamDecodeWithoutDataErrors(t *testing.T) {
	p := &Param{ShortName: "count", DiagCodedType: NewStandardLengthType(BaseDataTypeUint32, 4)}
	_, err := p.Decode()
	assert.ErrorIs(t, err, ErrParamNotPopulated)
}

func TestParamCloneClearsData(t *testing.T) {
	p := &Param{ShortName: "n", BytePosition: 2, DiagCodedType: NewStandardLengthType(BaseDataTypeUint32, 4), Data: []byte{1, 2, 3, 4}}
	clone := p.clone()
	assert.Nil(t, clone.Data)
	assert.Equal(t, p.ShortName, clone.ShortName)
	assert.Equal(t, p.BytePosition, clone.BytePosition)
}
