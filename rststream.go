package h2proto

import (
	"github.com/domsolutions/h2proto/h2utils"
)

const FrameResetStream FrameType = 0x3

var _ Frame = &RstStream{}

// RstStream represents the RST_STREAM frame. The payload is exactly
// one error code, four octets; any other length is malformed.
//
// https://tools.ietf.org/html/rfc7540#section-6.4
type RstStream struct {
	code ErrorCode
}

func (rst *RstStream) Type() FrameType {
	return FrameResetStream
}

// Code returns the error code the stream was terminated with. Codes
// outside the defined range read as InternalError: peers must not
// ascribe meaning to codes they don't know.
func (rst *RstStream) Code() ErrorCode {
	if rst.code > HTTP11Required {
		return InternalError
	}

	return rst.code
}

// RawCode returns the code exactly as it travelled on the wire.
func (rst *RstStream) RawCode() ErrorCode {
	return rst.code
}

// SetCode sets the error code.
func (rst *RstStream) SetCode(code ErrorCode) {
	rst.code = code
}

func (rst *RstStream) Reset() {
	rst.code = 0
}

func (rst *RstStream) CopyTo(r *RstStream) {
	r.code = rst.code
}

func (rst *RstStream) Deserialize(frh *FrameHeader) error {
	if len(frh.payload) != 4 {
		rst.code = 0
		return ErrMissingBytes
	}

	rst.code = ErrorCode(h2utils.BytesToUint32(frh.payload))

	return nil
}

func (rst *RstStream) Serialize(frh *FrameHeader) {
	frh.payload = h2utils.AppendUint32Bytes(frh.payload[:0], uint32(rst.code))
	frh.length = 4
}
