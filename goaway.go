package h2proto

import (
	"fmt"

	"github.com/domsolutions/h2proto/h2utils"
)

const FrameGoAway FrameType = 0x7

var _ Frame = &GoAway{}

// GoAway represents the GOAWAY frame.
//
// https://tools.ietf.org/html/rfc7540#section-6.8
type GoAway struct {
	stream uint32 // last stream id processed by the sender
	code   ErrorCode
	data   []byte // additional debug data
}

func (ga *GoAway) Error() string {
	return fmt.Sprintf("stream=%d, code=%s, data=%s", ga.stream, ga.code, ga.data)
}

func (ga *GoAway) Type() FrameType {
	return FrameGoAway
}

func (ga *GoAway) Reset() {
	ga.stream = 0
	ga.code = 0
	ga.data = ga.data[:0]
}

func (ga *GoAway) CopyTo(other *GoAway) {
	other.stream = ga.stream
	other.code = ga.code
	other.data = append(other.data[:0], ga.data...)
}

// Code returns the error code.
func (ga *GoAway) Code() ErrorCode {
	return ga.code
}

// SetCode sets the error code.
func (ga *GoAway) SetCode(code ErrorCode) {
	ga.code = code
}

// Stream returns the last stream id processed by the sender.
func (ga *GoAway) Stream() uint32 {
	return ga.stream
}

// SetStream sets the last stream id processed by the sender.
func (ga *GoAway) SetStream(stream uint32) {
	ga.stream = stream & (1<<31 - 1)
}

// Data returns the debug data.
func (ga *GoAway) Data() []byte {
	return ga.data
}

// SetData sets the debug data.
func (ga *GoAway) SetData(b []byte) {
	ga.data = append(ga.data[:0], b...)
}

func (ga *GoAway) Deserialize(frh *FrameHeader) error {
	if len(frh.payload) < 8 { // 8 is the min number of bytes
		return ErrMissingBytes
	}

	ga.stream = h2utils.BytesToUint32(frh.payload) & (1<<31 - 1)
	ga.code = ErrorCode(h2utils.BytesToUint32(frh.payload[4:]))
	ga.data = append(ga.data[:0], frh.payload[8:]...)

	return nil
}

func (ga *GoAway) Serialize(frh *FrameHeader) {
	frh.payload = h2utils.AppendUint32Bytes(frh.payload[:0], ga.stream)
	frh.payload = h2utils.AppendUint32Bytes(frh.payload, uint32(ga.code))
	frh.payload = append(frh.payload, ga.data...)
}
