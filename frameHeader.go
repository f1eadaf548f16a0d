package h2proto

import (
	"sync"

	"github.com/domsolutions/h2proto/h2utils"
)

const (
	// DefaultFrameSize is the size of the fixed frame header.
	//
	// http://httpwg.org/specs/rfc7540.html#FrameHeader
	DefaultFrameSize = 9

	// https://httpwg.org/specs/rfc7540.html#SETTINGS_MAX_FRAME_SIZE
	defaultMaxLen = 1 << 14
)

var frameHeaderPool = sync.Pool{
	New: func() interface{} {
		return &FrameHeader{}
	},
}

// FrameHeader is the envelope every frame travels in: the 9-octet
// fixed header plus the payload and, once deserialized, the typed
// frame body.
//
// FrameHeader instances MUST NOT be used from different goroutines.
//
// https://tools.ietf.org/html/rfc7540#section-4.1
type FrameHeader struct {
	length int        // 24 bits
	kind   FrameType  // 8 bits
	flags  FrameFlags // 8 bits
	stream uint32     // 31 bits

	maxLen uint32

	rawHeader [DefaultFrameSize]byte
	payload   []byte

	fr Frame
}

// AcquireFrameHeader gets a FrameHeader from the pool.
func AcquireFrameHeader() *FrameHeader {
	fr := frameHeaderPool.Get().(*FrameHeader)
	fr.Reset()
	return fr
}

// ReleaseFrameHeader resets fr, releases its body and puts it back
// to the pool.
func ReleaseFrameHeader(fr *FrameHeader) {
	ReleaseFrame(fr.Body())
	fr.fr = nil
	frameHeaderPool.Put(fr)
}

// Reset resets the header values.
func (frh *FrameHeader) Reset() {
	frh.kind = 0
	frh.flags = 0
	frh.stream = 0
	frh.length = 0
	frh.maxLen = defaultMaxLen
	frh.fr = nil
	frh.payload = frh.payload[:0]
}

// Type returns the frame type.
func (frh *FrameHeader) Type() FrameType {
	return frh.kind
}

// Flags returns the frame flags.
func (frh *FrameHeader) Flags() FrameFlags {
	return frh.flags
}

// SetFlags replaces the frame flags.
func (frh *FrameHeader) SetFlags(flags FrameFlags) {
	frh.flags = flags
}

// Stream returns the stream id of the current frame.
func (frh *FrameHeader) Stream() uint32 {
	return frh.stream
}

// SetStream sets the stream id on the current frame.
func (frh *FrameHeader) SetStream(stream uint32) {
	frh.stream = stream & (1<<31 - 1)
}

// Len returns the payload length.
func (frh *FrameHeader) Len() int {
	return frh.length
}

// MaxLen returns the max negotiated payload length.
func (frh *FrameHeader) MaxLen() uint32 {
	return frh.maxLen
}

// SetMaxLen sets the max payload length the header will accept
// when parsing.
func (frh *FrameHeader) SetMaxLen(maxLen uint32) {
	frh.maxLen = maxLen
}

// Body returns the deserialized frame body, nil for unknown frame
// types.
func (frh *FrameHeader) Body() Frame {
	return frh.fr
}

// SetBody sets the frame body. The frame type is taken from the body.
func (frh *FrameHeader) SetBody(fr Frame) {
	if fr == nil {
		panic("Body cannot be nil")
	}

	frh.kind = fr.Type()
	frh.fr = fr
}

// Payload returns the raw payload bytes.
func (frh *FrameHeader) Payload() []byte {
	return frh.payload
}

func (frh *FrameHeader) setPayload(payload []byte) {
	frh.payload = append(frh.payload[:0], payload...)
}

func (frh *FrameHeader) parseValues(header []byte) {
	frh.length = int(h2utils.BytesToUint24(header[:3]))            // 3
	frh.kind = FrameType(header[3])                                // 1
	frh.flags = FrameFlags(header[4])                              // 1
	frh.stream = h2utils.BytesToUint32(header[5:]) & (1<<31 - 1)   // 4
}

func (frh *FrameHeader) parseHeader(header []byte) {
	h2utils.Uint24ToBytes(header[:3], uint32(frh.length)) // 3
	header[3] = byte(frh.kind)                            // 1
	header[4] = byte(frh.flags)                           // 1
	h2utils.Uint32ToBytes(header[5:], frh.stream)         // 4
}

func (frh *FrameHeader) checkLen() error {
	if frh.maxLen != 0 && frh.length > int(frh.maxLen) {
		return ErrPayloadExceeds
	}
	return nil
}

// parseFrom parses the fixed header and the payload.
//
// payload must contain the whole frame payload. The typed body is deserialized
// for known frame types; for unknown types the body is left nil and
// the raw payload is kept.
func (frh *FrameHeader) parseFrom(header, payload []byte) error {
	frh.parseValues(header)

	if err := frh.checkLen(); err != nil {
		return err
	}

	frh.payload = append(frh.payload[:0], payload...)

	frh.fr = AcquireFrame(frh.kind)
	if frh.fr == nil {
		// unknown frame types carry the raw payload only
		return nil
	}

	return frh.fr.Deserialize(frh)
}

// AppendSerialized serializes the body, the fixed header and the
// payload into dst.
func (frh *FrameHeader) AppendSerialized(dst []byte) []byte {
	if frh.fr != nil {
		frh.fr.Serialize(frh)
	}

	frh.length = len(frh.payload)
	frh.parseHeader(frh.rawHeader[:])

	dst = append(dst, frh.rawHeader[:]...)
	dst = append(dst, frh.payload...)

	return dst
}
