package h2proto

import (
	"github.com/domsolutions/h2proto/h2utils"
)

const FramePushPromise FrameType = 0x5

var _ Frame = &PushPromise{}

// PushPromise represents the PUSH_PROMISE frame.
//
// https://tools.ietf.org/html/rfc7540#section-6.6
type PushPromise struct {
	hasPadding bool
	endHeaders bool
	promised   uint32
	header     []byte // header block fragment
}

func (pp *PushPromise) Type() FrameType {
	return FramePushPromise
}

func (pp *PushPromise) Reset() {
	pp.hasPadding = false
	pp.endHeaders = false
	pp.promised = 0
	pp.header = pp.header[:0]
}

// Promised returns the promised stream id.
func (pp *PushPromise) Promised() uint32 {
	return pp.promised
}

// SetPromised sets the promised stream id.
func (pp *PushPromise) SetPromised(id uint32) {
	pp.promised = id & (1<<31 - 1)
}

// EndHeaders returns whether the frame ends the header block.
func (pp *PushPromise) EndHeaders() bool {
	return pp.endHeaders
}

func (pp *PushPromise) SetEndHeaders(v bool) {
	pp.endHeaders = v
}

// Headers returns the header block fragment.
func (pp *PushPromise) Headers() []byte {
	return pp.header
}

// SetHeaders sets the header block fragment.
func (pp *PushPromise) SetHeaders(b []byte) {
	pp.header = append(pp.header[:0], b...)
}

func (pp *PushPromise) Deserialize(frh *FrameHeader) error {
	payload := frh.payload

	if frh.Flags().Has(FlagPadded) {
		var err error
		payload, err = h2utils.CutPadding(payload, frh.Len())
		if err != nil {
			return err
		}
	}

	if len(payload) < 4 {
		return ErrMissingBytes
	}

	pp.promised = h2utils.BytesToUint32(payload) & (1<<31 - 1)
	pp.header = append(pp.header[:0], payload[4:]...)
	pp.endHeaders = frh.Flags().Has(FlagEndHeaders)

	return nil
}

func (pp *PushPromise) Serialize(frh *FrameHeader) {
	if pp.endHeaders {
		frh.SetFlags(frh.Flags().Add(FlagEndHeaders))
	}

	frh.payload = h2utils.AppendUint32Bytes(frh.payload[:0], pp.promised)
	frh.payload = append(frh.payload, pp.header...)
}
