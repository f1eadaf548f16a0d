package h2proto

import (
	"github.com/domsolutions/h2proto/h2utils"
)

const FrameHeaders FrameType = 0x1

var _ Frame = &Headers{}

// Headers defines a HEADERS frame.
//
// The header block fragment is carried as opaque bytes: field
// compression belongs to the header codec, not to this layer.
//
// https://tools.ietf.org/html/rfc7540#section-6.2
type Headers struct {
	hasPadding bool
	endStream  bool
	endHeaders bool

	// priority section, present when FlagPriority is set
	hasPriority bool
	depStream   uint32
	weight      uint8
	exclusive   bool

	rawHeaders []byte // header block fragment
}

func (h *Headers) Type() FrameType {
	return FrameHeaders
}

// Reset resets the header frame values.
func (h *Headers) Reset() {
	h.hasPadding = false
	h.endStream = false
	h.endHeaders = false
	h.hasPriority = false
	h.depStream = 0
	h.weight = 0
	h.exclusive = false
	h.rawHeaders = h.rawHeaders[:0]
}

// CopyTo copies h fields to h2.
func (h *Headers) CopyTo(h2 *Headers) {
	h2.hasPadding = h.hasPadding
	h2.endStream = h.endStream
	h2.endHeaders = h.endHeaders
	h2.hasPriority = h.hasPriority
	h2.depStream = h.depStream
	h2.weight = h.weight
	h2.exclusive = h.exclusive
	h2.rawHeaders = append(h2.rawHeaders[:0], h.rawHeaders...)
}

// Headers returns the header block fragment.
func (h *Headers) Headers() []byte {
	return h.rawHeaders
}

// SetHeaders sets the header block fragment.
func (h *Headers) SetHeaders(b []byte) {
	h.rawHeaders = append(h.rawHeaders[:0], b...)
}

// AppendHeaders appends b to the header block fragment.
func (h *Headers) AppendHeaders(b []byte) {
	h.rawHeaders = append(h.rawHeaders, b...)
}

// EndStream returns whether the frame ends the stream.
func (h *Headers) EndStream() bool {
	return h.endStream
}

func (h *Headers) SetEndStream(value bool) {
	h.endStream = value
}

// EndHeaders returns whether the frame ends the header block.
func (h *Headers) EndHeaders() bool {
	return h.endHeaders
}

func (h *Headers) SetEndHeaders(value bool) {
	h.endHeaders = value
}

// HasPriority returns whether the frame carries a priority section.
func (h *Headers) HasPriority() bool {
	return h.hasPriority
}

// Dependency returns the stream this one depends on.
func (h *Headers) Dependency() uint32 {
	return h.depStream
}

// Weight returns the wire weight octet. The effective weight is the
// octet value plus one.
func (h *Headers) Weight() uint8 {
	return h.weight
}

// Exclusive returns the exclusive bit of the priority section.
func (h *Headers) Exclusive() bool {
	return h.exclusive
}

// SetPriority attaches a priority section to the frame.
func (h *Headers) SetPriority(dep uint32, weight uint8, exclusive bool) {
	h.hasPriority = true
	h.depStream = dep & (1<<31 - 1)
	h.weight = weight
	h.exclusive = exclusive
}

// Padding returns true if the headers will be/were padded.
func (h *Headers) Padding() bool {
	return h.hasPadding
}

func (h *Headers) SetPadding(value bool) {
	h.hasPadding = value
}

func (h *Headers) Deserialize(frh *FrameHeader) (err error) {
	flags := frh.Flags()
	payload := frh.payload

	if flags.Has(FlagPadded) {
		payload, err = h2utils.CutPadding(payload, frh.Len())
		if err != nil {
			return err
		}
	}

	if flags.Has(FlagPriority) {
		if len(payload) < 5 { // 4 (stream) + 1 (weight) = 5
			return ErrMissingBytes
		}

		dep := h2utils.BytesToUint32(payload)
		h.hasPriority = true
		h.exclusive = dep&(1<<31) != 0
		h.depStream = dep & (1<<31 - 1)
		h.weight = payload[4]
		payload = payload[5:]
	}

	h.endStream = flags.Has(FlagEndStream)
	h.endHeaders = flags.Has(FlagEndHeaders)
	h.rawHeaders = append(h.rawHeaders[:0], payload...)

	return nil
}

func (h *Headers) Serialize(frh *FrameHeader) {
	if h.endStream {
		frh.SetFlags(
			frh.Flags().Add(FlagEndStream))
	}

	if h.endHeaders {
		frh.SetFlags(
			frh.Flags().Add(FlagEndHeaders))
	}

	frh.payload = frh.payload[:0]

	if h.hasPriority {
		frh.SetFlags(
			frh.Flags().Add(FlagPriority))

		dep := h.depStream
		if h.exclusive {
			dep |= 1 << 31
		}

		frh.payload = h2utils.AppendUint32Bytes(frh.payload, dep)
		frh.payload = append(frh.payload, h.weight)
	}

	frh.payload = append(frh.payload, h.rawHeaders...)

	if h.hasPadding {
		frh.SetFlags(
			frh.Flags().Add(FlagPadded))
		frh.payload = h2utils.AddPadding(frh.payload)
	}
}
