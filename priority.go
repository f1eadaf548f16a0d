package h2proto

import (
	"github.com/domsolutions/h2proto/h2utils"
)

const FramePriority FrameType = 0x2

// DefaultWeight is the effective priority weight a stream gets
// when the peer never expressed one.
const DefaultWeight uint8 = 16

var _ Frame = &Priority{}

// Priority represents the PRIORITY frame.
//
// https://tools.ietf.org/html/rfc7540#section-6.3
type Priority struct {
	stream    uint32
	weight    uint8
	exclusive bool
}

func (pry *Priority) Type() FrameType {
	return FramePriority
}

// Reset resets the priority fields.
func (pry *Priority) Reset() {
	pry.stream = 0
	pry.weight = 0
	pry.exclusive = false
}

func (pry *Priority) CopyTo(p *Priority) {
	p.stream = pry.stream
	p.weight = pry.weight
	p.exclusive = pry.exclusive
}

// Stream returns the stream this priority depends on.
func (pry *Priority) Stream() uint32 {
	return pry.stream
}

// SetStream sets the stream dependency.
func (pry *Priority) SetStream(stream uint32) {
	pry.stream = stream & (1<<31 - 1)
}

// Weight returns the wire weight octet. The effective weight is the
// octet value plus one.
func (pry *Priority) Weight() uint8 {
	return pry.weight
}

// SetWeight sets the wire weight octet.
func (pry *Priority) SetWeight(w uint8) {
	pry.weight = w
}

// Exclusive returns the exclusive dependency bit.
func (pry *Priority) Exclusive() bool {
	return pry.exclusive
}

// SetExclusive sets the exclusive dependency bit.
func (pry *Priority) SetExclusive(v bool) {
	pry.exclusive = v
}

func (pry *Priority) Deserialize(frh *FrameHeader) error {
	if len(frh.payload) < 5 {
		return ErrMissingBytes
	}

	dep := h2utils.BytesToUint32(frh.payload)
	pry.exclusive = dep&(1<<31) != 0
	pry.stream = dep & (1<<31 - 1)
	pry.weight = frh.payload[4]

	return nil
}

func (pry *Priority) Serialize(frh *FrameHeader) {
	dep := pry.stream
	if pry.exclusive {
		dep |= 1 << 31
	}

	frh.payload = h2utils.AppendUint32Bytes(frh.payload[:0], dep)
	frh.payload = append(frh.payload, pry.weight)
}
