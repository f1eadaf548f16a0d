package h2proto

import (
	"github.com/domsolutions/h2proto/h2utils"
)

const FrameWindowUpdate FrameType = 0x8

var _ Frame = &WindowUpdate{}

// WindowUpdate represents the WINDOW_UPDATE frame. The increment is
// 31 bits wide and the payload is exactly four octets; anything else
// is malformed.
//
// https://tools.ietf.org/html/rfc7540#section-6.9
type WindowUpdate struct {
	increment uint32
}

func (wu *WindowUpdate) Type() FrameType {
	return FrameWindowUpdate
}

func (wu *WindowUpdate) Reset() {
	wu.increment = 0
}

func (wu *WindowUpdate) CopyTo(w *WindowUpdate) {
	w.increment = wu.increment
}

// Increment returns the window increment.
func (wu *WindowUpdate) Increment() int {
	return int(wu.increment)
}

// SetIncrement sets the window increment. The reserved bit is
// discarded.
func (wu *WindowUpdate) SetIncrement(increment int) {
	wu.increment = uint32(increment) & (1<<31 - 1)
}

// Empty reports a zero increment, which the protocol forbids on the
// wire.
func (wu *WindowUpdate) Empty() bool {
	return wu.increment == 0
}

func (wu *WindowUpdate) Deserialize(frh *FrameHeader) error {
	if len(frh.payload) != 4 {
		wu.increment = 0
		return ErrMissingBytes
	}

	wu.increment = h2utils.BytesToUint32(frh.payload) & (1<<31 - 1)

	return nil
}

func (wu *WindowUpdate) Serialize(frh *FrameHeader) {
	frh.payload = h2utils.AppendUint32Bytes(
		frh.payload[:0], wu.increment)
	frh.length = 4
}

// growWindow applies a credit to a flow-control window. overflow is
// set when the result would pass the maximum window size; callers
// report both operands in their diagnostics.
func growWindow(window int64, increment int) (next int64, overflow bool) {
	next = window + int64(increment)
	return next, next > int64(MaxWindowSize)
}
