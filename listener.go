package h2proto

// FrameListener is the application-facing surface of the engine: one
// callback per inbound frame kind, invoked after the engine validated
// the frame and applied its protocol effect.
//
// Payload slices are only valid for the duration of the call; retain
// them by copying.
type FrameListener interface {
	OnDataRead(streamID uint32, data []byte, padded, endStream bool)

	OnHeadersRead(streamID uint32, block []byte, endStream bool)
	// OnHeadersPriorityRead fires instead of OnHeadersRead when the
	// HEADERS frame carried a priority section.
	OnHeadersPriorityRead(streamID uint32, block []byte,
		dep uint32, weight uint8, exclusive, endStream bool)

	OnPriorityRead(streamID, dep uint32, weight uint8, exclusive bool)
	OnRstStreamRead(streamID uint32, code ErrorCode)
	OnSettingsRead(st *Settings)
	OnSettingsAckRead()
	OnPingRead(data []byte)
	OnPingAckRead(data []byte)
	OnPushPromiseRead(streamID, promisedID uint32, block []byte)
	OnGoAwayRead(lastStreamID uint32, code ErrorCode, debugData []byte)
	OnWindowUpdateRead(streamID uint32, increment int)

	// OnUnknownFrame fires for frame types the engine does not know.
	// The frame is otherwise ignored.
	OnUnknownFrame(streamID uint32, kind FrameType, flags FrameFlags, payload []byte)
}

// FrameListenerBase is a FrameListener with no-op behavior for every
// callback. Embed it and override selectively.
type FrameListenerBase struct{}

var _ FrameListener = FrameListenerBase{}

func (FrameListenerBase) OnDataRead(streamID uint32, data []byte, padded, endStream bool) {}

func (FrameListenerBase) OnHeadersRead(streamID uint32, block []byte, endStream bool) {}

func (FrameListenerBase) OnHeadersPriorityRead(streamID uint32, block []byte,
	dep uint32, weight uint8, exclusive, endStream bool) {
}

func (FrameListenerBase) OnPriorityRead(streamID, dep uint32, weight uint8, exclusive bool) {}

func (FrameListenerBase) OnRstStreamRead(streamID uint32, code ErrorCode) {}

func (FrameListenerBase) OnSettingsRead(st *Settings) {}

func (FrameListenerBase) OnSettingsAckRead() {}

func (FrameListenerBase) OnPingRead(data []byte) {}

func (FrameListenerBase) OnPingAckRead(data []byte) {}

func (FrameListenerBase) OnPushPromiseRead(streamID, promisedID uint32, block []byte) {}

func (FrameListenerBase) OnGoAwayRead(lastStreamID uint32, code ErrorCode, debugData []byte) {}

func (FrameListenerBase) OnWindowUpdateRead(streamID uint32, increment int) {}

func (FrameListenerBase) OnUnknownFrame(streamID uint32, kind FrameType, flags FrameFlags, payload []byte) {
}
