package h2proto

import (
	"github.com/domsolutions/h2proto/h2utils"
)

const FrameSettings FrameType = 0x4

const (
	// Setting identifiers.
	//
	// https://httpwg.org/specs/rfc7540.html#SettingValues
	SettingHeaderTableSize      uint16 = 0x1
	SettingEnablePush           uint16 = 0x2
	SettingMaxConcurrentStreams uint16 = 0x3
	SettingInitialWindowSize    uint16 = 0x4
	SettingMaxFrameSize         uint16 = 0x5
	SettingMaxHeaderListSize    uint16 = 0x6
)

const (
	// default settings parameters
	DefaultHeaderTableSize uint32 = 4096
	DefaultWindowSize      uint32 = 1<<16 - 1
	DefaultMaxFrameSize    uint32 = 1 << 14

	// MaxWindowSize is the largest flow-control window the protocol
	// can express.
	MaxWindowSize uint32 = 1<<31 - 1
	// MaxFrameSizeLimit is the largest value SETTINGS_MAX_FRAME_SIZE
	// accepts.
	MaxFrameSizeLimit uint32 = 1<<24 - 1
)

var _ Frame = &Settings{}

// Settings is the optional-valued settings record carried by the
// SETTINGS frame. A field takes effect only if it was set; absent
// fields mean "unchanged" on the wire.
//
// https://tools.ietf.org/html/rfc7540#section-6.5
type Settings struct {
	ack bool

	present uint8 // bitmask indexed by setting id

	headerTableSize uint32
	enablePush      bool
	maxStreams      uint32
	windowSize      uint32
	frameSize       uint32
	headerListSize  uint32
}

func (st *Settings) Type() FrameType {
	return FrameSettings
}

// Reset clears every field and the ACK flag.
func (st *Settings) Reset() {
	*st = Settings{}
}

// CopyTo copies st to other.
func (st *Settings) CopyTo(other *Settings) {
	*other = *st
}

// IsAck returns whether the ACK flag is set.
func (st *Settings) IsAck() bool {
	return st.ack
}

// SetAck sets the ACK flag.
func (st *Settings) SetAck(ack bool) {
	st.ack = ack
}

// IsEmpty returns whether no field has been set.
func (st *Settings) IsEmpty() bool {
	return st.present == 0
}

func (st *Settings) has(id uint16) bool {
	return st.present&(1<<id) != 0
}

func (st *Settings) mark(id uint16) {
	st.present |= 1 << id
}

func (st *Settings) unset(id uint16) {
	st.present &^= 1 << id
}

// HeaderTableSize returns SETTINGS_HEADER_TABLE_SIZE and whether it
// was set.
func (st *Settings) HeaderTableSize() (uint32, bool) {
	return st.headerTableSize, st.has(SettingHeaderTableSize)
}

func (st *Settings) SetHeaderTableSize(v uint32) {
	st.headerTableSize = v
	st.mark(SettingHeaderTableSize)
}

// EnablePush returns SETTINGS_ENABLE_PUSH and whether it was set.
func (st *Settings) EnablePush() (bool, bool) {
	return st.enablePush, st.has(SettingEnablePush)
}

func (st *Settings) SetEnablePush(v bool) {
	st.enablePush = v
	st.mark(SettingEnablePush)
}

// MaxConcurrentStreams returns SETTINGS_MAX_CONCURRENT_STREAMS and
// whether it was set.
func (st *Settings) MaxConcurrentStreams() (uint32, bool) {
	return st.maxStreams, st.has(SettingMaxConcurrentStreams)
}

func (st *Settings) SetMaxConcurrentStreams(v uint32) {
	st.maxStreams = v
	st.mark(SettingMaxConcurrentStreams)
}

// InitialWindowSize returns SETTINGS_INITIAL_WINDOW_SIZE and whether
// it was set.
func (st *Settings) InitialWindowSize() (uint32, bool) {
	return st.windowSize, st.has(SettingInitialWindowSize)
}

func (st *Settings) SetInitialWindowSize(v uint32) {
	st.windowSize = v
	st.mark(SettingInitialWindowSize)
}

// MaxFrameSize returns SETTINGS_MAX_FRAME_SIZE and whether it was set.
func (st *Settings) MaxFrameSize() (uint32, bool) {
	return st.frameSize, st.has(SettingMaxFrameSize)
}

func (st *Settings) SetMaxFrameSize(v uint32) {
	st.frameSize = v
	st.mark(SettingMaxFrameSize)
}

// MaxHeaderListSize returns SETTINGS_MAX_HEADER_LIST_SIZE and whether
// it was set.
func (st *Settings) MaxHeaderListSize() (uint32, bool) {
	return st.headerListSize, st.has(SettingMaxHeaderListSize)
}

func (st *Settings) SetMaxHeaderListSize(v uint32) {
	st.headerListSize = v
	st.mark(SettingMaxHeaderListSize)
}

func (st *Settings) Deserialize(frh *FrameHeader) error {
	st.ack = frh.Flags().Has(FlagAck)

	d := frh.payload
	if len(d)%6 != 0 {
		return ErrMissingBytes
	}

	for i := 0; i+6 <= len(d); i += 6 {
		key := uint16(d[i])<<8 | uint16(d[i+1])
		value := h2utils.BytesToUint32(d[i+2:])

		switch key {
		case SettingHeaderTableSize:
			st.SetHeaderTableSize(value)
		case SettingEnablePush:
			st.SetEnablePush(value != 0)
		case SettingMaxConcurrentStreams:
			st.SetMaxConcurrentStreams(value)
		case SettingInitialWindowSize:
			st.SetInitialWindowSize(value)
		case SettingMaxFrameSize:
			st.SetMaxFrameSize(value)
		case SettingMaxHeaderListSize:
			st.SetMaxHeaderListSize(value)
		}
		// unknown identifiers are ignored
	}

	return nil
}

func (st *Settings) Serialize(frh *FrameHeader) {
	if st.ack {
		frh.SetFlags(frh.Flags().Add(FlagAck))
		frh.payload = frh.payload[:0]
		return
	}

	frh.payload = frh.payload[:0]

	appendSetting := func(key uint16, value uint32) {
		frh.payload = append(frh.payload, byte(key>>8), byte(key))
		frh.payload = h2utils.AppendUint32Bytes(frh.payload, value)
	}

	if v, ok := st.HeaderTableSize(); ok {
		appendSetting(SettingHeaderTableSize, v)
	}
	if v, ok := st.EnablePush(); ok {
		var n uint32
		if v {
			n = 1
		}
		appendSetting(SettingEnablePush, n)
	}
	if v, ok := st.MaxConcurrentStreams(); ok {
		appendSetting(SettingMaxConcurrentStreams, v)
	}
	if v, ok := st.InitialWindowSize(); ok {
		appendSetting(SettingInitialWindowSize, v)
	}
	if v, ok := st.MaxFrameSize(); ok {
		appendSetting(SettingMaxFrameSize, v)
	}
	if v, ok := st.MaxHeaderListSize(); ok {
		appendSetting(SettingMaxHeaderListSize, v)
	}
}
