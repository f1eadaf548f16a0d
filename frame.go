package h2proto

import (
	"sync"
)

// FrameType identifies the frame kind carried in a frame header.
//
// https://tools.ietf.org/html/rfc7540#section-6
type FrameType uint8

func (ft FrameType) String() string {
	switch ft {
	case FrameData:
		return "Data"
	case FrameHeaders:
		return "Headers"
	case FramePriority:
		return "Priority"
	case FrameResetStream:
		return "ResetStream"
	case FrameSettings:
		return "Settings"
	case FramePushPromise:
		return "PushPromise"
	case FramePing:
		return "Ping"
	case FrameGoAway:
		return "GoAway"
	case FrameWindowUpdate:
		return "WindowUpdate"
	}

	return "Unknown"
}

// FrameFlags are the flags a frame carries in its header.
type FrameFlags uint8

const (
	FlagAck        FrameFlags = 0x1
	FlagEndStream  FrameFlags = 0x1
	FlagEndHeaders FrameFlags = 0x4
	FlagPadded     FrameFlags = 0x8
	FlagPriority   FrameFlags = 0x20
)

// Has returns whether f contains ff.
func (f FrameFlags) Has(ff FrameFlags) bool {
	return f&ff == ff
}

// Add adds ff to f.
func (f FrameFlags) Add(ff FrameFlags) FrameFlags {
	return f | ff
}

// Del removes ff from f.
func (f FrameFlags) Del(ff FrameFlags) FrameFlags {
	return f ^ (f & ff)
}

// Frame is the decoded body of a protocol frame.
//
// Use AcquireFrame to get a Frame of a given type from the pool and
// ReleaseFrame to return it.
type Frame interface {
	Type() FrameType
	Reset()

	Deserialize(*FrameHeader) error
	Serialize(*FrameHeader)
}

var framePools = map[FrameType]*sync.Pool{
	FrameData: {
		New: func() interface{} {
			return &Data{}
		},
	},
	FrameHeaders: {
		New: func() interface{} {
			return &Headers{}
		},
	},
	FramePriority: {
		New: func() interface{} {
			return &Priority{}
		},
	},
	FrameResetStream: {
		New: func() interface{} {
			return &RstStream{}
		},
	},
	FrameSettings: {
		New: func() interface{} {
			return &Settings{}
		},
	},
	FramePushPromise: {
		New: func() interface{} {
			return &PushPromise{}
		},
	},
	FramePing: {
		New: func() interface{} {
			return &Ping{}
		},
	},
	FrameGoAway: {
		New: func() interface{} {
			return &GoAway{}
		},
	},
	FrameWindowUpdate: {
		New: func() interface{} {
			return &WindowUpdate{}
		},
	},
}

// AcquireFrame returns a Frame of the given type from the pool.
//
// It returns nil if ftype is not a known frame type.
func AcquireFrame(ftype FrameType) Frame {
	pool, ok := framePools[ftype]
	if !ok {
		return nil
	}

	return pool.Get().(Frame)
}

// ReleaseFrame resets fr and puts it back to its pool.
func ReleaseFrame(fr Frame) {
	if fr == nil {
		return
	}

	fr.Reset()
	framePools[fr.Type()].Put(fr)
}
