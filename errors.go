package h2proto

import (
	"errors"
	"fmt"
)

// ErrorCode defines the error codes the protocol carries
// on RST_STREAM and GOAWAY frames.
//
// https://tools.ietf.org/html/rfc7540#section-7
type ErrorCode uint32

const (
	NoError              ErrorCode = 0x0
	ProtocolError        ErrorCode = 0x1
	InternalError        ErrorCode = 0x2
	FlowControlError     ErrorCode = 0x3
	SettingsTimeoutError ErrorCode = 0x4
	StreamClosedError    ErrorCode = 0x5
	FrameSizeError       ErrorCode = 0x6
	RefusedStreamError   ErrorCode = 0x7
	StreamCanceled       ErrorCode = 0x8
	CompressionError     ErrorCode = 0x9
	ConnectionError      ErrorCode = 0xa
	EnhanceYourCalm      ErrorCode = 0xb
	InadequateSecurity   ErrorCode = 0xc
	HTTP11Required       ErrorCode = 0xd
)

func (ec ErrorCode) String() string {
	switch ec {
	case NoError:
		return "NoError"
	case ProtocolError:
		return "ProtocolError"
	case InternalError:
		return "InternalError"
	case FlowControlError:
		return "FlowControlError"
	case SettingsTimeoutError:
		return "SettingsTimeout"
	case StreamClosedError:
		return "StreamClosed"
	case FrameSizeError:
		return "FrameSize"
	case RefusedStreamError:
		return "RefusedStream"
	case StreamCanceled:
		return "StreamCanceled"
	case CompressionError:
		return "CompressionError"
	case ConnectionError:
		return "ConnectionError"
	case EnhanceYourCalm:
		return "EnhanceYourCalm"
	case InadequateSecurity:
		return "InadequateSecurity"
	case HTTP11Required:
		return "HTTP11Required"
	}

	return "Unknown"
}

// Error is a protocol error. The frameType field tells the engine
// which frame answers the error on the wire: FrameGoAway for
// connection errors, FrameResetStream for stream errors.
type Error struct {
	code      ErrorCode
	frameType FrameType
	stream    uint32
	debug     string
}

// NewError creates a connection-level error.
func NewError(e ErrorCode, debug string) Error {
	return Error{
		code:      e,
		frameType: FrameGoAway,
		debug:     debug,
	}
}

// NewGoAwayError creates a connection-level error. The engine
// answers it with a GOAWAY and closes the connection as soon as the
// GOAWAY is written, without waiting for the active streams.
func NewGoAwayError(e ErrorCode, debug string) Error {
	return NewError(e, debug)
}

// NewResetStreamError creates a stream-level error. The engine
// answers it with a RST_STREAM on the offending stream; the
// connection survives.
func NewResetStreamError(e ErrorCode, debug string) Error {
	return Error{
		code:      e,
		frameType: FrameResetStream,
		debug:     debug,
	}
}

// NewStreamError creates a stream-level error bound to a specific
// stream id, for paths that surface the error away from the frame
// that caused it.
func NewStreamError(streamID uint32, e ErrorCode, debug string) Error {
	err := NewResetStreamError(e, debug)
	err.stream = streamID
	return err
}

// Code returns the error code.
func (e Error) Code() ErrorCode {
	return e.code
}

// Stream returns the stream the error is bound to, 0 when the error
// was raised in frame context.
func (e Error) Stream() uint32 {
	return e.stream
}

// IsConnection tells whether the error tears down the whole
// connection or just one stream.
func (e Error) IsConnection() bool {
	return e.frameType == FrameGoAway
}

// Debug returns the debug message attached to the error.
func (e Error) Debug() string {
	return e.debug
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.debug)
}

// Is matches on the error code so callers can do
// errors.Is(err, NewError(ProtocolError, "")).
func (e Error) Is(target error) bool {
	var other Error
	if errors.As(target, &other) {
		return other.code == e.code
	}

	return false
}

var (
	ErrBadPreface     = errors.New("wrong preface")
	ErrMissingBytes   = errors.New("missing payload bytes")
	ErrPayloadExceeds = errors.New("frame payload exceeds the negotiated maximum size")
	ErrNotWritable    = errors.New("connection is going away")
	ErrStreamNotFound = errors.New("stream does not exist")
	ErrHandshakeBegun = errors.New("upgrade requested after the handshake started")
	ErrClosedWriter   = errors.New("writer has been closed")
)
