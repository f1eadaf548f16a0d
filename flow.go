package h2proto

import (
	"fmt"

	"github.com/valyala/bytebufferpool"
)

// InboundFlow credits the receive windows as DATA arrives.
type InboundFlow interface {
	InitialWindowSize() uint32
	SetInitialWindowSize(uint32)

	// OnDataRead accounts n payload bytes read on the stream and
	// emits the WINDOW_UPDATE credit.
	OnDataRead(streamID uint32, n int) error
}

// OutboundFlow paces DATA frames against the peer's windows.
type OutboundFlow interface {
	InitialWindowSize() uint32
	SetInitialWindowSize(uint32)

	// UpdateWindow credits the stream window, or the connection
	// window when streamID is 0.
	UpdateWindow(streamID uint32, increment int) error

	// WriteData admits a DATA frame. The frame body is owned by the
	// flow controller from here on; wd completes when the last byte
	// reached the writer, or fails with the write error.
	WriteData(streamID uint32, data *Data, wd *WriteDone)

	// StreamClosed drops the pending data of a closed stream,
	// failing their completions.
	StreamClosed(streamID uint32)
}

// NewInboundFlow returns the default inbound flow controller,
// targeting maxWindow octets of connection window.
func NewInboundFlow(writer FrameWriter, maxWindow int32) InboundFlow {
	return &inboundFlow{
		writer:        writer,
		initialWindow: DefaultWindowSize,
		maxWindow:     maxWindow,
		connWindow:    maxWindow,
	}
}

type inboundFlow struct {
	writer FrameWriter

	initialWindow uint32

	maxWindow  int32
	connWindow int32
}

func (fl *inboundFlow) InitialWindowSize() uint32 {
	return fl.initialWindow
}

func (fl *inboundFlow) SetInitialWindowSize(v uint32) {
	fl.initialWindow = v
}

func (fl *inboundFlow) OnDataRead(streamID uint32, n int) error {
	fl.connWindow -= int32(n)
	if fl.connWindow < 0 {
		return NewGoAwayError(FlowControlError, "connection window exhausted")
	}

	if n > 0 && streamID != 0 {
		// hand the stream credit straight back
		fl.writer.WriteWindowUpdate(streamID, n)
	}

	if fl.connWindow < fl.maxWindow/2 {
		fl.writer.WriteWindowUpdate(0, int(fl.maxWindow-fl.connWindow))
		fl.connWindow = fl.maxWindow
	}

	return nil
}

// NewOutboundFlow returns the default outbound flow controller.
func NewOutboundFlow(writer FrameWriter) OutboundFlow {
	return &outboundFlow{
		writer:        writer,
		initialWindow: int64(DefaultWindowSize),
		connWindow:    int64(DefaultWindowSize),
		streams:       make(map[uint32]*outboundStream),
	}
}

type pendingData struct {
	bb        *bytebufferpool.ByteBuffer
	off       int
	padding   bool
	endStream bool
	wd        *WriteDone
}

type outboundStream struct {
	window  int64
	pending []*pendingData
}

type outboundFlow struct {
	writer FrameWriter

	initialWindow int64
	connWindow    int64

	streams map[uint32]*outboundStream
}

func (fl *outboundFlow) InitialWindowSize() uint32 {
	return uint32(fl.initialWindow)
}

func (fl *outboundFlow) SetInitialWindowSize(v uint32) {
	delta := int64(v) - fl.initialWindow
	fl.initialWindow = int64(v)

	// the new initial window retroactively moves every stream window
	for id, s := range fl.streams {
		s.window += delta
		fl.drain(id, s)
	}
}

func (fl *outboundFlow) stream(id uint32) *outboundStream {
	s, ok := fl.streams[id]
	if !ok {
		s = &outboundStream{window: fl.initialWindow}
		fl.streams[id] = s
	}

	return s
}

func (fl *outboundFlow) UpdateWindow(streamID uint32, increment int) error {
	if streamID == 0 {
		next, overflow := growWindow(fl.connWindow, increment)
		if overflow {
			return NewGoAwayError(FlowControlError,
				fmt.Sprintf("connection window overflow: %d+%d", fl.connWindow, increment))
		}
		fl.connWindow = next

		for id, s := range fl.streams {
			fl.drain(id, s)
		}

		return nil
	}

	s := fl.stream(streamID)

	next, overflow := growWindow(s.window, increment)
	if overflow {
		return NewResetStreamError(FlowControlError,
			fmt.Sprintf("stream %d window overflow: %d+%d", streamID, s.window, increment))
	}
	s.window = next

	fl.drain(streamID, s)

	return nil
}

func (fl *outboundFlow) WriteData(streamID uint32, data *Data, wd *WriteDone) {
	s := fl.stream(streamID)

	bb := bytebufferpool.Get()
	bb.B = append(bb.B[:0], data.Data()...)

	s.pending = append(s.pending, &pendingData{
		bb:        bb,
		padding:   data.Padding(),
		endStream: data.EndStream(),
		wd:        wd,
	})

	ReleaseFrame(data)

	fl.drain(streamID, s)
}

func (fl *outboundFlow) StreamClosed(streamID uint32) {
	s, ok := fl.streams[streamID]
	if !ok {
		return
	}

	for _, pd := range s.pending {
		bytebufferpool.Put(pd.bb)
		pd.wd.Complete(NewResetStreamError(StreamCanceled, "stream closed"))
	}

	delete(fl.streams, streamID)
}

// drain writes as much pending data as the stream and connection
// windows admit, chunked to the negotiated max frame size.
func (fl *outboundFlow) drain(streamID uint32, s *outboundStream) {
	for len(s.pending) > 0 {
		pd := s.pending[0]
		rem := len(pd.bb.B) - pd.off

		avail := s.window
		if fl.connWindow < avail {
			avail = fl.connWindow
		}

		if rem > 0 && avail <= 0 {
			return
		}

		chunk := rem
		if int64(chunk) > avail {
			chunk = int(avail)
		}
		if max := int(fl.writer.MaxFrameSize()); chunk > max {
			chunk = max
		}

		last := pd.off+chunk == len(pd.bb.B)

		data := AcquireFrame(FrameData).(*Data)
		data.SetData(pd.bb.B[pd.off : pd.off+chunk])
		data.SetPadding(pd.padding)
		data.SetEndStream(last && pd.endStream)

		wdw := fl.writer.WriteData(streamID, data)

		s.window -= int64(chunk)
		fl.connWindow -= int64(chunk)
		pd.off += chunk

		if last {
			bytebufferpool.Put(pd.bb)
			s.pending = s.pending[1:]
			wdw.OnComplete(pd.wd.Complete)
		} else if err := wdw.Err(); err != nil {
			bytebufferpool.Put(pd.bb)
			s.pending = s.pending[1:]
			pd.wd.Complete(err)
			return
		}
	}
}
