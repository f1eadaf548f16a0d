package h2proto

import (
	"io"

	"github.com/valyala/bytebufferpool"
)

// FrameWriter serializes outbound frames onto the transport. Every
// write returns a completion handle; the default writer completes it
// as soon as the bytes reached the underlying writer.
//
// Frame bodies handed to the writer are owned by it and released
// after serialization.
type FrameWriter interface {
	WritePreface() *WriteDone

	WriteData(streamID uint32, data *Data) *WriteDone
	WriteHeaders(streamID uint32, h *Headers) *WriteDone
	WritePriority(streamID uint32, p *Priority) *WriteDone
	WriteRstStream(streamID uint32, code ErrorCode) *WriteDone
	WriteSettings(st *Settings) *WriteDone
	WriteSettingsAck() *WriteDone
	WritePing(ack bool, data []byte) *WriteDone
	WritePushPromise(streamID uint32, pp *PushPromise) *WriteDone
	WriteGoAway(lastStream uint32, code ErrorCode, debug []byte) *WriteDone
	WriteWindowUpdate(streamID uint32, increment int) *WriteDone

	Flush() error

	MaxFrameSize() uint32
	SetMaxFrameSize(uint32)
	SetHeaderTableSize(uint32)
	SetMaxHeaderListSize(uint32)

	Close() error
}

type flusher interface {
	Flush() error
}

// NewFrameWriter returns the default frame writer on top of w.
// If w implements Flush, the engine's flush points reach it.
func NewFrameWriter(w io.Writer) FrameWriter {
	return &frameWriter{
		w:               w,
		maxFrameSize:    DefaultMaxFrameSize,
		headerTableSize: DefaultHeaderTableSize,
	}
}

type frameWriter struct {
	w io.Writer

	maxFrameSize    uint32
	headerTableSize uint32
	headerListSize  uint32

	closed bool
}

func (fw *frameWriter) MaxFrameSize() uint32 {
	return fw.maxFrameSize
}

func (fw *frameWriter) SetMaxFrameSize(v uint32) {
	fw.maxFrameSize = v
}

func (fw *frameWriter) SetHeaderTableSize(v uint32) {
	fw.headerTableSize = v
}

func (fw *frameWriter) SetMaxHeaderListSize(v uint32) {
	fw.headerListSize = v
}

func (fw *frameWriter) Close() error {
	fw.closed = true
	return nil
}

func (fw *frameWriter) Flush() error {
	if f, ok := fw.w.(flusher); ok {
		return f.Flush()
	}

	return nil
}

// writeFrame serializes fh into a pooled buffer and writes it in one
// call, so a serialization failure never leaves half a frame on the
// wire. fh is released here.
func (fw *frameWriter) writeFrame(fh *FrameHeader) *WriteDone {
	wd := NewWriteDone()

	if fw.closed {
		ReleaseFrameHeader(fh)
		return wd.Fail(ErrClosedWriter)
	}

	bb := bytebufferpool.Get()
	bb.B = fh.AppendSerialized(bb.B[:0])

	_, err := fw.w.Write(bb.B)

	bytebufferpool.Put(bb)
	ReleaseFrameHeader(fh)

	wd.Complete(err)

	return wd
}

func (fw *frameWriter) WritePreface() *WriteDone {
	wd := NewWriteDone()

	if fw.closed {
		return wd.Fail(ErrClosedWriter)
	}

	_, err := fw.w.Write(Preface)
	wd.Complete(err)

	return wd
}

func (fw *frameWriter) WriteData(streamID uint32, data *Data) *WriteDone {
	fh := AcquireFrameHeader()
	fh.SetStream(streamID)
	fh.SetBody(data)

	return fw.writeFrame(fh)
}

func (fw *frameWriter) WriteHeaders(streamID uint32, h *Headers) *WriteDone {
	fh := AcquireFrameHeader()
	fh.SetStream(streamID)
	fh.SetBody(h)

	return fw.writeFrame(fh)
}

func (fw *frameWriter) WritePriority(streamID uint32, p *Priority) *WriteDone {
	fh := AcquireFrameHeader()
	fh.SetStream(streamID)
	fh.SetBody(p)

	return fw.writeFrame(fh)
}

func (fw *frameWriter) WriteRstStream(streamID uint32, code ErrorCode) *WriteDone {
	rst := AcquireFrame(FrameResetStream).(*RstStream)
	rst.SetCode(code)

	fh := AcquireFrameHeader()
	fh.SetStream(streamID)
	fh.SetBody(rst)

	return fw.writeFrame(fh)
}

func (fw *frameWriter) WriteSettings(st *Settings) *WriteDone {
	st2 := AcquireFrame(FrameSettings).(*Settings)
	st.CopyTo(st2)

	fh := AcquireFrameHeader()
	fh.SetBody(st2)

	return fw.writeFrame(fh)
}

func (fw *frameWriter) WriteSettingsAck() *WriteDone {
	st := AcquireFrame(FrameSettings).(*Settings)
	st.SetAck(true)

	fh := AcquireFrameHeader()
	fh.SetBody(st)

	return fw.writeFrame(fh)
}

func (fw *frameWriter) WritePing(ack bool, data []byte) *WriteDone {
	ping := AcquireFrame(FramePing).(*Ping)
	ping.SetAck(ack)
	ping.SetData(data)

	fh := AcquireFrameHeader()
	fh.SetBody(ping)

	return fw.writeFrame(fh)
}

func (fw *frameWriter) WritePushPromise(streamID uint32, pp *PushPromise) *WriteDone {
	fh := AcquireFrameHeader()
	fh.SetStream(streamID)
	fh.SetBody(pp)

	return fw.writeFrame(fh)
}

func (fw *frameWriter) WriteGoAway(lastStream uint32, code ErrorCode, debug []byte) *WriteDone {
	ga := AcquireFrame(FrameGoAway).(*GoAway)
	ga.SetStream(lastStream)
	ga.SetCode(code)
	ga.SetData(debug)

	fh := AcquireFrameHeader()
	fh.SetBody(ga)

	return fw.writeFrame(fh)
}

func (fw *frameWriter) WriteWindowUpdate(streamID uint32, increment int) *WriteDone {
	wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
	wu.SetIncrement(increment)

	fh := AcquireFrameHeader()
	fh.SetStream(streamID)
	fh.SetBody(wu)

	return fw.writeFrame(fh)
}
