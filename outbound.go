package h2proto

import (
	"fmt"
)

// The write surface. Every write is admitted here: the gate checks
// the connection and stream state, delegates to the codec or the
// flow controller and cascades stream closure on end-of-stream.
// Protocol violations surface as failed completion handles and put no
// frame on the wire, except a SETTINGS write that overflows the
// pending-acknowledgement queue: that one also emits a GOAWAY.

func (e *Engine) checkWritable() error {
	if e.conn.IsGoAway() {
		return ErrNotWritable
	}

	return nil
}

// WriteData admits a DATA write on an existing stream. Ownership of
// data passes to the flow controller on admission; on a refused
// write nothing is retained.
func (e *Engine) WriteData(streamID uint32, data []byte, padding, endStream bool) *WriteDone {
	if err := e.checkWritable(); err != nil {
		return failedWrite(err)
	}

	strm := e.conn.Stream(streamID)
	if strm == nil {
		return failedWrite(ErrStreamNotFound)
	}

	if state := strm.State(); state != StreamStateOpen && state != StreamStateHalfClosedRemote {
		return failedWrite(NewStreamError(streamID, StreamClosedError,
			fmt.Sprintf("writing DATA on %s stream", state)))
	}

	fr := AcquireFrame(FrameData).(*Data)
	fr.SetData(data)
	fr.SetPadding(padding)
	fr.SetEndStream(endStream)

	wd := NewWriteDone()
	wd.OnComplete(func(err error) {
		if err != nil {
			_ = e.Exception(NewStreamError(streamID, InternalError, err.Error()))
			return
		}

		if endStream {
			e.closeLocalSide(strm)
		}
	})

	e.outflow.WriteData(streamID, fr, wd)

	return wd
}

// WriteHeaders admits a HEADERS write. A missing stream is created
// locally; a reserved-local stream opens for push; anything else
// must be writable from our side.
func (e *Engine) WriteHeaders(streamID uint32, block []byte, endStream bool) *WriteDone {
	return e.writeHeaders(streamID, block, nil, endStream)
}

// WriteHeadersPriority is WriteHeaders with a priority section.
func (e *Engine) WriteHeadersPriority(streamID uint32, block []byte,
	dep uint32, weight uint8, exclusive, endStream bool) *WriteDone {
	pry := &Priority{}
	pry.SetStream(dep)
	pry.SetWeight(weight)
	pry.SetExclusive(exclusive)

	return e.writeHeaders(streamID, block, pry, endStream)
}

func (e *Engine) writeHeaders(streamID uint32, block []byte, pry *Priority, endStream bool) *WriteDone {
	if err := e.checkWritable(); err != nil {
		return failedWrite(err)
	}

	strm := e.conn.Stream(streamID)
	if strm == nil {
		if e.conn.Local().GoAwayReceived() {
			// the peer told us to stop opening streams
			return failedWrite(NewStreamError(streamID, RefusedStreamError,
				"GOAWAY received, refusing to create a stream"))
		}

		var err error
		// created open; the completion cascade half-closes it when
		// the headers ended the stream
		strm, err = e.conn.CreateLocalStream(streamID, false)
		if err != nil {
			return failedWrite(err)
		}

		if e.debug {
			e.logger.Printf("Stream %d created. Active streams: %d\n",
				streamID, e.conn.NumActiveStreams())
		}
	} else {
		switch strm.State() {
		case StreamStateReservedLocal:
			// our promised stream goes out with its headers
			strm.SetState(StreamStateHalfClosedRemote)
		case StreamStateOpen, StreamStateHalfClosedRemote:
		default:
			return failedWrite(NewStreamError(streamID, StreamClosedError,
				fmt.Sprintf("writing HEADERS on %s stream", strm.State())))
		}
	}

	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetHeaders(block)
	h.SetEndHeaders(true)
	h.SetEndStream(endStream)

	if pry != nil {
		h.SetPriority(pry.Stream(), pry.Weight(), pry.Exclusive())
		if !endStream {
			strm.SetPriority(pry.Stream(), pry.Weight(), pry.Exclusive())
		}
	}

	wd := e.writer.WriteHeaders(streamID, h)

	wd.OnComplete(func(err error) {
		if err != nil {
			_ = e.Exception(NewStreamError(streamID, InternalError, err.Error()))
			return
		}

		if endStream {
			e.closeLocalSide(strm)
		}
	})

	return wd
}

// WritePriority mutates the stored stream priority and emits the
// frame.
func (e *Engine) WritePriority(streamID, dep uint32, weight uint8, exclusive bool) *WriteDone {
	if err := e.checkWritable(); err != nil {
		return failedWrite(err)
	}

	strm := e.conn.Stream(streamID)
	if strm == nil {
		return failedWrite(ErrStreamNotFound)
	}

	strm.SetPriority(dep, weight, exclusive)

	pry := AcquireFrame(FramePriority).(*Priority)
	pry.SetStream(dep)
	pry.SetWeight(weight)
	pry.SetExclusive(exclusive)

	return e.writer.WritePriority(streamID, pry)
}

// WriteRstStream terminates a stream abruptly. Resetting a stream
// that does not exist succeeds silently.
func (e *Engine) WriteRstStream(streamID uint32, code ErrorCode) *WriteDone {
	strm := e.conn.Stream(streamID)
	if strm == nil {
		return succeededWrite()
	}

	wd := e.writer.WriteRstStream(streamID, code)

	strm.markResetSent()
	e.closeStream(strm)

	return wd
}

// WriteSettings queues the settings for acknowledgement and emits
// the frame. Servers may not advertise ENABLE_PUSH.
func (e *Engine) WriteSettings(st *Settings) *WriteDone {
	if err := e.checkWritable(); err != nil {
		return failedWrite(err)
	}

	if _, ok := st.EnablePush(); ok && e.conn.IsServer() {
		return failedWrite(NewGoAwayError(ProtocolError,
			"servers can't advertise ENABLE_PUSH"))
	}

	// queued before emission: the wire never carries a SETTINGS the
	// queue doesn't know about
	if err := e.pending.push(st); err != nil {
		e.onConnectionError(err.(Error))
		return failedWrite(err)
	}

	return e.writer.WriteSettings(st)
}

// WritePing emits a PING with the given opaque payload.
func (e *Engine) WritePing(data []byte) *WriteDone {
	if err := e.checkWritable(); err != nil {
		return failedWrite(err)
	}

	return e.writer.WritePing(false, data)
}

// WritePushPromise reserves promisedID locally and emits the
// promise on the parent stream.
func (e *Engine) WritePushPromise(streamID, promisedID uint32, block []byte) *WriteDone {
	if err := e.checkWritable(); err != nil {
		return failedWrite(err)
	}

	if !e.conn.IsServer() {
		return failedWrite(NewGoAwayError(ProtocolError, "clients can't push"))
	}

	if !e.conn.Remote().PushAllowed() {
		return failedWrite(NewGoAwayError(ProtocolError, "peer disabled push"))
	}

	strm := e.conn.Stream(streamID)
	if strm == nil {
		return failedWrite(ErrStreamNotFound)
	}

	promised, err := e.conn.ReservePushLocal(promisedID)
	if err != nil {
		return failedWrite(err)
	}

	promised.SetPriority(streamID, DefaultWeight-1, false)

	pp := AcquireFrame(FramePushPromise).(*PushPromise)
	pp.SetPromised(promisedID)
	pp.SetHeaders(block)
	pp.SetEndHeaders(true)

	return e.writer.WritePushPromise(streamID, pp)
}

// closeLocalSide runs the symmetric end-of-stream cascade after a
// write we flagged END_STREAM completed.
func (e *Engine) closeLocalSide(strm *Stream) {
	strm.closeLocalSide()
	if strm.State() == StreamStateClosed {
		e.closeStream(strm)
	}
}
