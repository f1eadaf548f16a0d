package h2proto

import (
	"fmt"
)

// onFrame is the emit target of the frame reader: one call per
// complete inbound frame, in wire order. Handler errors classify
// here; only connection errors abort the decode of the batch.
func (e *Engine) onFrame(fh *FrameHeader) error {
	if err := e.dispatch(fh); err != nil {
		return e.onFrameError(fh.Stream(), err)
	}

	return nil
}

func (e *Engine) dispatch(fh *FrameHeader) error {
	if fh.Body() == nil {
		// unknown frame types are delivered and otherwise ignored
		e.listener.OnUnknownFrame(fh.Stream(), fh.Type(), fh.Flags(), fh.Payload())
		return nil
	}

	if err := e.verifyPrefaceReceived(fh); err != nil {
		return err
	}

	switch body := fh.Body().(type) {
	case *Data:
		return e.onDataRead(fh, body)
	case *Headers:
		return e.onHeadersRead(fh, body)
	case *Priority:
		return e.onPriorityRead(fh, body)
	case *RstStream:
		return e.onRstStreamRead(fh, body)
	case *Settings:
		return e.onSettingsRead(fh, body)
	case *PushPromise:
		return e.onPushPromiseRead(fh, body)
	case *Ping:
		return e.onPingRead(fh, body)
	case *GoAway:
		return e.onGoAwayRead(fh, body)
	case *WindowUpdate:
		return e.onWindowUpdateRead(fh, body)
	}

	return nil
}

// verifyPrefaceReceived rejects everything until the SETTINGS that
// completes the peer's preface; that SETTINGS itself passes through
// and sets the flag in its handler.
func (e *Engine) verifyPrefaceReceived(fh *FrameHeader) error {
	if e.prefaceReceived {
		return nil
	}

	if st, ok := fh.Body().(*Settings); ok && !st.IsAck() {
		return nil
	}

	return NewGoAwayError(ProtocolError,
		fmt.Sprintf("received %s before a SETTINGS frame", fh.Type()))
}

// shouldIgnoreFrame drops frames for streams that no longer matter:
// peer streams created after the last stream we advertised in our
// GOAWAY, and streams we already reset ourselves.
func (e *Engine) shouldIgnoreFrame(strm *Stream) bool {
	if strm.ResetSent() {
		return true
	}

	remote := e.conn.Remote()

	return remote.GoAwayReceived() && !strm.CreatedLocally() &&
		strm.ID() > remote.LastKnownStream()
}

// ignorableNewStream mirrors shouldIgnoreFrame for streams that were
// never registered.
func (e *Engine) ignorableNewStream(id uint32) bool {
	remote := e.conn.Remote()

	return remote.GoAwayReceived() && id > remote.LastKnownStream()
}

// endpointFor returns the endpoint owning the id's parity.
func (e *Engine) endpointFor(id uint32) *Endpoint {
	serverOwned := id&1 == 0

	if serverOwned == e.conn.IsServer() {
		return e.conn.Local()
	}

	return e.conn.Remote()
}

// streamWasClosed reports whether id belonged to a stream that has
// already come and gone.
func (e *Engine) streamWasClosed(id uint32) bool {
	return id <= e.endpointFor(id).LastStreamCreated()
}

// maybeCloseRemoteSide runs the end-of-stream cascade after a frame
// flagged END_STREAM.
func (e *Engine) maybeCloseRemoteSide(strm *Stream, endStream bool) {
	if !endStream {
		return
	}

	strm.closeRemoteSide()
	if strm.State() == StreamStateClosed {
		e.closeStream(strm)
	}
}

func (e *Engine) onDataRead(fh *FrameHeader, data *Data) error {
	id := fh.Stream()
	if id == 0 {
		return NewGoAwayError(ProtocolError, "DATA frame on stream 0")
	}

	// every payload octet counts toward flow control, even when the
	// frame itself ends up rejected or ignored
	if err := e.inflow.OnDataRead(id, fh.Len()); err != nil {
		return err
	}

	strm := e.conn.Stream(id)
	if strm == nil {
		if e.ignorableNewStream(id) {
			return nil
		}

		if e.streamWasClosed(id) {
			return NewResetStreamError(StreamClosedError, "DATA on closed stream")
		}

		return NewGoAwayError(ProtocolError, "DATA on idle stream")
	}

	if state := strm.State(); state != StreamStateOpen && state != StreamStateHalfClosedLocal {
		return NewResetStreamError(StreamClosedError,
			fmt.Sprintf("DATA on %s stream", state))
	}

	if e.shouldIgnoreFrame(strm) {
		return nil
	}

	e.listener.OnDataRead(id, data.Data(), data.Padding(), data.EndStream())

	e.maybeCloseRemoteSide(strm, data.EndStream())

	return nil
}

func (e *Engine) onHeadersRead(fh *FrameHeader, h *Headers) error {
	id := fh.Stream()
	if id == 0 {
		return NewGoAwayError(ProtocolError, "HEADERS frame on stream 0")
	}

	if h.HasPriority() && h.Dependency() == id {
		return NewResetStreamError(ProtocolError, "stream that depends on itself")
	}

	strm := e.conn.Stream(id)
	if strm == nil {
		if e.ignorableNewStream(id) {
			return nil
		}

		if e.streamWasClosed(id) {
			return NewResetStreamError(StreamClosedError, "HEADERS on closed stream")
		}

		var err error
		strm, err = e.conn.CreateRemoteStream(id, false)
		if err != nil {
			return err
		}

		if e.debug {
			e.logger.Printf("Stream %d created. Active streams: %d\n",
				id, e.conn.NumActiveStreams())
		}
	} else {
		switch strm.State() {
		case StreamStateOpen, StreamStateHalfClosedLocal:
		case StreamStateReservedRemote:
			// the promised stream opens with its response headers
			strm.SetState(StreamStateHalfClosedLocal)
		default:
			return NewResetStreamError(ProtocolError,
				fmt.Sprintf("HEADERS on %s stream", strm.State()))
		}

		if e.shouldIgnoreFrame(strm) {
			return nil
		}
	}

	if h.HasPriority() {
		strm.SetPriority(h.Dependency(), h.Weight(), h.Exclusive())
		e.listener.OnHeadersPriorityRead(id, h.Headers(),
			h.Dependency(), h.Weight(), h.Exclusive(), h.EndStream())
	} else {
		e.listener.OnHeadersRead(id, h.Headers(), h.EndStream())
	}

	e.maybeCloseRemoteSide(strm, h.EndStream())

	return nil
}

func (e *Engine) onPriorityRead(fh *FrameHeader, pry *Priority) error {
	id := fh.Stream()
	if id == 0 {
		return NewGoAwayError(ProtocolError, "PRIORITY frame on stream 0")
	}

	if pry.Stream() == id {
		return NewResetStreamError(ProtocolError, "stream that depends on itself")
	}

	strm := e.conn.Stream(id)
	if strm == nil {
		if e.streamWasClosed(id) {
			// priority for a closed stream is ignored
			return nil
		}

		// priority may arrive for idle streams; nothing to mutate yet
		e.listener.OnPriorityRead(id, pry.Stream(), pry.Weight(), pry.Exclusive())
		return nil
	}

	if e.shouldIgnoreFrame(strm) {
		return nil
	}

	strm.SetPriority(pry.Stream(), pry.Weight(), pry.Exclusive())

	e.listener.OnPriorityRead(id, pry.Stream(), pry.Weight(), pry.Exclusive())

	return nil
}

func (e *Engine) onRstStreamRead(fh *FrameHeader, rst *RstStream) error {
	id := fh.Stream()
	if id == 0 {
		return NewGoAwayError(ProtocolError, "RST_STREAM frame on stream 0")
	}

	strm := e.conn.Stream(id)
	if strm == nil {
		if e.streamWasClosed(id) || e.ignorableNewStream(id) {
			// resetting a closed stream is a no-op
			return nil
		}

		return NewGoAwayError(ProtocolError, "RST_STREAM on idle stream")
	}

	if strm.ResetReceived() {
		return nil
	}
	strm.markResetReceived()

	e.listener.OnRstStreamRead(id, rst.Code())

	e.closeStream(strm)

	return nil
}

func (e *Engine) onSettingsRead(fh *FrameHeader, st *Settings) error {
	if fh.Stream() != 0 {
		return NewGoAwayError(ProtocolError, "SETTINGS frame carries a stream id")
	}

	if st.IsAck() {
		if fh.Len() != 0 {
			return NewGoAwayError(FrameSizeError, "SETTINGS ACK with a payload")
		}

		// the oldest outstanding SETTINGS takes effect now; a
		// superfluous ACK consumes nothing
		if sent, ok := e.pending.poll(); ok {
			if err := e.applyLocalSettings(&sent); err != nil {
				return err
			}
		}

		e.listener.OnSettingsAckRead()

		return nil
	}

	if err := e.applyRemoteSettings(st); err != nil {
		return err
	}

	e.writer.WriteSettingsAck()

	e.prefaceReceived = true

	e.listener.OnSettingsRead(st)

	return nil
}

func (e *Engine) onPingRead(fh *FrameHeader, ping *Ping) error {
	if fh.Stream() != 0 {
		return NewGoAwayError(ProtocolError, "PING frame carries a stream id")
	}

	if ping.IsAck() {
		e.listener.OnPingAckRead(ping.Data())
		return nil
	}

	// echo the identical payload; the writer copies it out of the
	// inbound buffer
	e.writer.WritePing(true, ping.Data())

	e.listener.OnPingRead(ping.Data())

	return nil
}

func (e *Engine) onGoAwayRead(fh *FrameHeader, ga *GoAway) error {
	if fh.Stream() != 0 {
		return NewGoAwayError(ProtocolError, "GOAWAY frame carries a stream id")
	}

	// no further locally-initiated streams; the existing ones run on
	e.conn.Local().markGoAway(ga.Stream())

	e.listener.OnGoAwayRead(ga.Stream(), ga.Code(), ga.Data())

	return nil
}

func (e *Engine) onWindowUpdateRead(fh *FrameHeader, wu *WindowUpdate) error {
	id := fh.Stream()

	if id == 0 {
		if wu.Empty() {
			return NewGoAwayError(ProtocolError, "window increment of 0")
		}

		if err := e.outflow.UpdateWindow(0, wu.Increment()); err != nil {
			return err
		}

		e.listener.OnWindowUpdateRead(0, wu.Increment())

		return nil
	}

	strm := e.conn.Stream(id)
	if strm == nil {
		if e.streamWasClosed(id) || e.ignorableNewStream(id) {
			// window updates may race the stream teardown
			return nil
		}

		return NewGoAwayError(ProtocolError, "WINDOW_UPDATE on idle stream")
	}

	if wu.Empty() {
		return NewResetStreamError(ProtocolError, "window increment of 0")
	}

	if e.shouldIgnoreFrame(strm) {
		return nil
	}

	if err := e.outflow.UpdateWindow(id, wu.Increment()); err != nil {
		return err
	}

	e.listener.OnWindowUpdateRead(id, wu.Increment())

	return nil
}

func (e *Engine) onPushPromiseRead(fh *FrameHeader, pp *PushPromise) error {
	if e.conn.IsServer() {
		return NewGoAwayError(ProtocolError, "clients can't send PUSH_PROMISE frames")
	}

	if !e.conn.Local().PushAllowed() {
		return NewGoAwayError(ProtocolError, "push is disabled")
	}

	id := fh.Stream()
	if id == 0 {
		return NewGoAwayError(ProtocolError, "PUSH_PROMISE frame on stream 0")
	}

	strm := e.conn.Stream(id)
	if strm == nil {
		return NewGoAwayError(ProtocolError, "PUSH_PROMISE on a missing stream")
	}

	if e.shouldIgnoreFrame(strm) {
		return nil
	}

	promised, err := e.conn.ReservePushRemote(pp.Promised())
	if err != nil {
		return err
	}

	// the reservation hangs off the stream that carried the promise
	promised.SetPriority(id, DefaultWeight-1, false)

	e.listener.OnPushPromiseRead(id, pp.Promised(), pp.Headers())

	return nil
}
