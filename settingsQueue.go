package h2proto

// maxPendingSettings caps the pending-acknowledgement queue: a peer
// that never acknowledges would otherwise grow it without bound.
const maxPendingSettings = 16

// pendingSettings is the FIFO of locally-sent SETTINGS awaiting the
// peer's acknowledgement. The next SETTINGS-ACK consumes the head;
// only then do the values take effect locally, so both peers agree
// the new values are in force.
type pendingSettings struct {
	queue []Settings
}

func (ps *pendingSettings) push(st *Settings) error {
	if len(ps.queue) >= maxPendingSettings {
		return NewGoAwayError(EnhanceYourCalm, "too many outstanding SETTINGS")
	}

	var cp Settings
	st.CopyTo(&cp)
	ps.queue = append(ps.queue, cp)

	return nil
}

func (ps *pendingSettings) poll() (Settings, bool) {
	if len(ps.queue) == 0 {
		return Settings{}, false
	}

	st := ps.queue[0]
	ps.queue = ps.queue[1:]

	return st, true
}

// applyRemoteSettings applies the peer's SETTINGS the moment they
// arrive, before the acknowledgement goes out. The fields target the
// writer, the outbound flow controller and the local endpoint's
// stream cap: they constrain what we send. ENABLE_PUSH sets the
// remote endpoint's push allowance.
func (e *Engine) applyRemoteSettings(st *Settings) error {
	if v, ok := st.EnablePush(); ok {
		if !e.conn.IsServer() {
			return NewGoAwayError(ProtocolError, "client received ENABLE_PUSH")
		}

		e.conn.Remote().SetPushAllowed(v)
	}

	if v, ok := st.MaxConcurrentStreams(); ok {
		e.conn.Local().SetMaxStreams(v)
	}

	if v, ok := st.HeaderTableSize(); ok {
		e.writer.SetHeaderTableSize(v)
	}

	if v, ok := st.MaxHeaderListSize(); ok {
		e.writer.SetMaxHeaderListSize(v)
	}

	if v, ok := st.MaxFrameSize(); ok {
		if v < DefaultMaxFrameSize || v > MaxFrameSizeLimit {
			return NewGoAwayError(FrameSizeError, "SETTINGS_MAX_FRAME_SIZE out of range")
		}

		e.writer.SetMaxFrameSize(v)
	}

	if v, ok := st.InitialWindowSize(); ok {
		if v > MaxWindowSize {
			return NewGoAwayError(FlowControlError, "SETTINGS_INITIAL_WINDOW_SIZE above limits")
		}

		e.outflow.SetInitialWindowSize(v)
	}

	return nil
}

// applyLocalSettings is the mirrored path, run when the peer
// acknowledges a SETTINGS we sent earlier: the fields target the
// reader, the inbound flow controller and the remote endpoint's
// stream cap — they constrain what we accept. ENABLE_PUSH sets the
// local endpoint's push allowance.
func (e *Engine) applyLocalSettings(st *Settings) error {
	if v, ok := st.EnablePush(); ok {
		e.conn.Local().SetPushAllowed(v)
	}

	if v, ok := st.MaxConcurrentStreams(); ok {
		e.conn.Remote().SetMaxStreams(v)
	}

	if v, ok := st.HeaderTableSize(); ok {
		e.reader.SetHeaderTableSize(v)
	}

	if v, ok := st.MaxHeaderListSize(); ok {
		e.reader.SetMaxHeaderListSize(v)
	}

	if v, ok := st.MaxFrameSize(); ok {
		e.reader.SetMaxFrameSize(v)
	}

	if v, ok := st.InitialWindowSize(); ok {
		e.inflow.SetInitialWindowSize(v)
	}

	return nil
}
