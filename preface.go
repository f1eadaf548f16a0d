package h2proto

import (
	"bytes"
)

// Preface is the fixed 24-octet magic string a client sends first.
//
// http://httpwg.org/specs/rfc7540.html#ConnectionHeader
var Preface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")

// sendPrefaceOnce transmits the local half of the handshake: the
// client magic (client role only) followed by the initial SETTINGS.
// Idempotent: both lifecycle hooks funnel here.
func (e *Engine) sendPrefaceOnce() error {
	if e.prefaceSent {
		return nil
	}
	e.prefaceSent = true

	if !e.conn.IsServer() {
		wd := e.writer.WritePreface()
		if err := wd.Err(); err != nil {
			e.closeTransport()
			return err
		}
	}

	st := e.currentLocalSettings()

	if err := e.pending.push(st); err != nil {
		return err
	}

	wd := e.writer.WriteSettings(st)
	if err := wd.Err(); err != nil {
		e.closeTransport()
		return err
	}

	return e.writer.Flush()
}

// currentLocalSettings assembles the SETTINGS to advertise: the
// user-seeded template plus whatever the collaborators carry beyond
// their defaults. Servers never advertise ENABLE_PUSH.
func (e *Engine) currentLocalSettings() *Settings {
	st := &Settings{}
	e.localSettings.CopyTo(st)
	st.SetAck(false)

	if v := e.inflow.InitialWindowSize(); v != DefaultWindowSize {
		st.SetInitialWindowSize(v)
	}

	if v := e.conn.Local().MaxStreams(); v != defaultMaxStreams {
		st.SetMaxConcurrentStreams(v)
	}

	if v := e.reader.MaxFrameSize(); v != DefaultMaxFrameSize {
		st.SetMaxFrameSize(v)
	}

	if _, ok := st.EnablePush(); ok && e.conn.IsServer() {
		st.unset(SettingEnablePush)
	}

	return st
}

// Decode feeds inbound transport bytes through the engine. On
// servers the client preface is matched first, then complete frames
// dispatch in wire order. The handshake completes no matter how the
// transport fragments the bytes.
func (e *Engine) Decode(p []byte) error {
	if len(e.prefaceBuf) > 0 && len(p) > 0 {
		n := len(p)
		if n > len(e.prefaceBuf) {
			n = len(e.prefaceBuf)
		}

		if !bytes.Equal(p[:n], e.prefaceBuf[:n]) {
			e.closeTransport()
			return ErrBadPreface
		}

		e.prefaceBuf = e.prefaceBuf[n:]
		p = p[n:]

		if len(e.prefaceBuf) > 0 {
			return nil
		}

		// fully matched: the buffer is gone for good
		e.prefaceBuf = nil
	}

	if len(p) == 0 {
		return nil
	}

	err := e.reader.Decode(p, e.onFrame)

	if ferr := e.writer.Flush(); err == nil {
		err = ferr
	}

	return err
}

// OnClientUpgrade is the cleartext-upgrade hook for clients: the
// request that carried the upgrade becomes stream 1, locally created
// and already half-closed. Callable only before the handshake began.
func (e *Engine) OnClientUpgrade() error {
	if e.conn.IsServer() {
		return NewGoAwayError(ProtocolError, "client upgrade on a server connection")
	}

	if err := e.checkUpgradeAllowed(); err != nil {
		return err
	}

	_, err := e.conn.CreateLocalStream(1, true)

	return err
}

// OnServerUpgrade is the cleartext-upgrade hook for servers: the
// HTTP2-Settings header value is applied as the remote settings
// without acknowledging (the ACK folds into the normal handshake),
// and stream 1 is created remote and half-closed.
func (e *Engine) OnServerUpgrade(st *Settings) error {
	if !e.conn.IsServer() {
		return NewGoAwayError(ProtocolError, "server upgrade on a client connection")
	}

	if err := e.checkUpgradeAllowed(); err != nil {
		return err
	}

	if err := e.applyRemoteSettings(st); err != nil {
		return err
	}

	_, err := e.conn.CreateRemoteStream(1, true)

	return err
}

func (e *Engine) checkUpgradeAllowed() error {
	if e.prefaceSent || e.prefaceReceived {
		return NewGoAwayError(ProtocolError, ErrHandshakeBegun.Error())
	}

	if e.conn.Stream(1) != nil || e.conn.Remote().LastStreamCreated() >= 1 ||
		e.conn.Local().LastStreamCreated() >= 1 {
		return NewGoAwayError(ProtocolError, "stream 1 is already allocated")
	}

	return nil
}
