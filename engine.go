package h2proto

import (
	"errors"
	"io"
	"log"
	"os"

	"github.com/valyala/fasthttp"
)

// defaultMaxWindow is the connection receive window the default
// inbound flow controller targets.
const defaultMaxWindow = 1 << 20

var defaultLogger = log.New(os.Stdout, "[h2proto] ", log.LstdFlags)

type shutdownState int8

const (
	shutdownNone    shutdownState = iota
	shutdownPending               // GOAWAY sent, draining the active streams
	shutdownClosing               // transport close initiated
	shutdownDone
)

// EngineOpts configures an Engine.
type EngineOpts struct {
	// Server selects the connection role.
	Server bool

	// Writer serializes outbound frames. Required.
	Writer FrameWriter

	// Reader decodes the inbound byte stream. Defaults to the
	// built-in frame reader.
	Reader FrameReader

	// Listener receives the inbound frame callbacks. Defaults to a
	// no-op listener.
	Listener FrameListener

	// Inbound and Outbound are the flow controllers. They default to
	// the built-in window accounting over Writer.
	Inbound  InboundFlow
	Outbound OutboundFlow

	// Transport is closed when the connection shuts down.
	Transport io.Closer

	// Settings seeds the local settings advertised during the
	// handshake. Values owned by collaborators (initial window, max
	// frame size, max streams) are picked up from them.
	Settings Settings

	// OnDisconnect fires once, after the transport close was
	// requested and the resources were freed.
	OnDisconnect func(*Engine)

	Logger fasthttp.Logger
	Debug  bool
}

// Engine is the connection-level protocol engine: it sits between a
// byte-oriented duplex transport and a frame-oriented application
// listener, enforcing the connection lifecycle, the per-stream state
// machine, settings negotiation and flow-controlled dispatch.
//
// All methods must run on the single goroutine that owns the
// connection; the engine performs no locking and no blocking I/O.
type Engine struct {
	conn *Connection

	reader   FrameReader
	writer   FrameWriter
	inflow   InboundFlow
	outflow  OutboundFlow
	listener FrameListener

	transport    io.Closer
	onDisconnect func(*Engine)

	localSettings Settings

	prefaceSent     bool
	prefaceReceived bool
	prefaceBuf      []byte // servers only: preface bytes still expected

	pending pendingSettings

	shutdown       shutdownState
	resourcesFreed bool

	logger fasthttp.Logger
	debug  bool
}

// NewEngine builds an engine for one connection.
func NewEngine(opts EngineOpts) *Engine {
	if opts.Writer == nil {
		panic("Writer is required")
	}

	e := &Engine{
		conn:         NewConnection(opts.Server),
		reader:       opts.Reader,
		writer:       opts.Writer,
		inflow:       opts.Inbound,
		outflow:      opts.Outbound,
		listener:     opts.Listener,
		transport:    opts.Transport,
		onDisconnect: opts.OnDisconnect,
		logger:       opts.Logger,
		debug:        opts.Debug,
	}

	opts.Settings.CopyTo(&e.localSettings)

	if e.reader == nil {
		e.reader = NewFrameReader()
	}
	if e.inflow == nil {
		e.inflow = NewInboundFlow(e.writer, defaultMaxWindow)
	}
	if e.outflow == nil {
		e.outflow = NewOutboundFlow(e.writer)
	}
	if e.listener == nil {
		e.listener = FrameListenerBase{}
	}
	if e.logger == nil {
		e.logger = defaultLogger
	}

	if v, ok := e.localSettings.MaxConcurrentStreams(); ok {
		e.conn.Local().SetMaxStreams(v)
	}
	if v, ok := e.localSettings.EnablePush(); ok && !opts.Server {
		e.conn.Local().SetPushAllowed(v)
	}

	if opts.Server {
		e.prefaceBuf = append([]byte(nil), Preface...)
	}

	return e
}

// Connection exposes the stream registry.
func (e *Engine) Connection() *Connection {
	return e.conn
}

// PrefaceSent reports whether the local preface already went out.
func (e *Engine) PrefaceSent() bool {
	return e.prefaceSent
}

// PrefaceReceived reports whether the peer's first SETTINGS arrived.
func (e *Engine) PrefaceReceived() bool {
	return e.prefaceReceived
}

// OnActive is the transport-active lifecycle hook.
func (e *Engine) OnActive() error {
	return e.sendPrefaceOnce()
}

// OnAttached is the handler-added lifecycle hook.
func (e *Engine) OnAttached() error {
	return e.sendPrefaceOnce()
}

// OnInactive is the transport-closed hook: every active stream is
// closed against a succeeded future so a registered shutdown fires,
// then the resources are freed.
func (e *Engine) OnInactive() {
	e.conn.ForEachStream(func(strm *Stream) bool {
		e.closeStream(strm)
		return true
	})

	e.freeResources()
	e.shutdown = shutdownDone
}

// Exception routes pipeline-propagated errors: protocol-typed causes
// go through classification, everything else is handed back to the
// caller unchanged.
func (e *Engine) Exception(cause error) error {
	var perr Error
	if !errors.As(cause, &perr) {
		return cause
	}

	if perr.IsConnection() || perr.Stream() == 0 {
		e.onConnectionError(NewError(perr.Code(), perr.Debug()))
	} else {
		e.onStreamError(perr.Stream(), perr)
	}

	return nil
}

// Flush pushes buffered outbound bytes down to the transport.
func (e *Engine) Flush() error {
	return e.writer.Flush()
}

// Close starts a graceful shutdown: GOAWAY with NO_ERROR, then the
// transport closes once the active streams drain.
func (e *Engine) Close() error {
	e.sendGoAway(NoError, nil, false)
	return nil
}

// SendGoAway emits a GOAWAY carrying the given code and debug
// payload and schedules the transport close: with NoError the close
// waits for the active streams to drain, with any other code it
// follows the GOAWAY write at once.
func (e *Engine) SendGoAway(code ErrorCode, debug []byte) {
	e.sendGoAway(code, debug, code != NoError)
}

func (e *Engine) sendGoAway(code ErrorCode, debug []byte, dueToError bool) {
	remote := e.conn.Remote()

	var wd *WriteDone
	if !remote.GoAwayReceived() {
		last := remote.LastStreamCreated()

		wd = e.writer.WriteGoAway(last, code, debug)
		_ = e.writer.Flush()

		remote.markGoAway(last)

		if e.debug {
			e.logger.Printf("GoAway(last=%d, code=%s): %s\n", last, code, debug)
		}
	}

	if e.shutdown >= shutdownClosing {
		return
	}

	if dueToError || e.conn.NumActiveStreams() == 0 {
		if wd != nil {
			wd.OnComplete(func(error) {
				e.closeTransport()
			})
		} else {
			e.closeTransport()
		}

		return
	}

	// defer: the last stream's close fires the cascade
	e.shutdown = shutdownPending
}

// closeStream transitions strm to closed, removes it from the
// registry and fires the shutdown cascade when it was the last one.
func (e *Engine) closeStream(strm *Stream) {
	strm.SetState(StreamStateClosed)
	e.conn.Remove(strm.ID())
	e.outflow.StreamClosed(strm.ID())

	if e.debug {
		e.logger.Printf("Stream destroyed %d. Active streams: %d\n",
			strm.ID(), e.conn.NumActiveStreams())
	}

	if e.shutdown == shutdownPending && e.conn.NumActiveStreams() == 0 {
		e.closeTransport()
	}
}

func (e *Engine) closeTransport() {
	if e.shutdown >= shutdownClosing {
		return
	}
	e.shutdown = shutdownClosing

	_ = e.writer.Flush()

	if e.transport != nil {
		_ = e.transport.Close()
	}

	e.freeResources()
	e.shutdown = shutdownDone

	if e.onDisconnect != nil {
		e.onDisconnect(e)
	}
}

// freeResources runs exactly once: it closes the codec halves and
// releases the preface buffer.
func (e *Engine) freeResources() {
	if e.resourcesFreed {
		return
	}
	e.resourcesFreed = true

	_ = e.reader.Close()
	_ = e.writer.Close()
	e.prefaceBuf = nil
}

// onFrameError classifies an error raised by a frame handler.
// Stream errors are answered with a RST_STREAM and consumed;
// connection errors are answered with a GOAWAY and returned so the
// decode loop stops.
func (e *Engine) onFrameError(streamID uint32, err error) error {
	var perr Error
	if !errors.As(err, &perr) {
		perr = NewError(InternalError, err.Error())
	}

	if perr.IsConnection() {
		e.onConnectionError(perr)
		return err
	}

	e.onStreamError(streamID, perr)

	return nil
}

func (e *Engine) onStreamError(streamID uint32, perr Error) {
	if e.debug {
		e.logger.Printf("Reset(stream=%d, code=%s): %s\n",
			streamID, perr.Code(), perr.Debug())
	}

	e.writer.WriteRstStream(streamID, perr.Code())

	if strm := e.conn.Stream(streamID); strm != nil {
		strm.markResetSent()
		e.closeStream(strm)
	}
}

func (e *Engine) onConnectionError(perr Error) {
	e.sendGoAway(perr.Code(), []byte(perr.Debug()), true)
}
