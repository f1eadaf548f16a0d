package h2proto

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

type dataEvent struct {
	stream    uint32
	body      []byte
	endStream bool
}

type headersEvent struct {
	stream    uint32
	block     []byte
	endStream bool
}

type recordingListener struct {
	FrameListenerBase

	data     []dataEvent
	headers  []headersEvent
	rsts     map[uint32]ErrorCode
	settings int
	acks     int
	pings    [][]byte
	pingAcks [][]byte
	goaways  []uint32
	windows  map[uint32]int
	promises map[uint32]uint32
	unknown  []FrameType
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		rsts:     make(map[uint32]ErrorCode),
		windows:  make(map[uint32]int),
		promises: make(map[uint32]uint32),
	}
}

func (l *recordingListener) OnDataRead(id uint32, b []byte, padded, endStream bool) {
	l.data = append(l.data, dataEvent{id, append([]byte(nil), b...), endStream})
}

func (l *recordingListener) OnHeadersRead(id uint32, block []byte, endStream bool) {
	l.headers = append(l.headers, headersEvent{id, append([]byte(nil), block...), endStream})
}

func (l *recordingListener) OnHeadersPriorityRead(id uint32, block []byte,
	dep uint32, weight uint8, exclusive, endStream bool) {
	l.headers = append(l.headers, headersEvent{id, append([]byte(nil), block...), endStream})
}

func (l *recordingListener) OnRstStreamRead(id uint32, code ErrorCode) {
	l.rsts[id] = code
}

func (l *recordingListener) OnSettingsRead(st *Settings) {
	l.settings++
}

func (l *recordingListener) OnSettingsAckRead() {
	l.acks++
}

func (l *recordingListener) OnPingRead(data []byte) {
	l.pings = append(l.pings, append([]byte(nil), data...))
}

func (l *recordingListener) OnPingAckRead(data []byte) {
	l.pingAcks = append(l.pingAcks, append([]byte(nil), data...))
}

func (l *recordingListener) OnGoAwayRead(last uint32, code ErrorCode, debug []byte) {
	l.goaways = append(l.goaways, last)
}

func (l *recordingListener) OnWindowUpdateRead(id uint32, increment int) {
	l.windows[id] = increment
}

func (l *recordingListener) OnPushPromiseRead(id, promised uint32, block []byte) {
	l.promises[promised] = id
}

func (l *recordingListener) OnUnknownFrame(id uint32, kind FrameType, flags FrameFlags, payload []byte) {
	l.unknown = append(l.unknown, kind)
}

type testTransport struct {
	closed bool
}

func (tt *testTransport) Close() error {
	tt.closed = true
	return nil
}

type testEngine struct {
	*Engine

	out       *bytes.Buffer
	listener  *recordingListener
	transport *testTransport
}

func newTestEngine(server bool) *testEngine {
	out := bytes.NewBuffer(nil)
	lst := newRecordingListener()
	tt := &testTransport{}

	e := NewEngine(EngineOpts{
		Server:    server,
		Writer:    NewFrameWriter(out),
		Listener:  lst,
		Transport: tt,
	})

	return &testEngine{Engine: e, out: out, listener: lst, transport: tt}
}

// emitted decodes and drains the engine's output.
func (te *testEngine) emitted(t *testing.T) []*FrameHeader {
	t.Helper()

	frames := decodeAll(t, te.out.Bytes())
	te.out.Reset()

	return frames
}

func frameBytes(streamID uint32, body Frame) []byte {
	fh := AcquireFrameHeader()
	fh.SetStream(streamID)
	fh.SetBody(body)

	b := fh.AppendSerialized(nil)

	fh.fr = nil // the body is the caller's
	frameHeaderPool.Put(fh)

	return b
}

func emptySettings() *Settings {
	return &Settings{}
}

// feed runs peer bytes through the engine.
func (te *testEngine) feed(t *testing.T, b []byte) {
	t.Helper()

	require.NoError(t, te.Decode(b))
}

// handshake completes the peer's half of the preface.
func (te *testEngine) handshake(t *testing.T) {
	t.Helper()

	require.NoError(t, te.OnActive())

	if te.Connection().IsServer() {
		te.feed(t, Preface)
	}

	te.feed(t, frameBytes(0, emptySettings()))

	te.out.Reset()
	te.listener.settings = 0
}

func TestClientHandshakeBytes(t *testing.T) {
	te := newTestEngine(false)

	require.NoError(t, te.OnActive())

	want := "505249202a20485454502f322e300d0a0d0a534d0d0a0d0a" + // magic
		"000000040000000000" // empty SETTINGS
	require.Equal(t, want, hex.EncodeToString(te.out.Bytes()))
}

func TestPrefaceSendIsIdempotent(t *testing.T) {
	te := newTestEngine(false)

	require.NoError(t, te.OnActive())
	n := te.out.Len()

	require.NoError(t, te.OnAttached())
	require.NoError(t, te.OnActive())

	require.Equal(t, n, te.out.Len())
}

func TestServerRejectsBadPreface(t *testing.T) {
	te := newTestEngine(true)

	err := te.Decode([]byte{0x47, 0x45, 0x54, 0x20, 0x2f}) // "GET /"
	require.ErrorIs(t, err, ErrBadPreface)

	require.True(t, te.transport.closed)
	require.Empty(t, te.emitted(t))
}

func TestServerPrefaceByteByByte(t *testing.T) {
	te := newTestEngine(true)
	require.NoError(t, te.OnActive())
	te.out.Reset()

	for i := range Preface {
		te.feed(t, Preface[i:i+1])
	}

	te.feed(t, frameBytes(0, emptySettings()))
	require.True(t, te.PrefaceReceived())

	frames := te.emitted(t)
	require.Len(t, frames, 1)
	require.True(t, frames[0].Body().(*Settings).IsAck())
}

func TestFrameBeforeSettingsIsConnectionError(t *testing.T) {
	te := newTestEngine(false)
	require.NoError(t, te.OnActive())
	te.out.Reset()

	ping := &Ping{}
	ping.SetData([]byte("pingpong"))

	err := te.Decode(frameBytes(0, ping))
	require.Error(t, err)

	frames := te.emitted(t)
	require.Len(t, frames, 1)
	require.Equal(t, FrameGoAway, frames[0].Type())
	require.Equal(t, ProtocolError, frames[0].Body().(*GoAway).Code())
	require.True(t, te.transport.closed)
}

func TestSettingsAckRoundTrip(t *testing.T) {
	te := newTestEngine(false)
	te.handshake(t)

	// consume the ACK of the handshake SETTINGS
	te.feed(t, ackBytes())

	st := &Settings{}
	st.SetInitialWindowSize(65535)
	require.NoError(t, te.WriteSettings(st).Err())

	st2 := &Settings{}
	st2.SetInitialWindowSize(131072)
	require.NoError(t, te.WriteSettings(st2).Err())

	// nothing applied until the peer acknowledges
	te.feed(t, ackBytes())
	require.Equal(t, uint32(65535), te.inflow.InitialWindowSize())

	te.feed(t, ackBytes())
	require.Equal(t, uint32(131072), te.inflow.InitialWindowSize())

	// a superfluous ACK consumes nothing
	te.feed(t, ackBytes())
	require.Equal(t, uint32(131072), te.inflow.InitialWindowSize())
}

func ackBytes() []byte {
	ack := &Settings{}
	ack.SetAck(true)
	return frameBytes(0, ack)
}

func TestSettingsAckedOncePerSettingsInOrder(t *testing.T) {
	te := newTestEngine(true)
	te.handshake(t)

	st := &Settings{}
	st.SetMaxConcurrentStreams(7)

	te.feed(t, frameBytes(0, st))
	te.feed(t, frameBytes(0, st))

	frames := te.emitted(t)
	require.Len(t, frames, 2)
	for _, fr := range frames {
		require.Equal(t, FrameSettings, fr.Type())
		require.True(t, fr.Body().(*Settings).IsAck())
	}

	require.Equal(t, 2, te.listener.settings)
}

func TestMaxConcurrentStreamsClamped(t *testing.T) {
	te := newTestEngine(true)
	te.handshake(t)

	st := &Settings{}
	st.SetMaxConcurrentStreams(1<<31 + 42)

	te.feed(t, frameBytes(0, st))

	require.Equal(t, uint32(1<<31-1), te.Connection().Local().MaxStreams())
}

func TestMaxFrameSizeOutOfRange(t *testing.T) {
	for _, v := range []uint32{1<<14 - 1, 1 << 24} {
		te := newTestEngine(true)
		te.handshake(t)

		st := &Settings{}
		st.SetMaxFrameSize(v)

		err := te.Decode(frameBytes(0, st))
		require.Error(t, err)
		require.ErrorIs(t, err, NewError(FrameSizeError, ""))

		frames := te.emitted(t)
		require.NotEmpty(t, frames)
		last := frames[len(frames)-1]
		require.Equal(t, FrameGoAway, last.Type())
		require.Equal(t, FrameSizeError, last.Body().(*GoAway).Code())
	}
}

func TestPingEcho(t *testing.T) {
	te := newTestEngine(true)
	te.handshake(t)

	ping := &Ping{}
	ping.SetData([]byte("12345678"))

	te.feed(t, frameBytes(0, ping))

	frames := te.emitted(t)
	require.Len(t, frames, 1)

	echo := frames[0].Body().(*Ping)
	require.True(t, echo.IsAck())
	require.Equal(t, []byte("12345678"), echo.Data())
	require.Len(t, te.listener.pings, 1)
}

func headersOn(id uint32, endStream bool) []byte {
	h := &Headers{}
	h.SetHeaders([]byte{0x82})
	h.SetEndHeaders(true)
	h.SetEndStream(endStream)
	return frameBytes(id, h)
}

func dataOn(id uint32, body string, endStream bool) []byte {
	d := &Data{}
	d.SetData([]byte(body))
	d.SetEndStream(endStream)
	return frameBytes(id, d)
}

func rstOn(id uint32, code ErrorCode) []byte {
	rst := &RstStream{}
	rst.SetCode(code)
	return frameBytes(id, rst)
}

func TestEndOfStreamCascade(t *testing.T) {
	te := newTestEngine(true)
	te.handshake(t)

	te.feed(t, headersOn(3, false))

	strm := te.Connection().Stream(3)
	require.NotNil(t, strm)
	require.Equal(t, StreamStateOpen, strm.State())

	te.feed(t, dataOn(3, "tail", true))
	require.Equal(t, StreamStateHalfClosedRemote, strm.State())

	wd := te.WriteHeaders(3, []byte{0x88}, true)
	require.NoError(t, wd.Err())

	require.Equal(t, StreamStateClosed, strm.State())
	require.Nil(t, te.Connection().Stream(3))
}

func TestStreamErrorContainment(t *testing.T) {
	te := newTestEngine(true)
	te.handshake(t)

	te.feed(t, headersOn(3, false))
	te.feed(t, headersOn(5, false))
	te.feed(t, dataOn(5, "done", true))

	require.Equal(t, StreamStateHalfClosedRemote, te.Connection().Stream(5).State())
	te.out.Reset()

	// a second HEADERS on the finished stream is a stream error
	te.feed(t, headersOn(5, false))

	frames := te.emitted(t)
	require.Len(t, frames, 1)
	require.Equal(t, FrameResetStream, frames[0].Type())
	require.Equal(t, uint32(5), frames[0].Stream())
	require.Equal(t, ProtocolError, frames[0].Body().(*RstStream).Code())

	require.Nil(t, te.Connection().Stream(5))
	require.False(t, te.transport.closed)

	// the neighbour stream is untouched
	te.feed(t, dataOn(3, "still here", false))
	require.Equal(t, "still here", string(te.listener.data[len(te.listener.data)-1].body))
}

func TestGracefulCloseDrainsStreams(t *testing.T) {
	te := newTestEngine(true)
	te.handshake(t)

	te.feed(t, headersOn(3, false))
	te.feed(t, headersOn(5, false))
	te.out.Reset()

	require.NoError(t, te.Close())

	frames := te.emitted(t)
	require.Len(t, frames, 1)
	require.Equal(t, FrameGoAway, frames[0].Type())

	ga := frames[0].Body().(*GoAway)
	require.Equal(t, uint32(5), ga.Stream())
	require.Equal(t, NoError, ga.Code())
	require.False(t, te.transport.closed)

	te.feed(t, rstOn(3, StreamCanceled))
	require.False(t, te.transport.closed)

	te.feed(t, rstOn(5, StreamCanceled))
	require.True(t, te.transport.closed)
}

func TestGoAwayWithoutStreamsClosesAtOnce(t *testing.T) {
	te := newTestEngine(true)
	te.handshake(t)

	require.NoError(t, te.Close())
	require.True(t, te.transport.closed)
}

func TestGoAwayIgnoresNewPeerStreams(t *testing.T) {
	te := newTestEngine(true)
	te.handshake(t)

	te.feed(t, headersOn(3, false))

	require.NoError(t, te.Close())
	te.out.Reset()

	// created after our advertised last stream: dropped silently
	te.feed(t, headersOn(5, false))

	require.Nil(t, te.Connection().Stream(5))
	require.Empty(t, te.emitted(t))
	require.Len(t, te.listener.headers, 1)
}

func TestRstStreamOnUnknownStreamIsNoop(t *testing.T) {
	te := newTestEngine(true)
	te.handshake(t)

	wd := te.WriteRstStream(99, StreamCanceled)
	require.NoError(t, wd.Err())
	require.Empty(t, te.emitted(t))
}

func TestRstStreamForClosedStreamIgnored(t *testing.T) {
	te := newTestEngine(true)
	te.handshake(t)

	te.feed(t, headersOn(3, true))
	te.feed(t, rstOn(3, StreamCanceled))
	te.out.Reset()

	// the stream is gone; a second reset changes nothing
	te.feed(t, rstOn(3, StreamCanceled))

	require.Empty(t, te.emitted(t))
	require.False(t, te.transport.closed)
}

func TestRstStreamOnIdleStreamIsConnectionError(t *testing.T) {
	te := newTestEngine(true)
	te.handshake(t)

	err := te.Decode(rstOn(7, StreamCanceled))
	require.Error(t, err)

	frames := te.emitted(t)
	require.NotEmpty(t, frames)
	require.Equal(t, FrameGoAway, frames[len(frames)-1].Type())
}

func TestWritesRefusedAfterGoAway(t *testing.T) {
	te := newTestEngine(true)
	te.handshake(t)

	te.feed(t, headersOn(3, false))
	require.NoError(t, te.Close())

	wd := te.WriteData(3, []byte("late"), false, false)
	require.ErrorIs(t, wd.Err(), ErrNotWritable)

	wd = te.WriteHeaders(7, []byte{0x82}, false)
	require.ErrorIs(t, wd.Err(), ErrNotWritable)
}

func TestWriteHeadersCreatesLocalStream(t *testing.T) {
	te := newTestEngine(false)
	te.handshake(t)

	id := te.Connection().Local().NextStreamID()
	require.Equal(t, uint32(1), id)

	wd := te.WriteHeaders(id, []byte{0x82}, false)
	require.NoError(t, wd.Err())

	strm := te.Connection().Stream(1)
	require.NotNil(t, strm)
	require.Equal(t, StreamStateOpen, strm.State())
	require.Equal(t, uint32(1), te.Connection().Local().LastStreamCreated())
}

func TestWriteHeadersEndStreamHalfCloses(t *testing.T) {
	te := newTestEngine(false)
	te.handshake(t)

	wd := te.WriteHeaders(1, []byte{0x82}, true)
	require.NoError(t, wd.Err())

	require.Equal(t, StreamStateHalfClosedLocal, te.Connection().Stream(1).State())
}

func TestWriteDataEmitsAndCascades(t *testing.T) {
	te := newTestEngine(false)
	te.handshake(t)

	require.NoError(t, te.WriteHeaders(1, []byte{0x82}, false).Err())
	te.out.Reset()

	wd := te.WriteData(1, []byte("payload"), false, true)
	require.NoError(t, wd.Err())

	frames := te.emitted(t)
	require.Len(t, frames, 1)
	require.Equal(t, FrameData, frames[0].Type())

	d := frames[0].Body().(*Data)
	require.Equal(t, "payload", string(d.Data()))
	require.True(t, d.EndStream())

	require.Equal(t, StreamStateHalfClosedLocal, te.Connection().Stream(1).State())
}

func TestWriteDataOnMissingStreamFails(t *testing.T) {
	te := newTestEngine(false)
	te.handshake(t)

	wd := te.WriteData(1, []byte("nope"), false, false)
	require.ErrorIs(t, wd.Err(), ErrStreamNotFound)
}

func TestPendingSettingsQueueIsCapped(t *testing.T) {
	te := newTestEngine(false)
	te.handshake(t)

	st := &Settings{}
	st.SetHeaderTableSize(512)

	var failed bool
	for i := 0; i < maxPendingSettings+1; i++ {
		if te.WriteSettings(st).Err() != nil {
			failed = true
			break
		}
	}

	require.True(t, failed)
	require.True(t, te.Connection().IsGoAway())
}

func TestClientUpgradeReservesStreamOne(t *testing.T) {
	te := newTestEngine(false)

	require.NoError(t, te.OnClientUpgrade())

	strm := te.Connection().Stream(1)
	require.NotNil(t, strm)
	require.Equal(t, StreamStateHalfClosedLocal, strm.State())
	require.True(t, strm.CreatedLocally())

	// one-shot
	require.Error(t, te.OnClientUpgrade())
}

func TestClientUpgradeOnServerIsError(t *testing.T) {
	te := newTestEngine(true)
	require.Error(t, te.OnClientUpgrade())
}

func TestUpgradeAfterHandshakeIsError(t *testing.T) {
	te := newTestEngine(false)
	require.NoError(t, te.OnActive())

	require.Error(t, te.OnClientUpgrade())
}

func TestServerUpgradeAppliesSettingsWithoutAck(t *testing.T) {
	te := newTestEngine(true)

	st := &Settings{}
	st.SetInitialWindowSize(1 << 18)

	require.NoError(t, te.OnServerUpgrade(st))

	require.Equal(t, uint32(1<<18), te.outflow.InitialWindowSize())
	require.Empty(t, te.emitted(t))

	strm := te.Connection().Stream(1)
	require.NotNil(t, strm)
	require.Equal(t, StreamStateHalfClosedRemote, strm.State())
	require.False(t, strm.CreatedLocally())
}

func TestPushPromiseReservesStream(t *testing.T) {
	te := newTestEngine(false)
	te.handshake(t)

	require.NoError(t, te.WriteHeaders(1, []byte{0x82}, false).Err())

	pp := &PushPromise{}
	pp.SetPromised(2)
	pp.SetHeaders([]byte{0x82})
	pp.SetEndHeaders(true)

	te.feed(t, frameBytes(1, pp))

	strm := te.Connection().Stream(2)
	require.NotNil(t, strm)
	require.Equal(t, StreamStateReservedRemote, strm.State())
	require.Equal(t, uint32(1), te.listener.promises[2])

	// the promised stream opens with its response headers
	te.feed(t, headersOn(2, false))
	require.Equal(t, StreamStateHalfClosedLocal, strm.State())
}

func TestPushPromiseRejectedWhenPushDisabled(t *testing.T) {
	out := bytes.NewBuffer(nil)

	var st Settings
	st.SetEnablePush(false)

	e := NewEngine(EngineOpts{
		Writer:   NewFrameWriter(out),
		Settings: st,
	})

	require.NoError(t, e.OnActive())
	require.NoError(t, e.Decode(frameBytes(0, emptySettings())))
	out.Reset()

	require.NoError(t, e.WriteHeaders(1, []byte{0x82}, false).Err())

	pp := &PushPromise{}
	pp.SetPromised(2)
	pp.SetHeaders([]byte{0x82})
	pp.SetEndHeaders(true)

	err := e.Decode(frameBytes(1, pp))
	require.Error(t, err)
	require.Nil(t, e.Connection().Stream(2))
}

func TestUnknownFrameDelivered(t *testing.T) {
	te := newTestEngine(true)
	te.handshake(t)

	// type 0xfa is nothing we know
	raw := []byte{0x0, 0x0, 0x2, 0xfa, 0x0, 0x0, 0x0, 0x0, 0x0, 0xde, 0xad}
	te.feed(t, raw)

	require.Len(t, te.listener.unknown, 1)
	require.Equal(t, FrameType(0xfa), te.listener.unknown[0])
	require.Empty(t, te.emitted(t))
}

func TestLastStreamCreatedMonotone(t *testing.T) {
	te := newTestEngine(true)
	te.handshake(t)

	te.feed(t, headersOn(3, false))
	te.feed(t, headersOn(9, false))
	require.Equal(t, uint32(9), te.Connection().Remote().LastStreamCreated())

	// going backwards is refused
	err := te.Decode(headersOn(7, false))
	_ = err

	require.Equal(t, uint32(9), te.Connection().Remote().LastStreamCreated())
}
