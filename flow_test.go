package h2proto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutboundFlowChunksToMaxFrameSize(t *testing.T) {
	out := bytes.NewBuffer(nil)
	fw := NewFrameWriter(out)

	fl := NewOutboundFlow(fw)

	body := strings.Repeat("x", 40000)

	data := AcquireFrame(FrameData).(*Data)
	data.SetData([]byte(body))
	data.SetEndStream(true)

	wd := NewWriteDone()
	fl.WriteData(1, data, wd)

	require.NoError(t, wd.Err())

	frames := decodeAll(t, out.Bytes())

	var got []byte
	for i, fr := range frames {
		require.Equal(t, FrameData, fr.Type())
		require.LessOrEqual(t, fr.Len(), int(DefaultMaxFrameSize))

		d := fr.Body().(*Data)
		require.Equal(t, i == len(frames)-1, d.EndStream())

		got = append(got, d.Data()...)
	}

	require.Equal(t, body, string(got))
}

func TestOutboundFlowRespectsWindow(t *testing.T) {
	out := bytes.NewBuffer(nil)
	fw := NewFrameWriter(out)

	fl := NewOutboundFlow(fw)

	// more than the default 65535 window on both levels
	body := strings.Repeat("y", int(DefaultWindowSize)+1000)

	data := AcquireFrame(FrameData).(*Data)
	data.SetData([]byte(body))
	data.SetEndStream(true)

	wd := NewWriteDone()
	fl.WriteData(1, data, wd)

	// the tail is parked until the peer credits the windows
	require.False(t, wd.Done())

	sent := 0
	for _, fr := range decodeAll(t, out.Bytes()) {
		sent += fr.Len()
	}
	require.Equal(t, int(DefaultWindowSize), sent)
	out.Reset()

	require.NoError(t, fl.UpdateWindow(1, 2000))
	require.False(t, wd.Done()) // connection window still empty

	require.NoError(t, fl.UpdateWindow(0, 2000))
	require.True(t, wd.Done())
	require.NoError(t, wd.Err())

	rest := 0
	for _, fr := range decodeAll(t, out.Bytes()) {
		rest += fr.Len()
	}
	require.Equal(t, 1000, rest)
}

func TestOutboundFlowInitialWindowAdjustsStreams(t *testing.T) {
	out := bytes.NewBuffer(nil)
	fl := NewOutboundFlow(NewFrameWriter(out))

	data := AcquireFrame(FrameData).(*Data)
	data.SetData(bytes.Repeat([]byte("z"), int(DefaultWindowSize)))
	data.SetEndStream(false)

	wd := NewWriteDone()
	fl.WriteData(1, data, wd)
	require.True(t, wd.Done()) // exactly the window

	tail := AcquireFrame(FrameData).(*Data)
	tail.SetData([]byte("tail"))
	tail.SetEndStream(true)

	wd2 := NewWriteDone()
	fl.WriteData(1, tail, wd2)
	require.False(t, wd2.Done())

	// growing the initial window retroactively credits the stream;
	// the connection window gets its own update
	fl.SetInitialWindowSize(DefaultWindowSize + 100)
	require.NoError(t, fl.UpdateWindow(0, 100))

	require.True(t, wd2.Done())
	require.NoError(t, wd2.Err())
}

func TestOutboundFlowWindowOverflow(t *testing.T) {
	fl := NewOutboundFlow(NewFrameWriter(bytes.NewBuffer(nil)))

	err := fl.UpdateWindow(0, int(MaxWindowSize))
	require.Error(t, err)

	var perr Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, FlowControlError, perr.Code())
	require.True(t, perr.IsConnection())

	err = fl.UpdateWindow(3, int(MaxWindowSize))
	require.Error(t, err)
	require.ErrorAs(t, err, &perr)
	require.False(t, perr.IsConnection())
}

func TestInboundFlowCreditsStreamAndConnection(t *testing.T) {
	out := bytes.NewBuffer(nil)
	fl := NewInboundFlow(NewFrameWriter(out), 1<<16)

	require.NoError(t, fl.OnDataRead(3, 1000))

	frames := decodeAll(t, out.Bytes())
	require.Len(t, frames, 1)
	require.Equal(t, uint32(3), frames[0].Stream())
	require.Equal(t, 1000, frames[0].Body().(*WindowUpdate).Increment())
	out.Reset()

	// drop the connection window below half: credit goes out
	require.NoError(t, fl.OnDataRead(3, 1<<15))

	frames = decodeAll(t, out.Bytes())
	require.Len(t, frames, 2)
	require.Equal(t, uint32(0), frames[1].Stream())
	require.Equal(t, 1000+1<<15, frames[1].Body().(*WindowUpdate).Increment())
}

func TestInboundFlowConnectionExhaustion(t *testing.T) {
	fl := NewInboundFlow(NewFrameWriter(bytes.NewBuffer(nil)), 1<<16)

	// a run of maximum frames blows the connection window before
	// the crediting catches up only if accounting is broken; a
	// single oversized read must fail cleanly
	err := fl.OnDataRead(3, 1<<16+1)
	require.Error(t, err)

	var perr Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, FlowControlError, perr.Code())
}

func TestStreamClosedFailsParkedWrites(t *testing.T) {
	fl := NewOutboundFlow(NewFrameWriter(bytes.NewBuffer(nil)))

	data := AcquireFrame(FrameData).(*Data)
	data.SetData(bytes.Repeat([]byte("w"), int(DefaultWindowSize)+1))
	data.SetEndStream(true)

	wd := NewWriteDone()
	fl.WriteData(1, data, wd)
	require.False(t, wd.Done())

	fl.StreamClosed(1)

	require.True(t, wd.Done())
	require.Error(t, wd.Err())
}
