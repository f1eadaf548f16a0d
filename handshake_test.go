package h2proto

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp/fasthttputil"
	"golang.org/x/net/http2/hpack"
)

// serveEngine pumps inbound transport bytes into the engine from a
// single goroutine, the way a transport event loop would.
func serveEngine(c net.Conn, e *Engine) {
	buf := make([]byte, 4096)

	for {
		n, err := c.Read(buf)
		if n > 0 {
			if derr := e.Decode(buf[:n]); derr != nil {
				return
			}
		}
		if err != nil {
			e.OnInactive()
			return
		}
	}
}

type pathServer struct {
	FrameListenerBase

	e *Engine
}

func (s *pathServer) OnHeadersRead(id uint32, block []byte, endStream bool) {
	var path string

	dec := hpack.NewDecoder(4096, func(f hpack.HeaderField) {
		if f.Name == ":path" {
			path = f.Value
		}
	})
	_, _ = dec.Write(block)
	_ = dec.Close()

	var hb bytes.Buffer
	enc := hpack.NewEncoder(&hb)
	_ = enc.WriteField(hpack.HeaderField{Name: ":status", Value: "200"})
	_ = enc.WriteField(hpack.HeaderField{Name: "x-echo-path", Value: path})

	s.e.WriteHeaders(id, hb.Bytes(), true)
	_ = s.e.Flush()
}

type responseClient struct {
	FrameListenerBase

	resp chan []byte
}

func (c *responseClient) OnHeadersRead(id uint32, block []byte, endStream bool) {
	c.resp <- append([]byte(nil), block...)
}

func TestEnginesTalkOverInmemoryConn(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}

		lst := &pathServer{}
		e := NewEngine(EngineOpts{
			Server:    true,
			Writer:    NewFrameWriter(c),
			Listener:  lst,
			Transport: c,
		})
		lst.e = e

		_ = e.OnActive()
		serveEngine(c, e)
	}()

	c, err := ln.Dial()
	require.NoError(t, err)

	lst := &responseClient{resp: make(chan []byte, 1)}
	e := NewEngine(EngineOpts{
		Writer:    NewFrameWriter(c),
		Listener:  lst,
		Transport: c,
	})

	require.NoError(t, e.OnActive())

	var hb bytes.Buffer
	enc := hpack.NewEncoder(&hb)
	require.NoError(t, enc.WriteField(hpack.HeaderField{Name: ":method", Value: "GET"}))
	require.NoError(t, enc.WriteField(hpack.HeaderField{Name: ":path", Value: "/hello/world"}))
	require.NoError(t, enc.WriteField(hpack.HeaderField{Name: ":scheme", Value: "https"}))
	require.NoError(t, enc.WriteField(hpack.HeaderField{Name: ":authority", Value: "localhost"}))

	require.NoError(t, e.WriteHeaders(1, hb.Bytes(), true).Err())
	require.NoError(t, e.Flush())

	// only now hand the connection to the read loop
	go serveEngine(c, e)

	select {
	case block := <-lst.resp:
		var status, echoed string

		dec := hpack.NewDecoder(4096, func(f hpack.HeaderField) {
			switch f.Name {
			case ":status":
				status = f.Value
			case "x-echo-path":
				echoed = f.Value
			}
		})
		_, err = dec.Write(block)
		require.NoError(t, err)

		require.Equal(t, "200", status)
		require.Equal(t, "/hello/world", echoed)
	case <-time.After(time.Second * 5):
		t.Fatal("timed out waiting for the response headers")
	}
}
