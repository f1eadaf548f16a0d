package h2proto

import (
	"fmt"
)

const defaultMaxStreams uint32 = 100

// Endpoint is one side's view of the connection: the streams it
// created, how many more it may create and whether a GOAWAY has
// reached it.
type Endpoint struct {
	local  bool
	server bool

	lastStreamCreated uint32
	nextStreamID      uint32

	maxStreams  uint32
	pushAllowed bool

	goAwayReceived  bool
	lastKnownStream uint32

	numActive int
}

// IsServer reports whether the endpoint plays the server role.
func (ep *Endpoint) IsServer() bool {
	return ep.server
}

// LastStreamCreated returns the highest stream id the endpoint has
// created. Monotone non-decreasing for the whole connection life.
func (ep *Endpoint) LastStreamCreated() uint32 {
	return ep.lastStreamCreated
}

// NextStreamID allocates the next stream id for the endpoint.
func (ep *Endpoint) NextStreamID() uint32 {
	id := ep.nextStreamID
	ep.nextStreamID += 2
	return id
}

// IsValidStreamID checks the id parity for the endpoint: servers
// own even ids, clients odd ones.
func (ep *Endpoint) IsValidStreamID(id uint32) bool {
	if id == 0 {
		return false
	}

	if ep.server {
		return id&1 == 0
	}

	return id&1 == 1
}

// MaxStreams returns how many concurrent streams the endpoint may
// have active.
func (ep *Endpoint) MaxStreams() uint32 {
	return ep.maxStreams
}

// SetMaxStreams sets the active stream cap, clamping values above
// the signed 32-bit range.
func (ep *Endpoint) SetMaxStreams(v uint32) {
	if v > 1<<31-1 {
		v = 1<<31 - 1
	}

	ep.maxStreams = v
}

// PushAllowed reports whether PUSH_PROMISE frames may be sent
// towards the endpoint.
func (ep *Endpoint) PushAllowed() bool {
	return ep.pushAllowed
}

// SetPushAllowed enables or disables pushes towards the endpoint.
func (ep *Endpoint) SetPushAllowed(v bool) {
	ep.pushAllowed = v
}

// GoAwayReceived reports whether a GOAWAY has reached the endpoint.
// The flag latches: it is set once and never cleared.
func (ep *Endpoint) GoAwayReceived() bool {
	return ep.goAwayReceived
}

// LastKnownStream returns the last-stream-id carried by the GOAWAY
// that reached the endpoint.
func (ep *Endpoint) LastKnownStream() uint32 {
	return ep.lastKnownStream
}

func (ep *Endpoint) markGoAway(lastKnown uint32) {
	ep.goAwayReceived = true
	ep.lastKnownStream = lastKnown
}

// NumActiveStreams returns the number of streams the endpoint has
// currently active.
func (ep *Endpoint) NumActiveStreams() int {
	return ep.numActive
}

// Connection is the registry of both endpoints and their streams.
// Stream id 0 denotes the connection itself: it never has a state
// and is never present here.
type Connection struct {
	server bool

	streams Streams

	local  Endpoint
	remote Endpoint
}

// NewConnection returns the registry for one connection playing the
// given role.
func NewConnection(server bool) *Connection {
	c := &Connection{server: server}

	c.local = Endpoint{
		local:       true,
		server:      server,
		maxStreams:  defaultMaxStreams,
		pushAllowed: !server,
	}
	c.remote = Endpoint{
		server:      !server,
		maxStreams:  defaultMaxStreams,
		pushAllowed: server,
	}

	if server {
		c.local.nextStreamID = 2
		c.remote.nextStreamID = 1
	} else {
		c.local.nextStreamID = 1
		c.remote.nextStreamID = 2
	}

	return c
}

// IsServer reports the connection role.
func (c *Connection) IsServer() bool {
	return c.server
}

// Local is our side of the connection.
func (c *Connection) Local() *Endpoint {
	return &c.local
}

// Remote is the peer's side of the connection.
func (c *Connection) Remote() *Endpoint {
	return &c.remote
}

// IsGoAway reports whether a GOAWAY travelled in either direction.
func (c *Connection) IsGoAway() bool {
	return c.local.goAwayReceived || c.remote.goAwayReceived
}

// Stream returns the registered stream or nil.
func (c *Connection) Stream(id uint32) *Stream {
	return c.streams.Get(id)
}

// NumActiveStreams returns the total number of registered streams.
func (c *Connection) NumActiveStreams() int {
	return c.streams.Len()
}

// ForEachStream visits every registered stream in id order.
func (c *Connection) ForEachStream(visit func(*Stream) bool) {
	c.streams.All(visit)
}

func (c *Connection) endpoint(local bool) *Endpoint {
	if local {
		return &c.local
	}
	return &c.remote
}

func (c *Connection) checkNewStreamID(ep *Endpoint, id uint32) error {
	if !ep.IsValidStreamID(id) {
		return NewGoAwayError(ProtocolError,
			fmt.Sprintf("invalid stream id %d", id))
	}

	if id <= ep.lastStreamCreated {
		return NewGoAwayError(ProtocolError,
			fmt.Sprintf("stream id %d was used before", id))
	}

	return nil
}

func (c *Connection) register(ep *Endpoint, strm *Stream) {
	c.streams.Insert(strm)
	ep.lastStreamCreated = strm.id
	if strm.id >= ep.nextStreamID {
		ep.nextStreamID = strm.id + 2
	}
	ep.numActive++
}

// CreateLocalStream opens a stream created by us, half-closed on our
// side when the first write already ended the stream.
func (c *Connection) CreateLocalStream(id uint32, halfClosed bool) (*Stream, error) {
	return c.createStream(&c.local, id, halfClosed)
}

// CreateRemoteStream opens a stream created by the peer, half-closed
// on the remote side when the opening frame ended the stream.
func (c *Connection) CreateRemoteStream(id uint32, halfClosed bool) (*Stream, error) {
	return c.createStream(&c.remote, id, halfClosed)
}

func (c *Connection) createStream(ep *Endpoint, id uint32, halfClosed bool) (*Stream, error) {
	if err := c.checkNewStreamID(ep, id); err != nil {
		return nil, err
	}

	if uint32(ep.numActive) >= ep.maxStreams {
		return nil, NewResetStreamError(RefusedStreamError,
			"max concurrent streams exceeded")
	}

	strm := NewStream(id, ep.local)
	strm.state = StreamStateOpen
	if halfClosed {
		if ep.local {
			strm.state = StreamStateHalfClosedLocal
		} else {
			strm.state = StreamStateHalfClosedRemote
		}
	}

	c.register(ep, strm)

	return strm, nil
}

// ReservePushLocal reserves a stream we promised with PUSH_PROMISE.
func (c *Connection) ReservePushLocal(id uint32) (*Stream, error) {
	return c.reservePush(&c.local, id)
}

// ReservePushRemote reserves a stream the peer promised.
func (c *Connection) ReservePushRemote(id uint32) (*Stream, error) {
	return c.reservePush(&c.remote, id)
}

func (c *Connection) reservePush(ep *Endpoint, id uint32) (*Stream, error) {
	if err := c.checkNewStreamID(ep, id); err != nil {
		return nil, err
	}

	strm := NewStream(id, ep.local)
	if ep.local {
		strm.state = StreamStateReservedLocal
	} else {
		strm.state = StreamStateReservedRemote
	}

	c.register(ep, strm)

	return strm, nil
}

// Remove drops a closed stream from the registry.
func (c *Connection) Remove(id uint32) *Stream {
	strm := c.streams.Del(id)
	if strm != nil {
		c.endpoint(strm.createdLocally).numActive--
	}

	return strm
}
