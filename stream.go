package h2proto

// StreamState is a stream lifecycle state.
//
// https://tools.ietf.org/html/rfc7540#section-5.1
type StreamState int8

const (
	StreamStateIdle StreamState = iota
	StreamStateReservedLocal
	StreamStateReservedRemote
	StreamStateOpen
	StreamStateHalfClosedLocal
	StreamStateHalfClosedRemote
	StreamStateClosed
)

func (ss StreamState) String() string {
	switch ss {
	case StreamStateIdle:
		return "Idle"
	case StreamStateReservedLocal:
		return "ReservedLocal"
	case StreamStateReservedRemote:
		return "ReservedRemote"
	case StreamStateOpen:
		return "Open"
	case StreamStateHalfClosedLocal:
		return "HalfClosedLocal"
	case StreamStateHalfClosedRemote:
		return "HalfClosedRemote"
	case StreamStateClosed:
		return "Closed"
	}

	return "IDK"
}

// Stream carries the per-stream protocol state: the RFC 7540 state
// machine position, the stored priority and whether a RST_STREAM was
// emitted or observed for it.
type Stream struct {
	id    uint32
	state StreamState

	// stored priority; scheduling weights are not enforced here
	depStream uint32
	weight    uint8
	exclusive bool

	resetSent     bool
	resetReceived bool

	// the endpoint that created the stream
	createdLocally bool
}

// NewStream returns a stream in the idle state with the default
// priority weight.
func NewStream(id uint32, local bool) *Stream {
	return &Stream{
		id:             id,
		state:          StreamStateIdle,
		weight:         DefaultWeight - 1,
		createdLocally: local,
	}
}

func (s *Stream) ID() uint32 {
	return s.id
}

func (s *Stream) State() StreamState {
	return s.state
}

func (s *Stream) SetState(state StreamState) {
	s.state = state
}

// CreatedLocally reports which endpoint created the stream.
func (s *Stream) CreatedLocally() bool {
	return s.createdLocally
}

// Priority returns the stored dependency, wire weight and exclusive
// bit.
func (s *Stream) Priority() (dep uint32, weight uint8, exclusive bool) {
	return s.depStream, s.weight, s.exclusive
}

// SetPriority stores the stream priority.
func (s *Stream) SetPriority(dep uint32, weight uint8, exclusive bool) {
	s.depStream = dep
	s.weight = weight
	s.exclusive = exclusive
}

// ResetSent reports whether we emitted a RST_STREAM for the stream.
func (s *Stream) ResetSent() bool {
	return s.resetSent
}

func (s *Stream) markResetSent() {
	s.resetSent = true
}

// ResetReceived reports whether the peer reset the stream.
func (s *Stream) ResetReceived() bool {
	return s.resetReceived
}

func (s *Stream) markResetReceived() {
	s.resetReceived = true
}

// IsActive reports whether the stream still takes part in the
// connection.
func (s *Stream) IsActive() bool {
	return s.state != StreamStateIdle && s.state != StreamStateClosed
}

// closeRemoteSide runs the end-of-stream cascade for frames the peer
// finished with: open streams become half-closed (remote), any other
// state collapses to closed.
func (s *Stream) closeRemoteSide() {
	switch s.state {
	case StreamStateOpen:
		s.state = StreamStateHalfClosedRemote
	default:
		s.state = StreamStateClosed
	}
}

// closeLocalSide is the symmetric cascade for writes we finished.
func (s *Stream) closeLocalSide() {
	switch s.state {
	case StreamStateOpen:
		s.state = StreamStateHalfClosedLocal
	default:
		s.state = StreamStateClosed
	}
}
