package h2proto

const FramePing FrameType = 0x6

var _ Frame = &Ping{}

// Ping represents the PING frame.
//
// https://tools.ietf.org/html/rfc7540#section-6.7
type Ping struct {
	ack  bool
	data [8]byte
}

func (ping *Ping) Type() FrameType {
	return FramePing
}

func (ping *Ping) Reset() {
	ping.ack = false
	ping.data = [8]byte{}
}

func (ping *Ping) CopyTo(p *Ping) {
	p.ack = ping.ack
	p.data = ping.data
}

// IsAck returns whether the ACK flag is set.
func (ping *Ping) IsAck() bool {
	return ping.ack
}

// SetAck sets the ACK flag.
func (ping *Ping) SetAck(ack bool) {
	ping.ack = ack
}

// Data returns the 8 opaque payload octets.
func (ping *Ping) Data() []byte {
	return ping.data[:]
}

// SetData copies b into the payload octets.
func (ping *Ping) SetData(b []byte) {
	copy(ping.data[:], b)
}

func (ping *Ping) Deserialize(frh *FrameHeader) error {
	if len(frh.payload) != 8 {
		return ErrMissingBytes
	}

	ping.ack = frh.Flags().Has(FlagAck)
	ping.SetData(frh.payload)

	return nil
}

func (ping *Ping) Serialize(frh *FrameHeader) {
	if ping.ack {
		frh.SetFlags(frh.Flags().Add(FlagAck))
	}

	frh.setPayload(ping.data[:])
}
