package h2proto

// FrameReader turns the inbound byte stream into frame events. The
// engine feeds it byte chunks as the transport delivers them; emit
// fires once per complete frame, in wire order.
type FrameReader interface {
	Decode(p []byte, emit func(*FrameHeader) error) error

	MaxFrameSize() uint32
	SetMaxFrameSize(uint32)
	SetHeaderTableSize(uint32)
	SetMaxHeaderListSize(uint32)

	Close() error
}

// NewFrameReader returns the default frame reader.
func NewFrameReader() FrameReader {
	return &frameReader{
		maxFrameSize:    DefaultMaxFrameSize,
		headerTableSize: DefaultHeaderTableSize,
	}
}

type frameReader struct {
	buf []byte

	maxFrameSize    uint32
	headerTableSize uint32
	headerListSize  uint32

	closed bool
}

func (fr *frameReader) MaxFrameSize() uint32 {
	return fr.maxFrameSize
}

func (fr *frameReader) SetMaxFrameSize(v uint32) {
	fr.maxFrameSize = v
}

func (fr *frameReader) SetHeaderTableSize(v uint32) {
	fr.headerTableSize = v
}

func (fr *frameReader) SetMaxHeaderListSize(v uint32) {
	fr.headerListSize = v
}

func (fr *frameReader) Close() error {
	fr.closed = true
	fr.buf = nil
	return nil
}

func (fr *frameReader) Decode(p []byte, emit func(*FrameHeader) error) error {
	if fr.closed {
		return nil
	}

	fr.buf = append(fr.buf, p...)

	for len(fr.buf) >= DefaultFrameSize {
		length := int(uint32(fr.buf[0])<<16 | uint32(fr.buf[1])<<8 | uint32(fr.buf[2]))
		if uint32(length) > fr.maxFrameSize {
			return NewGoAwayError(FrameSizeError, "frame exceeds the maximum size")
		}

		if len(fr.buf) < DefaultFrameSize+length {
			break
		}

		fh := AcquireFrameHeader()
		fh.SetMaxLen(fr.maxFrameSize)

		err := fh.parseFrom(
			fr.buf[:DefaultFrameSize],
			fr.buf[DefaultFrameSize:DefaultFrameSize+length])

		fr.buf = fr.buf[:copy(fr.buf, fr.buf[DefaultFrameSize+length:])]

		if err != nil {
			ReleaseFrameHeader(fh)
			return NewGoAwayError(FrameSizeError, err.Error())
		}

		err = emit(fh)
		ReleaseFrameHeader(fh)

		if err != nil {
			return err
		}

		if fr.closed {
			break
		}
	}

	return nil
}
