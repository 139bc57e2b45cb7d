package rtcview

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-camsession/pkg/protocol"
)

// ChunkSize is the largest binary message sent on the frames channel.
// SCTP messages above 16KiB are not portable across browsers.
const ChunkSize = 16 * 1024

var (
	// ErrUnexpectedChunk is returned for binary data without a pending header.
	ErrUnexpectedChunk = errors.New("rtcview: chunk without frame header")

	// ErrFrameOverflow is returned when chunks exceed the announced size.
	ErrFrameOverflow = errors.New("rtcview: frame larger than announced")
)

// Split cuts data into messages of at most size bytes.
func Split(data []byte, size int) [][]byte {
	if size <= 0 {
		size = ChunkSize
	}
	out := make([][]byte, 0, (len(data)+size-1)/size)
	for len(data) > size {
		out = append(out, data[:size])
		data = data[size:]
	}
	if len(data) > 0 {
		out = append(out, data)
	}
	return out
}

// Assembler rebuilds frames on the receiving side from a header message
// followed by its binary chunks.
type Assembler struct {
	header *protocol.FrameData
	buf    []byte
	got    int
}

// Header starts a new frame, discarding any incomplete one.
func (a *Assembler) Header(fd *protocol.FrameData) {
	a.header = fd
	a.buf = make([]byte, 0, fd.Size)
	a.got = 0
}

// Chunk appends data to the pending frame. It returns the frame bytes and
// header once the last chunk arrived.
func (a *Assembler) Chunk(data []byte) ([]byte, *protocol.FrameData, error) {
	if a.header == nil {
		return nil, nil, ErrUnexpectedChunk
	}
	if len(a.buf)+len(data) > a.header.Size {
		a.header = nil
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrFrameOverflow, len(a.buf)+len(data))
	}

	a.buf = append(a.buf, data...)
	a.got++
	if a.got < a.header.Chunks {
		return nil, nil, nil
	}

	frame, fd := a.buf, a.header
	a.header, a.buf, a.got = nil, nil, 0
	return frame, fd, nil
}
