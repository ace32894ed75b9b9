package tcptransport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameSize bounds a single frame the way the teacher's cbor package
// enforces MaxFrameHardLimit, guarding against a malformed or hostile
// length prefix forcing an unbounded allocation.
const maxFrameSize = 16 * 1024 * 1024

// writeFrame writes payload prefixed with its 4-byte big-endian length,
// the same length-prefixed shape as the teacher's FrameWriter.WriteFrame
// (cbor/io.go), generalized from CBOR-only payloads to arbitrary bytes so
// it can carry either a handshake identity or a codec-encoded envelope.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameSize {
		return fmt.Errorf("tcptransport: frame size %d exceeds limit %d", len(payload), maxFrameSize)
	}
	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	if _, err := w.Write(lengthBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one length-prefixed frame written by writeFrame.
func readFrame(r io.Reader) ([]byte, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length > maxFrameSize {
		return nil, fmt.Errorf("tcptransport: frame size %d exceeds limit %d", length, maxFrameSize)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
