// Package container implements the Event Encoder & Container Writer (§4.5)
// and the File Manager (§3): serializing events into a framed, chunked,
// authenticated-encrypted binary stream, and reading that stream back for
// the Report Builder.
package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tracewell-dev/tracewell/internal/types"
)

// encodeRecord serializes one event into the §4.5 record layout:
//
//	kind:u8 | thread_id:varint | delta_ts_ns:varint | file_id:varint | line:varint | payload_len:varint | payload:bytes
//
// deltaTS is the event's timestamp relative to the owning chunk's base
// timestamp.
func encodeRecord(buf *bytes.Buffer, e types.Event, deltaTS uint64) error {
	payload, err := encodePayload(e.Payload)
	if err != nil {
		return err
	}

	buf.WriteByte(byte(e.Kind))
	appendUvarint(buf, uint64(e.ThreadID))
	appendUvarint(buf, deltaTS)
	appendUvarint(buf, uint64(e.FileID))
	appendUvarint(buf, uint64(e.Line))
	appendUvarint(buf, uint64(len(payload)))
	buf.Write(payload)
	return nil
}

// decodeRecord reads one record from r, resolving its timestamp against
// baseTS. Returns io.EOF when r runs out before a field starts (callers
// read exactly recordCount records per chunk, so EOF here always indicates
// a malformed chunk).
func decodeRecord(r *bytes.Reader, baseTS int64) (types.Event, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return types.Event{}, err
	}
	threadID, err := readUvarint(r)
	if err != nil {
		return types.Event{}, err
	}
	deltaTS, err := readUvarint(r)
	if err != nil {
		return types.Event{}, err
	}
	fileID, err := readUvarint(r)
	if err != nil {
		return types.Event{}, err
	}
	line, err := readUvarint(r)
	if err != nil {
		return types.Event{}, err
	}
	payloadLen, err := readUvarint(r)
	if err != nil {
		return types.Event{}, err
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return types.Event{}, fmt.Errorf("container: truncated payload: %w", err)
	}

	kind := types.Kind(kindByte)
	p, err := decodePayload(kind, payload)
	if err != nil {
		return types.Event{}, err
	}

	return types.Event{
		Kind:      kind,
		Timestamp: baseTS + int64(deltaTS),
		ThreadID:  types.ThreadID(threadID),
		FileID:    types.FileID(fileID),
		Line:      uint32(line),
		Payload:   p,
	}, nil
}

func appendUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readUvarint(r io.ByteReader) (uint64, error) {
	return binary.ReadUvarint(r)
}
