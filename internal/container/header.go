package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/tracewell-dev/tracewell/internal/types"
)

// headerReservedSize pads the header out to the fixed 64-byte layout (§6):
// magic:8B | version:u16 | flags:u16 | key_id:u16 | kdf_salt:16B |
// reserved:30B | header_crc:u32.
const headerReservedSize = types.HeaderSize - 8 - 2 - 2 - 2 - 16 - 4

func init() {
	if headerReservedSize < 0 {
		panic("container: header layout does not fit types.HeaderSize")
	}
}

// encodeHeader renders h into the fixed 64-byte on-disk header, computing
// its trailing CRC32 over every preceding byte.
func encodeHeader(h types.Header) []byte {
	buf := make([]byte, types.HeaderSize)
	copy(buf[0:8], types.ContainerMagic)
	binary.BigEndian.PutUint16(buf[8:10], h.Version)
	binary.BigEndian.PutUint16(buf[10:12], h.Flags)
	binary.BigEndian.PutUint16(buf[12:14], h.KeyID)
	copy(buf[14:30], h.KDFSalt[:])
	// buf[30 : 30+headerReservedSize] stays zero.
	crc := crc32.ChecksumIEEE(buf[:types.HeaderSize-4])
	binary.BigEndian.PutUint32(buf[types.HeaderSize-4:], crc)
	return buf
}

// recomputeHeaderCRC rewrites the trailing CRC32 of an encoded header
// buffer in place, after the caller has mutated one of its fields.
func recomputeHeaderCRC(buf []byte) {
	crc := crc32.ChecksumIEEE(buf[:types.HeaderSize-4])
	binary.BigEndian.PutUint32(buf[types.HeaderSize-4:], crc)
}

// decodeHeader parses and validates the fixed-size container header,
// returning ErrCorruptHeader on a magic/CRC mismatch or ErrUnsupportedVersion
// on a future format version.
func decodeHeader(r io.Reader) (types.Header, error) {
	buf := make([]byte, types.HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return types.Header{}, fmt.Errorf("%w: %v", ErrCorruptHeader, err)
	}

	if !bytes.Equal(buf[0:8], []byte(types.ContainerMagic)) {
		return types.Header{}, fmt.Errorf("%w: bad magic", ErrCorruptHeader)
	}

	wantCRC := binary.BigEndian.Uint32(buf[types.HeaderSize-4:])
	gotCRC := crc32.ChecksumIEEE(buf[:types.HeaderSize-4])
	if wantCRC != gotCRC {
		return types.Header{}, fmt.Errorf("%w: crc mismatch", ErrCorruptHeader)
	}

	h := types.Header{
		Version: binary.BigEndian.Uint16(buf[8:10]),
		Flags:   binary.BigEndian.Uint16(buf[10:12]),
		KeyID:   binary.BigEndian.Uint16(buf[12:14]),
	}
	copy(h.KDFSalt[:], buf[14:30])

	if h.Version > types.FormatVersion {
		return types.Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return h, nil
}
