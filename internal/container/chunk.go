package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/tracewell-dev/tracewell/internal/types"
)

// Flush policy thresholds (§4.5). A chunk is sealed when it reaches any one
// of these limits, or on an explicit flush at session stop.
const (
	MaxChunkPlaintextBytes = 256 * 1024
	MaxChunkRecords        = 10000
)

// MaxFlushIntervalMillis is the time-based flush trigger (§4.5), in
// milliseconds. FlushInterval in writer.go is the same value as a
// time.Duration.
const MaxFlushIntervalMillis = 500

// chunkBuilder accumulates encoded records for a single chunk before it is
// sealed. Not safe for concurrent use; the writer serializes all appends.
type chunkBuilder struct {
	baseTS      int64
	recordCount int
	body        bytes.Buffer // encoded records only
}

func newChunkBuilder(baseTS int64) *chunkBuilder {
	return &chunkBuilder{baseTS: baseTS}
}

// append encodes one event into the chunk body. Returns the chunk's
// plaintext size if sealed right now, for the caller's flush-policy check.
func (c *chunkBuilder) append(e types.Event) (int, error) {
	deltaTS := uint64(e.Timestamp - c.baseTS)
	if err := encodeRecord(&c.body, e, deltaTS); err != nil {
		return 0, err
	}
	c.recordCount++
	return c.plaintextLen(), nil
}

// plaintextLen reports the exact size plaintext() would return.
func (c *chunkBuilder) plaintextLen() int {
	var countBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(countBuf[:], uint64(c.recordCount))
	return 8 + n + c.body.Len()
}

func (c *chunkBuilder) empty() bool { return c.recordCount == 0 }

// plaintext renders the full sealed-chunk plaintext: base_ts_ns:u64 |
// record_count:varint | records.
func (c *chunkBuilder) plaintext() []byte {
	var out bytes.Buffer
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(c.baseTS))
	out.Write(tsBuf[:])
	appendUvarint(&out, uint64(c.recordCount))
	out.Write(c.body.Bytes())
	return out.Bytes()
}

// sealChunk encrypts plaintext with the given AEAD key and nonce, and
// writes the on-disk chunk layout: chunk_len:u32 | nonce:12B |
// ciphertext:(chunk_len) | tag:16B.
func sealChunk(w io.Writer, key []byte, nonce [chacha20poly1305.NonceSize]byte, plaintext []byte) error {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return fmt.Errorf("container: init aead: %w", err)
	}
	sealed := aead.Seal(nil, nonce[:], plaintext, nil)
	ciphertext := sealed[:len(sealed)-aead.Overhead()]
	tag := sealed[len(sealed)-aead.Overhead():]

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(ciphertext)))

	var frame bytes.Buffer
	frame.Write(lenBuf[:])
	frame.Write(nonce[:])
	frame.Write(ciphertext)
	frame.Write(tag)
	_, err = w.Write(frame.Bytes())
	return err
}

// openChunk reads and decrypts one chunk from r, returning its plaintext.
// Returns io.EOF if r is at a clean end-of-stream.
func openChunk(r io.Reader, key []byte) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	chunkLen := binary.BigEndian.Uint32(lenBuf[:])

	var nonce [chacha20poly1305.NonceSize]byte
	if _, err := io.ReadFull(r, nonce[:]); err != nil {
		return nil, fmt.Errorf("container: truncated chunk (nonce): %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("container: init aead: %w", err)
	}

	sealed := make([]byte, int(chunkLen)+aead.Overhead())
	if _, err := io.ReadFull(r, sealed); err != nil {
		return nil, fmt.Errorf("container: truncated chunk (body): %w", err)
	}

	plaintext, err := aead.Open(nil, nonce[:], sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	return plaintext, nil
}

// decodeChunkRecords splits a chunk's plaintext back into events.
func decodeChunkRecords(plaintext []byte) ([]types.Event, error) {
	r := bytes.NewReader(plaintext)
	var tsBuf [8]byte
	if _, err := io.ReadFull(r, tsBuf[:]); err != nil {
		return nil, fmt.Errorf("container: truncated chunk header: %w", err)
	}
	baseTS := int64(binary.BigEndian.Uint64(tsBuf[:]))

	count, err := readUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("container: truncated record count: %w", err)
	}

	events := make([]types.Event, 0, count)
	for i := uint64(0); i < count; i++ {
		e, err := decodeRecord(r, baseTS)
		if err != nil {
			return nil, fmt.Errorf("container: decode record %d/%d: %w", i, count, err)
		}
		events = append(events, e)
	}
	return events, nil
}
