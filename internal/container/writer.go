package container

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tracewell-dev/tracewell/internal/metrics"
	"github.com/tracewell-dev/tracewell/internal/types"
)

// FlushInterval is the time-based chunk flush trigger (§4.5).
const FlushInterval = MaxFlushIntervalMillis * time.Millisecond

// Writer is the Event Encoder & Container Writer (§4.5): it serializes
// events into chunks, seals each chunk with AEAD as it crosses a flush
// threshold, and writes the File Manager table and session metadata into
// a footer at Close. A Writer is single-writer: the Session Controller's
// writer goroutine is the only caller.
type Writer struct {
	mu sync.Mutex

	f       *os.File
	bw      *bufio.Writer
	keyPath string

	chunkKey []byte
	nonces   nonceSequence

	builder   *chunkBuilder
	lastFlush time.Time

	fm    *FileManager
	flags uint16

	metrics *metrics.Collector

	closed bool
}

// Create opens path for writing, generates a fresh session key and header
// salt, writes the 64-byte header, and writes the session key to path+".key"
// with 0600 permissions (§4.5: the key never appears inside the container
// itself). fm is the shared File Manager the session uses to snapshot
// source files referenced by events.
func Create(path string, fm *FileManager, mc *metrics.Collector) (*Writer, error) {
	sessionKey, err := generateSessionKey()
	if err != nil {
		return nil, err
	}

	var salt [16]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return nil, fmt.Errorf("container: generate header salt: %w", err)
	}

	chunkKey, err := deriveChunkKey(sessionKey, salt)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, wrapWriterIO("create", path, err)
	}

	keyPath := path + ".key"
	if err := os.WriteFile(keyPath, sessionKey, 0o600); err != nil {
		f.Close()
		return nil, wrapWriterIO("write key side-channel", keyPath, err)
	}

	header := types.Header{
		Version: types.FormatVersion,
		KeyID:   KeyIDChaCha20Poly1305HKDFSHA256,
		KDFSalt: salt,
	}
	bw := bufio.NewWriter(f)
	if _, err := bw.Write(encodeHeader(header)); err != nil {
		f.Close()
		return nil, wrapWriterIO("write header", path, err)
	}

	return &Writer{
		f:         f,
		bw:        bw,
		keyPath:   keyPath,
		chunkKey:  chunkKey,
		builder:   nil,
		lastFlush: time.Time{},
		fm:        fm,
		metrics:   mc,
	}, nil
}

// MarkLossy sets the header's lossy flag. The flag is held in memory and
// written into the on-disk header when Close runs.
func (w *Writer) MarkLossy() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flags |= types.FlagLossy
}

// Append encodes e into the current chunk, then seals the chunk if it has
// reached one of the flush-policy thresholds (§4.5: 256KiB plaintext or
// 10,000 records). The time-based 500ms threshold is
// enforced by the caller invoking Flush on its own ticker; Append only
// checks the size/count thresholds so it never blocks on a timer.
func (w *Writer) Append(e types.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("container: append after close")
	}

	if w.builder == nil {
		w.builder = newChunkBuilder(e.Timestamp)
	}

	size, err := w.builder.append(e)
	if err != nil {
		return fmt.Errorf("container: encode record: %w", err)
	}
	w.metrics.IncEventsEncoded()

	if size >= MaxChunkPlaintextBytes || w.builder.recordCount >= MaxChunkRecords {
		return w.sealLocked()
	}
	return nil
}

// Flush seals the current chunk if it is non-empty. Called by the Session
// Controller on its 500ms ticker and on explicit flush requests.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.builder == nil || w.builder.empty() {
		return nil
	}
	return w.sealLocked()
}

// sealLocked seals the current chunk and resets the builder. Caller holds w.mu.
func (w *Writer) sealLocked() error {
	plaintext := w.builder.plaintext()
	nonce := w.nonces.next()
	if err := sealChunk(w.bw, w.chunkKey, nonce, plaintext); err != nil {
		w.metrics.IncWriterIOErrors()
		return wrapWriterIO("seal chunk", w.f.Name(), err)
	}
	w.metrics.IncChunksSealed()
	w.builder = nil
	w.lastFlush = time.Now()
	return nil
}

// ShouldTimeFlush reports whether FlushInterval has elapsed since the last
// sealed chunk and there is unsealed data waiting. The Session Controller's
// ticker calls this to decide whether to invoke Flush.
func (w *Writer) ShouldTimeFlush() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.builder == nil || w.builder.empty() {
		return false
	}
	return time.Since(w.lastFlush) >= FlushInterval
}

// Close flushes any pending chunk, writes the File Manager table and
// session metadata footer, writes the trailer, rewrites the header's flag
// bits, and closes the underlying file.
func (w *Writer) Close(meta types.SessionMeta) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if w.builder != nil && !w.builder.empty() {
		if err := w.sealLocked(); err != nil {
			w.bw.Flush()
			w.f.Close()
			return err
		}
	}

	footerOffset, err := w.currentOffsetLocked()
	if err != nil {
		w.bw.Flush()
		w.f.Close()
		return err
	}

	body, err := encodeFooterBody(w.fm.Entries(), meta)
	if err != nil {
		w.bw.Flush()
		w.f.Close()
		return fmt.Errorf("container: encode footer: %w", err)
	}
	if _, err := w.bw.Write(body); err != nil {
		w.bw.Flush()
		w.f.Close()
		return wrapWriterIO("write footer", w.f.Name(), err)
	}
	if err := writeTrailer(w.bw, footerOffset); err != nil {
		w.bw.Flush()
		w.f.Close()
		return wrapWriterIO("write trailer", w.f.Name(), err)
	}

	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return wrapWriterIO("flush", w.f.Name(), err)
	}

	if err := w.rewriteHeaderFlagsLocked(); err != nil {
		w.f.Close()
		return err
	}

	return wrapWriterIO("close", w.f.Name(), w.f.Close())
}

func (w *Writer) currentOffsetLocked() (uint64, error) {
	if err := w.bw.Flush(); err != nil {
		return 0, wrapWriterIO("flush", w.f.Name(), err)
	}
	off, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, wrapWriterIO("seek", w.f.Name(), err)
	}
	return uint64(off), nil
}

func (w *Writer) rewriteHeaderFlagsLocked() error {
	if w.flags == 0 {
		return nil
	}
	header := types.Header{Version: types.FormatVersion, KeyID: KeyIDChaCha20Poly1305HKDFSHA256, Flags: w.flags}
	f, err := os.OpenFile(w.f.Name(), os.O_RDWR, 0o644)
	if err != nil {
		return wrapWriterIO("reopen for flag rewrite", w.f.Name(), err)
	}
	defer f.Close()
	buf := encodeHeader(header)
	// Preserve the salt/key-id bytes that were already on disk; only the
	// flags field and its CRC need to change.
	existing := make([]byte, types.HeaderSize)
	if _, err := f.ReadAt(existing, 0); err != nil {
		return wrapWriterIO("read header for flag rewrite", w.f.Name(), err)
	}
	copy(existing[10:12], buf[10:12])
	recomputeHeaderCRC(existing)
	if _, err := f.WriteAt(existing, 0); err != nil {
		return wrapWriterIO("rewrite header flags", w.f.Name(), err)
	}
	return nil
}
