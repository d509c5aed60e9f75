package container

import (
	"fmt"
	"io"
	"os"

	"github.com/tracewell-dev/tracewell/internal/types"
)

// Reader streams a sealed container back into events, in chronological
// order, for the Report Builder (§4.7). It holds the whole chunk stream
// open and decrypts chunks one at a time as Next is called.
type Reader struct {
	f      *os.File
	header types.Header
	key    []byte

	footerOffset uint64
	files        []types.FileEntry
	meta         types.SessionMeta

	pending []types.Event
}

// Open reads path's header and footer, derives the chunk key from the
// session key found at path+".key", and returns a Reader positioned at the
// start of the chunk stream.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapWriterIO("open", path, err)
	}

	header, err := decodeHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, wrapWriterIO("stat", path, err)
	}

	footerOffset, err := readTrailer(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}

	footerLen := info.Size() - types.TrailerSize - int64(footerOffset)
	if footerLen < 0 {
		f.Close()
		return nil, fmt.Errorf("%w: negative footer length", ErrCorruptFooter)
	}
	footerBuf := make([]byte, footerLen)
	if _, err := f.ReadAt(footerBuf, int64(footerOffset)); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorruptFooter, err)
	}
	files, meta, err := decodeFooterBody(footerBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	sessionKey, err := os.ReadFile(path + ".key")
	if err != nil {
		f.Close()
		return nil, wrapWriterIO("read key side-channel", path+".key", err)
	}
	chunkKey, err := deriveChunkKey(sessionKey, header.KDFSalt)
	if err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.Seek(types.HeaderSize, io.SeekStart); err != nil {
		f.Close()
		return nil, wrapWriterIO("seek past header", path, err)
	}

	return &Reader{
		f:            f,
		header:       header,
		key:          chunkKey,
		footerOffset: footerOffset,
		files:        files,
		meta:         meta,
	}, nil
}

// Header returns the decoded container header.
func (r *Reader) Header() types.Header { return r.header }

// Files returns the File Manager table captured in the footer.
func (r *Reader) Files() []types.FileEntry { return r.files }

// SessionMeta returns the session metadata block captured in the footer.
func (r *Reader) SessionMeta() types.SessionMeta { return r.meta }

// Next returns the next event in chronological order, decrypting and
// decoding additional chunks as needed. Returns io.EOF once the chunk
// stream is exhausted (at the footer boundary).
func (r *Reader) Next() (types.Event, error) {
	for len(r.pending) == 0 {
		pos, err := r.f.Seek(0, io.SeekCurrent)
		if err != nil {
			return types.Event{}, wrapWriterIO("seek", r.f.Name(), err)
		}
		if uint64(pos) >= r.footerOffset {
			return types.Event{}, io.EOF
		}

		plaintext, err := openChunk(r.f, r.key)
		if err != nil {
			if err == io.EOF {
				return types.Event{}, io.EOF
			}
			return types.Event{}, err
		}
		events, err := decodeChunkRecords(plaintext)
		if err != nil {
			return types.Event{}, err
		}
		r.pending = events
	}

	e := r.pending[0]
	r.pending = r.pending[1:]
	return e, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
