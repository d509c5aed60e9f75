package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tracewell-dev/tracewell/internal/types"
)

func unixNanoToTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// footerBody is the msgpack-encoded form of the File Manager table plus
// the session metadata block, written once at session stop (§6).
type footerBody struct {
	Files []wireFileEntry  `msgpack:"files"`
	Meta  wireSessionMeta  `msgpack:"meta"`
}

type wireFileEntry struct {
	FileID      uint32 `msgpack:"id"`
	Path        string `msgpack:"path"`
	Content     []byte `msgpack:"content,omitempty"`
	ContentHash []byte `msgpack:"hash,omitempty"`
}

type wireSessionMeta struct {
	SessionID         string `msgpack:"session_id"`
	StartedAtUnixNano int64  `msgpack:"started_at"`
	StoppedAtUnixNano int64  `msgpack:"stopped_at"`
	PolicySummary     string `msgpack:"policy_summary"`
	EncoderVersion    uint16 `msgpack:"encoder_version"`
	Outcome           uint8  `msgpack:"outcome"`
	BackpressureDrops int64  `msgpack:"backpressure_drops"`
	EncodeDrops       int64  `msgpack:"encode_drops"`
	ObserverSkips     int64  `msgpack:"observer_skips"`
}

// encodeFooterBody serializes the File Manager table and session metadata
// into the footer's msgpack payload.
func encodeFooterBody(files []types.FileEntry, meta types.SessionMeta) ([]byte, error) {
	body := footerBody{
		Files: make([]wireFileEntry, len(files)),
		Meta: wireSessionMeta{
			SessionID:         meta.SessionID,
			StartedAtUnixNano: meta.StartedAt.UnixNano(),
			StoppedAtUnixNano: meta.StoppedAt.UnixNano(),
			PolicySummary:     meta.PolicySummary,
			EncoderVersion:    meta.EncoderVersion,
			Outcome:           uint8(meta.Outcome),
			BackpressureDrops: meta.BackpressureDrops,
			EncodeDrops:       meta.EncodeDrops,
			ObserverSkips:     meta.ObserverSkips,
		},
	}
	for i, f := range files {
		body.Files[i] = wireFileEntry{
			FileID:      uint32(f.FileID),
			Path:        f.Path,
			Content:     f.Content,
			ContentHash: f.ContentHash[:],
		}
	}
	return msgpack.Marshal(&body)
}

// decodeFooterBody reverses encodeFooterBody.
func decodeFooterBody(data []byte) ([]types.FileEntry, types.SessionMeta, error) {
	var body footerBody
	if err := msgpack.Unmarshal(data, &body); err != nil {
		return nil, types.SessionMeta{}, fmt.Errorf("%w: %v", ErrCorruptFooter, err)
	}

	files := make([]types.FileEntry, len(body.Files))
	for i, f := range body.Files {
		entry := types.FileEntry{FileID: types.FileID(f.FileID), Path: f.Path, Content: f.Content}
		copy(entry.ContentHash[:], f.ContentHash)
		files[i] = entry
	}

	meta := types.SessionMeta{
		SessionID:         body.Meta.SessionID,
		PolicySummary:     body.Meta.PolicySummary,
		EncoderVersion:    body.Meta.EncoderVersion,
		Outcome:           types.SessionOutcome(body.Meta.Outcome),
		BackpressureDrops: body.Meta.BackpressureDrops,
		EncodeDrops:       body.Meta.EncodeDrops,
		ObserverSkips:     body.Meta.ObserverSkips,
	}
	meta.StartedAt = unixNanoToTime(body.Meta.StartedAtUnixNano)
	meta.StoppedAt = unixNanoToTime(body.Meta.StoppedAtUnixNano)
	return files, meta, nil
}

// writeTrailer writes the fixed 24-byte trailer: footer_offset:u64 |
// magic:16B, where footerOffset is the absolute byte offset at which the
// footer body begins.
func writeTrailer(w io.Writer, footerOffset uint64) error {
	buf := make([]byte, types.TrailerSize)
	binary.BigEndian.PutUint64(buf[0:8], footerOffset)
	copy(buf[8:24], types.FooterMagic)
	_, err := w.Write(buf)
	return err
}

// readTrailer reads the final 24 bytes of a container and returns the
// footer's absolute byte offset.
func readTrailer(r io.ReaderAt, size int64) (uint64, error) {
	if size < types.TrailerSize {
		return 0, fmt.Errorf("%w: file too short for trailer", ErrCorruptFooter)
	}
	buf := make([]byte, types.TrailerSize)
	if _, err := r.ReadAt(buf, size-types.TrailerSize); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptFooter, err)
	}
	if !bytes.Equal(buf[8:24], []byte(types.FooterMagic)) {
		return 0, fmt.Errorf("%w: bad trailer magic", ErrCorruptFooter)
	}
	return binary.BigEndian.Uint64(buf[0:8]), nil
}
