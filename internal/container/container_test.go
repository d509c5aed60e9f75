package container

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tracewell-dev/tracewell/internal/metrics"
	"github.com/tracewell-dev/tracewell/internal/types"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.trcebin")

	src := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(src, []byte("def f():\n    return 1\n"), 0o644))

	fm := NewFileManager(dir)
	mc := metrics.New("sess-1")

	w, err := Create(path, fm, mc)
	require.NoError(t, err)

	fileID, err := fm.IDFor(src)
	require.NoError(t, err)

	base := time.Now().UnixNano()
	events := []types.Event{
		{Kind: types.KindCall, Timestamp: base, ThreadID: 1, FileID: fileID, Line: 1, Payload: types.CallPayload{QualifiedName: "f", FirstLine: 1}},
		{Kind: types.KindLine, Timestamp: base + 100, ThreadID: 1, FileID: fileID, Line: 2, Payload: types.LinePayload{Stores: []types.Store{{Kind: types.StoreLocal, Name: "x", ValueRepr: "1"}}}},
		{Kind: types.KindReturn, Timestamp: base + 200, ThreadID: 1, FileID: fileID, Line: 2, Payload: types.ReturnPayload{ValueRepr: "1"}},
	}
	for _, e := range events {
		require.NoError(t, w.Append(e))
	}

	meta := types.SessionMeta{
		SessionID: "sess-1",
		StartedAt: time.Unix(0, base).UTC(),
		StoppedAt: time.Unix(0, base+200).UTC(),
		Outcome:   types.OutcomeClean,
	}
	require.NoError(t, w.Close(meta))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	var got []types.Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, e)
	}
	require.Len(t, got, 3)
	require.Equal(t, types.KindCall, got[0].Kind)
	require.Equal(t, types.KindLine, got[1].Kind)
	require.Equal(t, types.KindReturn, got[2].Kind)

	callPayload, ok := got[0].Payload.(types.CallPayload)
	require.True(t, ok)
	require.Equal(t, "f", callPayload.QualifiedName)

	linePayload, ok := got[1].Payload.(types.LinePayload)
	require.True(t, ok)
	require.Len(t, linePayload.Stores, 1)
	require.Equal(t, "x", linePayload.Stores[0].Name)

	files := r.Files()
	require.Len(t, files, 1)
	require.Equal(t, src, files[0].Path)
	require.NotEmpty(t, files[0].Content)

	gotMeta := r.SessionMeta()
	require.Equal(t, "sess-1", gotMeta.SessionID)
	require.Equal(t, types.OutcomeClean, gotMeta.Outcome)
}

func TestWriterFlushesOnRecordCountThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.trcebin")

	fm := NewFileManager(dir)
	mc := metrics.New("sess-2")
	w, err := Create(path, fm, mc)
	require.NoError(t, err)

	base := time.Now().UnixNano()
	for i := 0; i < MaxChunkRecords+1; i++ {
		e := types.Event{Kind: types.KindLine, Timestamp: base + int64(i), ThreadID: 1, FileID: 1, Line: uint32(i), Payload: types.LinePayload{}}
		require.NoError(t, w.Append(e))
	}
	require.Equal(t, int64(1), mc.Snapshot().ChunksSealed)

	require.NoError(t, w.Close(types.SessionMeta{SessionID: "sess-2", Outcome: types.OutcomeClean}))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	count := 0
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		count++
	}
	require.Equal(t, MaxChunkRecords+1, count)
}

func TestHeaderRejectsCorruptMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.trcebin")

	fm := NewFileManager(dir)
	w, err := Create(path, fm, metrics.New("sess-3"))
	require.NoError(t, err)
	require.NoError(t, w.Close(types.SessionMeta{SessionID: "sess-3"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] = 'X'
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Open(path)
	require.ErrorIs(t, err, ErrCorruptHeader)
}
