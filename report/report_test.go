package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tracewell-dev/tracewell/internal/container"
	"github.com/tracewell-dev/tracewell/internal/metrics"
	"github.com/tracewell-dev/tracewell/internal/types"
)

func writeFixtureContainer(t *testing.T, path string) {
	t.Helper()
	dir := filepath.Dir(path)
	src := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(src, []byte("def f():\n    x = 1\n    return x\n"), 0o644))

	fm := container.NewFileManager(dir)
	w, err := container.Create(path, fm, metrics.New("sess-report"))
	require.NoError(t, err)

	fileID, err := fm.IDFor(src)
	require.NoError(t, err)

	base := time.Now().UnixNano()
	events := []types.Event{
		{Kind: types.KindCall, Timestamp: base, ThreadID: 1, FileID: fileID, Line: 1, Payload: types.CallPayload{QualifiedName: "f", FirstLine: 1}},
		{Kind: types.KindLine, Timestamp: base + 10, ThreadID: 1, FileID: fileID, Line: 2, Payload: types.LinePayload{Stores: []types.Store{{Kind: types.StoreLocal, Name: "x", ValueRepr: "1"}}}},
		{Kind: types.KindReturn, Timestamp: base + 20, ThreadID: 1, FileID: fileID, Line: 3, Payload: types.ReturnPayload{ValueRepr: "1"}},
	}
	for _, e := range events {
		require.NoError(t, w.Append(e))
	}
	require.NoError(t, w.Close(types.SessionMeta{SessionID: "sess-report", Outcome: types.OutcomeClean}))
}

func TestBuildDocumentReconstructsCallTree(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.trcebin")
	writeFixtureContainer(t, path)

	doc, err := BuildDocument(path)
	require.NoError(t, err)
	require.Len(t, doc.Threads, 1)
	require.Len(t, doc.Threads[0].Roots, 1)

	root := doc.Threads[0].Roots[0]
	require.Equal(t, types.KindCall, root.Kind)
	require.Equal(t, "f", root.QualifiedName)
	require.Equal(t, "1", root.ValueRepr)
	require.Len(t, root.Children, 1)
	require.Equal(t, types.KindLine, root.Children[0].Kind)
	require.Equal(t, "x", root.Children[0].Stores[0].Name)
}

func TestWriteHTMLProducesDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.trcebin")
	writeFixtureContainer(t, path)

	doc, err := BuildDocument(path)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, doc))
	out := buf.String()
	require.Contains(t, out, "<html")
	require.Contains(t, out, "CALL f")
	require.Contains(t, out, "x = 1")
}

func TestBuildWritesHTMLAndSummary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.trcebin")
	writeFixtureContainer(t, path)

	outDir := filepath.Join(dir, "out")
	var summary bytes.Buffer
	require.NoError(t, Build(path, outDir, Options{ReportName: "report"}, &summary))

	htmlBytes, err := os.ReadFile(filepath.Join(outDir, "report.html"))
	require.NoError(t, err)
	require.Contains(t, string(htmlBytes), "<html")
	require.Contains(t, summary.String(), "sess-report")
}
