package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"

	"github.com/tracewell-dev/tracewell/internal/types"
)

//go:embed assets/style.css
var embeddedCSS string

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"kindClass":   kindClass,
	"filePath":    filePathLookup,
	"nodeSummary": nodeSummary,
}).Parse(reportTemplateSource))

const reportTemplateSource = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>tracewell report{{with .Doc.Meta.SessionID}} — {{.}}{{end}}</title>
<style>{{.CSS}}</style>
</head>
<body>
<nav>
<a href="#threads">Threads</a>
<a href="#sources">Sources</a>
</nav>
<h1>Execution trace</h1>
<p>session: {{.Doc.Meta.SessionID}} · outcome: {{.Doc.Meta.Outcome}} · started: {{.Doc.Meta.StartedAt}} · stopped: {{.Doc.Meta.StoppedAt}}</p>

<h2 id="threads">Threads</h2>
{{range .Doc.Threads}}
<div class="thread">
<h3>thread {{.ThreadID}}</h3>
{{range .Roots}}{{template "node" .}}{{end}}
</div>
{{end}}

<h2 id="sources">Sources</h2>
{{range .Doc.Files}}
<h3>{{.Path}}</h3>
<div class="source">{{printf "%s" .Content}}</div>
{{end}}

</body>
</html>
{{define "node"}}
<details open>
<summary class="{{kindClass .Kind}}">{{nodeSummary .}}</summary>
{{range .Stores}}<span class="store">{{.Name}} = {{.ValueRepr}}</span>{{end}}
{{range .Children}}{{template "node" .}}{{end}}
</details>
{{end}}
`

func nodeSummary(n *Node) string {
	switch n.Kind.String() {
	case "CALL":
		return fmt.Sprintf("CALL %s(%s) (line %d)", n.QualifiedName, formatArgs(n.Args), n.Line)
	case "RETURN":
		if n.Unwound {
			return fmt.Sprintf("RETURN (unwound, line %d)", n.Line)
		}
		return fmt.Sprintf("RETURN %s (line %d)", n.ValueRepr, n.Line)
	case "EXCEPTION":
		return fmt.Sprintf("EXCEPTION %s: %s (line %d)", n.ExceptionType, n.ExceptionMessage, n.Line)
	case "LINE":
		return fmt.Sprintf("line %d", n.Line)
	case "YIELD":
		return fmt.Sprintf("YIELD %s (line %d)", n.ValueRepr, n.Line)
	case "RESUME":
		return fmt.Sprintf("RESUME (line %d)", n.Line)
	case "TRACE_MARKER":
		return fmt.Sprintf("%s (line %d)", n.Marker, n.Line)
	default:
		return fmt.Sprintf("line %d", n.Line)
	}
}

func formatArgs(args []types.Store) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprintf("%s=%s", a.Name, a.ValueRepr)
	}
	return strings.Join(parts, ", ")
}

func kindClass(k interface{ String() string }) string {
	switch k.String() {
	case "CALL":
		return "call"
	case "RETURN":
		return "ret"
	case "EXCEPTION":
		return "exc"
	case "LINE":
		return "line"
	case "YIELD", "RESUME":
		return "yield"
	case "TRACE_MARKER":
		return "marker"
	default:
		return ""
	}
}

func filePathLookup(doc *Document, id uint32) string {
	for _, f := range doc.Files {
		if uint32(f.FileID) == id {
			return f.Path
		}
	}
	return ""
}

type reportView struct {
	Doc *Document
	CSS template.CSS
}

// WriteHTML renders doc as a single self-contained HTML document (CSS
// inlined, no external asset requests) into w.
func WriteHTML(w io.Writer, doc *Document) error {
	sorted := append([]*ThreadTrace(nil), doc.Threads...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ThreadID < sorted[j].ThreadID })
	view := reportView{Doc: &Document{Threads: sorted, Files: doc.Files, Meta: doc.Meta}, CSS: template.CSS(embeddedCSS)}
	return reportTemplate.Execute(w, view)
}
