package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Options configures a report build (§6: disable_html, report_name).
type Options struct {
	// DisableHTML skips writing the HTML document; only the terminal
	// summary is produced.
	DisableHTML bool
	// ReportName overrides the output HTML file's base name (without
	// extension). Defaults to "report".
	ReportName string
}

// Build reads containerPath, reconstructs the call trees, and writes the
// report artifacts into outDir: an HTML document (unless disabled) and a
// terminal completion summary written to summaryOut.
func Build(containerPath, outDir string, opts Options, summaryOut io.Writer) error {
	doc, err := BuildDocument(containerPath)
	if err != nil {
		return fmt.Errorf("report: build document: %w", err)
	}

	var htmlPath string
	if !opts.DisableHTML {
		name := opts.ReportName
		if name == "" {
			name = "report"
		}
		htmlPath = filepath.Join(outDir, name+".html")

		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("report: create output dir: %w", err)
		}
		f, err := os.Create(htmlPath)
		if err != nil {
			return fmt.Errorf("report: create %s: %w", htmlPath, err)
		}
		defer f.Close()

		if err := WriteHTML(f, doc); err != nil {
			return fmt.Errorf("report: render html: %w", err)
		}
	}

	WriteSummary(summaryOut, doc, htmlPath)
	return nil
}
