// Package main provides the tracewell-report CLI entrypoint: it opens a
// sealed container written by a tracing session and produces the
// post-mortem HTML report plus a terminal completion summary (§4.7).
//
// Usage:
//
//	tracewell-report <container-path> [options]
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tracewell-dev/tracewell/report"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "tracewell-report",
		Usage:          "Render an HTML report and summary from a tracewell container",
		Version:        fmt.Sprintf("0.1.0 (commit: %s)", commit),
		ArgsUsage:      "<container-path>",
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output directory for the report", Value: "."},
			&cli.StringFlag{Name: "report-name", Usage: "base name for the HTML report file (no extension)", Value: "report"},
			&cli.BoolFlag{Name: "disable-html", Usage: "skip the HTML document, print only the terminal summary"},
		},
		Action: runAction,
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func runAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("container path required", 1)
	}
	containerPath := c.Args().First()

	opts := report.Options{
		DisableHTML: c.Bool("disable-html"),
		ReportName:  c.String("report-name"),
	}

	if err := report.Build(containerPath, c.String("out"), opts, os.Stdout); err != nil {
		return cli.Exit(fmt.Sprintf("tracewell-report: %v", err), 1)
	}
	return nil
}

// exitErrHandler preserves cli.Exit's exit codes, printing the message of
// a non-empty cli.Exit error before exiting with its code.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
