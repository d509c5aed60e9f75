// Package config loads a tracewell.yaml configuration file into the
// Targeting Policy and session options surface (§6). Config.Policy maps the
// targeting options onto types.TargetingPolicy fields; target_module is
// parsed but not carried into the policy, and disable_html, report_name and
// output_path stay on Config as session/report options. cmd/tracewell-report
// does not read this file.
package config

import (
	"fmt"

	"github.com/tracewell-dev/tracewell/internal/types"
)

// Config represents a tracewell.yaml configuration file.
type Config struct {
	TargetFiles      []string          `yaml:"target_files"`
	TargetModule     string            `yaml:"target_module"`
	ExcludeFunctions []string          `yaml:"exclude_functions"`
	LineRanges       map[string]Range  `yaml:"line_ranges"`

	IgnoreSystemPaths bool     `yaml:"ignore_system_paths"`
	IncludeStdlibs    []string `yaml:"include_stdlibs"`
	IgnoreSelf        bool     `yaml:"ignore_self"`

	TraceCCalls    bool     `yaml:"trace_c_calls"`
	StartFunction  string   `yaml:"start_function"` // "path.py:line"
	EnableVarTrace bool     `yaml:"enable_var_trace"`
	CaptureVars    []string `yaml:"capture_vars"`

	SourceBaseDir string `yaml:"source_base_dir"`

	DisableHTML bool   `yaml:"disable_html"`
	ReportName  string `yaml:"report_name"`

	OutputPath string `yaml:"output_path"`
}

// Range is the YAML form of types.LineRange.
type Range struct {
	Lo uint32 `yaml:"lo"`
	Hi uint32 `yaml:"hi"`
}

// Policy converts the loaded config into a types.TargetingPolicy, the
// immutable input to the Source & Filter Policy.
func (c *Config) Policy() (types.TargetingPolicy, error) {
	p := types.TargetingPolicy{
		IncludeGlobs:      c.TargetFiles,
		IgnoreSystemPaths: c.IgnoreSystemPaths,
		IncludeStdlibs:    c.IncludeStdlibs,
		IgnoreSelf:        c.IgnoreSelf,
		TraceCCalls:       c.TraceCCalls,
		EnableVarTrace:    c.EnableVarTrace,
		CaptureVars:       c.CaptureVars,
		SourceBaseDir:     c.SourceBaseDir,
	}

	if len(c.ExcludeFunctions) > 0 {
		p.ExcludeFunctions = make(map[string]bool, len(c.ExcludeFunctions))
		for _, fn := range c.ExcludeFunctions {
			p.ExcludeFunctions[fn] = true
		}
	}

	if len(c.LineRanges) > 0 {
		p.LineRanges = make(map[string]types.LineRange, len(c.LineRanges))
		for path, r := range c.LineRanges {
			p.LineRanges[path] = types.LineRange{Lo: r.Lo, Hi: r.Hi}
		}
	}

	if c.StartFunction != "" {
		sp, err := parseStartFunction(c.StartFunction)
		if err != nil {
			return types.TargetingPolicy{}, err
		}
		p.StartFunction = sp
	}

	return p, nil
}

func parseStartFunction(s string) (*types.StartPoint, error) {
	// "path/to/file.py:123"
	idx := lastColon(s)
	if idx < 0 {
		return nil, fmt.Errorf("config: start_function must be \"path:line\", got %q", s)
	}
	path, lineStr := s[:idx], s[idx+1:]
	var line uint32
	if _, err := fmt.Sscanf(lineStr, "%d", &line); err != nil {
		return nil, fmt.Errorf("config: start_function line %q is not a number: %w", lineStr, err)
	}
	return &types.StartPoint{File: path, Line: line}, nil
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}
