// Package targeting implements the Source & Filter Policy (§4.6): a pure
// function classify(path, function, line) -> {trace, skip, conditional},
// constructed once from a types.TargetingPolicy and consulted only on
// Decision Cache misses.
package targeting

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tracewell-dev/tracewell/internal/types"
)

// PolicyError is returned for invalid configuration, reported before a
// session starts.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string { return "invalid targeting policy: " + e.Reason }

// systemPathMarkers are path fragments treated as interpreter-internal or
// package-manager install locations when IgnoreSystemPaths is set.
var systemPathMarkers = []string{
	"/lib/python", "/site-packages/", "/dist-packages/", "/lib64/python",
}

// Classifier is the immutable, constructed-once Source & Filter Policy.
type Classifier struct {
	cfg types.TargetingPolicy
}

// New validates cfg and builds a Classifier. Glob patterns are validated
// eagerly so malformed configuration fails before a session starts (§7
// PolicyError: "invalid configuration, reported before start; fatal").
func New(cfg types.TargetingPolicy) (*Classifier, error) {
	for _, g := range cfg.IncludeGlobs {
		if !doublestar.ValidatePattern(g) {
			return nil, &PolicyError{Reason: fmt.Sprintf("invalid include glob %q", g)}
		}
	}
	for _, g := range cfg.ExcludeGlobs {
		if !doublestar.ValidatePattern(g) {
			return nil, &PolicyError{Reason: fmt.Sprintf("invalid exclude glob %q", g)}
		}
	}
	return &Classifier{cfg: cfg}, nil
}

// Classify is the pure function at the heart of the Source & Filter Policy.
// Calling it twice with the same arguments always returns the same result
// (§8 property 4, policy idempotence) — it consults no cache and mutates
// no state.
func (c *Classifier) Classify(path, functionName string, line uint32) types.Decision {
	if c.cfg.ExcludeFunctions[functionName] {
		return types.DecisionSkip
	}

	rel := c.relativize(path)

	// Explicit exclusion beats inclusion (§4.2 tie-breaks).
	if c.matchesAny(rel, path, c.cfg.ExcludeGlobs) {
		return types.DecisionSkip
	}

	if c.cfg.IgnoreSystemPaths && c.isSystemPath(path) && !c.reincluded(path) {
		return types.DecisionSkip
	}

	if len(c.cfg.IncludeGlobs) > 0 && !c.matchesAny(rel, path, c.cfg.IncludeGlobs) {
		return types.DecisionSkip
	}

	if lr, ok := c.cfg.LineRanges[path]; ok {
		if line == 0 || lr.InRange(line) {
			return types.DecisionConditional
		}
		return types.DecisionSkip
	}

	return types.DecisionTrace
}

func (c *Classifier) relativize(path string) string {
	if c.cfg.SourceBaseDir == "" {
		return path
	}
	if rel, err := filepath.Rel(c.cfg.SourceBaseDir, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

func (c *Classifier) matchesAny(rel, abs string, globs []string) bool {
	for _, g := range globs {
		if doublestar.MatchUnvalidated(g, rel) {
			return true
		}
		if filepath.IsAbs(g) && doublestar.MatchUnvalidated(g, abs) {
			return true
		}
	}
	return false
}

func (c *Classifier) isSystemPath(path string) bool {
	for _, marker := range systemPathMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

func (c *Classifier) reincluded(path string) bool {
	for _, stdlib := range c.cfg.IncludeStdlibs {
		if strings.Contains(path, stdlib) {
			return true
		}
	}
	return false
}

// StartFunction exposes the configured starting-point gate, or nil.
func (c *Classifier) StartFunction() *types.StartPoint {
	return c.cfg.StartFunction
}

// EnableVarTrace reports whether the Variable Observer's opcode path is on.
func (c *Classifier) EnableVarTrace() bool { return c.cfg.EnableVarTrace }

// TraceCCalls reports whether native-function call observation is enabled.
func (c *Classifier) TraceCCalls() bool { return c.cfg.TraceCCalls }

// CaptureVars returns the extra per-line expressions to evaluate.
func (c *Classifier) CaptureVars() []string { return c.cfg.CaptureVars }

// Summary renders a short human-readable description of the policy, used
// in the container footer's session metadata block.
func (c *Classifier) Summary() string {
	return fmt.Sprintf("include=%d exclude=%d ignore_system=%v var_trace=%v",
		len(c.cfg.IncludeGlobs), len(c.cfg.ExcludeGlobs), c.cfg.IgnoreSystemPaths, c.cfg.EnableVarTrace)
}
