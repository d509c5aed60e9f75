package types

// LineRange restricts LINE event emission to lines in [Lo, Hi] (inclusive)
// for a given source path.
type LineRange struct {
	Lo uint32
	Hi uint32
}

// InRange reports whether line falls inside the closed range.
func (r LineRange) InRange(line uint32) bool {
	return line >= r.Lo && line <= r.Hi
}

// StartPoint is the optional `file:line` gate below which no events are
// emitted, until a frame matching it is entered (§4.2 tie-breaks: a
// one-shot edge, lifted per-thread for the remainder of the session — see
// the Open Question decisions in DESIGN.md for why per-thread was chosen
// over a global variant).
type StartPoint struct {
	File string
	Line uint32
}

// TargetingPolicy is immutable for the lifetime of a session. It is the
// Source & Filter Policy described in §4.6: a pure function of path,
// function name, and line, constructed once from configuration.
type TargetingPolicy struct {
	IncludeGlobs []string
	ExcludeGlobs []string

	// IgnoreSystemPaths treats interpreter-internal and package-manager
	// install paths as excluded unless explicitly re-included.
	IgnoreSystemPaths bool
	// IncludeStdlibs re-includes specific otherwise-excluded system paths
	// by package/module name.
	IncludeStdlibs []string

	// IgnoreSelf carries the ignore_self option. The classifier does not
	// consult it: the tracer's own code is not filtered out by this flag.
	IgnoreSelf bool

	LineRanges map[string]LineRange // path -> restriction

	ExcludeFunctions map[string]bool

	StartFunction *StartPoint // nil means "no gate"

	TraceCCalls   bool
	EnableVarTrace bool
	CaptureVars   []string // extra per-LINE expressions; carried through, not evaluated

	SourceBaseDir string
}

// Decision is the result of classifying a source location.
type Decision uint8

const (
	DecisionTrace Decision = iota
	DecisionSkip
	DecisionConditional // traced only within a LineRange
)
