// Package session implements the Session Controller (§4.1): the top-level
// entry point that wires the Source & Filter Policy, Event Dispatcher,
// Frame Tracker, Variable Observer, and Container Writer into a single
// tracing session. Exactly one session may be active process-wide.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/tracewell-dev/tracewell/internal/container"
	"github.com/tracewell-dev/tracewell/internal/dispatch"
	"github.com/tracewell-dev/tracewell/internal/frame"
	"github.com/tracewell-dev/tracewell/internal/metrics"
	"github.com/tracewell-dev/tracewell/internal/observe"
	"github.com/tracewell-dev/tracewell/internal/targeting"
	"github.com/tracewell-dev/tracewell/internal/tlog"
	"github.com/tracewell-dev/tracewell/internal/types"
)

// ErrAlreadyActive is returned by Start when a session is already running
// in this process (§4.1: "exactly one session may be active process-wide").
var ErrAlreadyActive = errors.New("session: a tracing session is already active")

// ErrNotActive reports that no tracing session is running. No Controller
// method returns it: Stop on a stopped Controller returns its first result,
// and AddManualTarget has no return value.
var ErrNotActive = errors.New("session: no tracing session is active")

// eventQueueDepth bounds the MPSC queue between per-thread callers and the
// single writer goroutine (§4.1).
const eventQueueDepth = 4096

// backpressureSendTimeout is how long a producer waits for the writer
// goroutine to accept an event before the session degrades into lossy
// mode (§4.1).
const backpressureSendTimeout = time.Millisecond

// Options configures a session.
type Options struct {
	Policy        types.TargetingPolicy
	OutputPath    string
	ObserverCfg   observe.Config
	Logger        *tlog.Logger
	DiagnosticSink func(err error)
}

var active atomic.Bool

// Controller is the Session Controller. Construct one with Start.
type Controller struct {
	opts Options

	classifier *targeting.Classifier
	dispatcher *dispatch.Dispatcher
	tracker    *frame.Tracker
	observer   *observe.Observer
	fm         *container.FileManager
	writer     *container.Writer
	metrics    *metrics.Collector
	log        *tlog.Logger

	events chan types.Event
	wg     sync.WaitGroup

	lossyMu sync.Mutex
	lossy   bool

	diagMu   sync.Mutex
	diagErrs []error

	stopOnce sync.Once
	stopErr  error
	startedAt time.Time

	flushTicker *time.Ticker
	stopTicker  chan struct{}
}

// Start constructs and starts a new session. Only one session may be
// active at a time process-wide; a second call returns ErrAlreadyActive.
func Start(opts Options) (*Controller, error) {
	if !active.CompareAndSwap(false, true) {
		return nil, ErrAlreadyActive
	}

	classifier, err := targeting.New(opts.Policy)
	if err != nil {
		active.Store(false)
		return nil, fmt.Errorf("session: %w", err)
	}

	sessionID := newSessionID()
	if opts.Logger == nil {
		opts.Logger = tlog.New(sessionID)
	}

	mc := metrics.New(sessionID)
	fm := container.NewFileManager(opts.Policy.SourceBaseDir)

	w, err := container.Create(opts.OutputPath, fm, mc)
	if err != nil {
		active.Store(false)
		return nil, err
	}

	c := &Controller{
		opts:        opts,
		classifier:  classifier,
		dispatcher:  dispatch.New(classifier),
		tracker:     frame.New(),
		observer:    observe.New(opts.ObserverCfg),
		fm:          fm,
		writer:      w,
		metrics:     mc,
		log:         opts.Logger,
		events:      make(chan types.Event, eventQueueDepth),
		startedAt:   time.Now(),
		stopTicker:  make(chan struct{}),
	}

	c.flushTicker = time.NewTicker(container.FlushInterval)
	c.wg.Add(1)
	go c.writeLoop()

	c.log.Info("session started", map[string]any{"session_id": sessionID, "output": opts.OutputPath})
	return c, nil
}

// newSessionID mints a session identifier, grounded on the teacher's use of
// google/uuid for run/session identifiers.
func newSessionID() string {
	return uuid.New().String()
}

// Classifier exposes the constructed Source & Filter Policy, mainly so the
// cabi embedding layer can resolve targeting decisions without round-
// tripping through the Controller for read-only queries.
func (c *Controller) Classifier() *targeting.Classifier { return c.classifier }

// Dispatcher exposes the Event Dispatcher fast path for the callback layer.
func (c *Controller) Dispatcher() *dispatch.Dispatcher { return c.dispatcher }

// Tracker exposes the Frame Tracker for the callback layer.
func (c *Controller) Tracker() *frame.Tracker { return c.tracker }

// Observer exposes the Variable Observer for the callback layer.
func (c *Controller) Observer() *observe.Observer { return c.observer }

// FileManager exposes the File Manager so the callback layer can resolve
// FileIDs before constructing events.
func (c *Controller) FileManager() *container.FileManager { return c.fm }

// Metrics returns a point-in-time snapshot of session counters.
func (c *Controller) Metrics() metrics.Snapshot { return c.metrics.Snapshot() }

// Emit enqueues a fully-constructed event for persistence, applying the
// §4.1 backpressure policy: a 1ms bounded wait, after which LINE/OPCODE/
// YIELD/RESUME events are dropped (degrading the session into lossy mode)
// while CALL/RETURN/EXCEPTION always block until accepted, preserving the
// container's logical-frame balance invariant.
func (c *Controller) Emit(e types.Event) {
	c.metrics.IncEventsObserved()

	if isStructural(e.Kind) {
		c.events <- e
		return
	}

	timer := time.NewTimer(backpressureSendTimeout)
	defer timer.Stop()
	select {
	case c.events <- e:
	case <-timer.C:
		c.enterLossyMode()
		c.metrics.IncBackpressureDrops()
	}
}

func isStructural(k types.Kind) bool {
	switch k {
	case types.KindCall, types.KindReturn, types.KindException:
		return true
	default:
		return false
	}
}

func (c *Controller) enterLossyMode() {
	c.lossyMu.Lock()
	defer c.lossyMu.Unlock()
	if c.lossy {
		return
	}
	c.lossy = true
	c.writer.MarkLossy()
	c.log.Warn("session entered lossy mode; dropping non-structural events under backpressure", nil)
}

// IsLossy reports whether the session has degraded into lossy mode.
func (c *Controller) IsLossy() bool {
	c.lossyMu.Lock()
	defer c.lossyMu.Unlock()
	return c.lossy
}

// writeLoop is the single writer goroutine: the sole caller of
// container.Writer, draining the MPSC event channel in arrival order.
func (c *Controller) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case e, ok := <-c.events:
			if !ok {
				return
			}
			if err := c.writer.Append(e); err != nil {
				c.reportDiagnostic(fmt.Errorf("session: append event: %w", err))
			}
		case <-c.flushTicker.C:
			if c.writer.ShouldTimeFlush() {
				if err := c.writer.Flush(); err != nil {
					c.reportDiagnostic(fmt.Errorf("session: time-based flush: %w", err))
				}
			}
		case <-c.stopTicker:
			c.drainRemaining()
			return
		}
	}
}

// drainRemaining flushes every event already queued before the writer loop
// exits, so Stop never silently loses buffered events.
func (c *Controller) drainRemaining() {
	for {
		select {
		case e, ok := <-c.events:
			if !ok {
				return
			}
			if err := c.writer.Append(e); err != nil {
				c.reportDiagnostic(fmt.Errorf("session: append event: %w", err))
			}
		default:
			return
		}
	}
}

// reportDiagnostic logs err and forwards it to the caller's diagnostic
// sink (§4.1: "errors raised by user callbacks... logged to a diagnostic
// sink, and never propagated to the traced program"). It also accumulates
// the error so Stop can fold it into the value it returns, alongside the
// final flush and container-close errors (go.uber.org/multierr), rather
// than only ever surfacing the last-seen failure.
func (c *Controller) reportDiagnostic(err error) {
	c.log.Error(err.Error(), nil)
	if c.opts.DiagnosticSink != nil {
		c.opts.DiagnosticSink(err)
	}
	c.diagMu.Lock()
	c.diagErrs = append(c.diagErrs, err)
	c.diagMu.Unlock()
}

// Stop ends the session: emits a synthetic RETURN for every still-open
// logical frame on every thread (§4.1, §4.3), stops the writer goroutine,
// flushes any pending chunk, and writes the footer. Safe to call multiple
// times; only the first call does work.
func (c *Controller) Stop() error {
	c.stopOnce.Do(func() {
		defer active.Store(false)

		for tid, frames := range c.tracker.DrainAll() {
			for _, lf := range frames {
				c.metrics.IncSyntheticUnwinds()
				c.Emit(types.Event{
					Kind:      types.KindReturn,
					Timestamp: time.Now().UnixNano(),
					ThreadID:  tid,
					FileID:    lf.FileID,
					Line:      lf.FirstLine,
					Payload:   types.ReturnPayload{Unwound: true},
				})
			}
		}

		close(c.stopTicker)
		c.wg.Wait()
		c.flushTicker.Stop()
		close(c.events)

		outcome := types.OutcomeClean
		if c.IsLossy() {
			outcome = types.OutcomeLossyDegraded
		}
		snap := c.metrics.Snapshot()
		meta := types.SessionMeta{
			SessionID:         snap.SessionID,
			StartedAt:         c.startedAt,
			StoppedAt:         time.Now(),
			PolicySummary:     c.classifier.Summary(),
			EncoderVersion:    types.FormatVersion,
			Outcome:           outcome,
			BackpressureDrops: snap.BackpressureDrops,
			EncodeDrops:       snap.EncodeDrops,
			ObserverSkips:     snap.ObserverSkips,
		}

		closeErr := c.writer.Close(meta)
		if closeErr != nil {
			closeErr = fmt.Errorf("session: close container: %w", closeErr)
			c.log.Error(closeErr.Error(), nil)
		}

		c.diagMu.Lock()
		flushErrs := c.diagErrs
		c.diagMu.Unlock()

		c.stopErr = multierr.Combine(append(append([]error{}, flushErrs...), closeErr)...)
		if c.stopErr == nil {
			c.log.Info("session stopped", map[string]any{"session_id": snap.SessionID, "outcome": outcome.String()})
		}
	})
	return c.stopErr
}

// AddManualTarget forces a frame into traced state, bypassing the Source &
// Filter Policy for the remainder of its lifetime (§4.6: manual targets
// override glob/exclude decisions). Used by embedding layers that let a
// user attach the tracer to a frame already in progress.
func (c *Controller) AddManualTarget(handle types.FrameHandle) {
	c.dispatcher.ForceTarget(handle)
}
