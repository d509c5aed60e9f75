// Package metrics provides per-session metrics collection for the tracer.
//
// The Collector accumulates counters during a single session. It is a leaf
// package with no internal dependencies, mirroring the rest of the core's
// layering: everything below the Session Controller can be constructed and
// tested without it.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of session counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Dispatcher
	EventsObserved int64 // events the dispatcher decided were of interest
	EventsFiltered int64 // events discarded by the fast-path classification

	// Frame Tracker
	FramesActive       int64 // CALL events seen
	FramesReturned      int64 // RETURN/EXCEPTION-unwind events seen
	SyntheticUnwinds    int64 // synthetic RETURNs emitted at Stop

	// Variable Observer
	StoresObserved int64
	StoresDeduped  int64
	ObserverSkips  int64 // distinct code objects that disabled opcode observation
	ReprErrors     int64 // value-to-string failures rendered as <repr error: KIND>

	// Encoder & Container Writer
	EventsEncoded     int64
	ChunksSealed      int64
	BackpressureDrops int64 // events dropped while in lossy mode
	WriterIOErrors    int64
	EncodeDrops       int64 // events dropped due to allocation/encode failure

	// Dimensions (informational, set at construction)
	SessionID string
}

// Collector accumulates counters during a single session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe
// so a tracer running with metrics disabled can pass a nil *Collector
// through the hot path without a branch at every call site.
type Collector struct {
	mu sync.Mutex

	eventsObserved int64
	eventsFiltered int64

	framesActive     int64
	framesReturned   int64
	syntheticUnwinds int64

	storesObserved int64
	storesDeduped  int64
	observerSkips  int64
	reprErrors     int64

	eventsEncoded     int64
	chunksSealed      int64
	backpressureDrops int64
	writerIOErrors    int64
	encodeDrops       int64

	sessionID string
}

// New creates a Collector for the given session id.
func New(sessionID string) *Collector {
	return &Collector{sessionID: sessionID}
}

func (c *Collector) IncEventsObserved() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsObserved++
	c.mu.Unlock()
}

func (c *Collector) IncEventsFiltered() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsFiltered++
	c.mu.Unlock()
}

func (c *Collector) IncFramesActive() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesActive++
	c.mu.Unlock()
}

func (c *Collector) IncFramesReturned() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesReturned++
	c.mu.Unlock()
}

func (c *Collector) IncSyntheticUnwinds() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.syntheticUnwinds++
	c.mu.Unlock()
}

func (c *Collector) AddStoresObserved(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.storesObserved += n
	c.mu.Unlock()
}

func (c *Collector) AddStoresDeduped(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.storesDeduped += n
	c.mu.Unlock()
}

func (c *Collector) IncObserverSkips() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.observerSkips++
	c.mu.Unlock()
}

func (c *Collector) IncReprErrors() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.reprErrors++
	c.mu.Unlock()
}

func (c *Collector) IncEventsEncoded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsEncoded++
	c.mu.Unlock()
}

func (c *Collector) IncChunksSealed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksSealed++
	c.mu.Unlock()
}

func (c *Collector) IncBackpressureDrops() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.backpressureDrops++
	c.mu.Unlock()
}

func (c *Collector) IncWriterIOErrors() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.writerIOErrors++
	c.mu.Unlock()
}

func (c *Collector) IncEncodeDrops() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.encodeDrops++
	c.mu.Unlock()
}

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		EventsObserved: c.eventsObserved,
		EventsFiltered: c.eventsFiltered,

		FramesActive:     c.framesActive,
		FramesReturned:   c.framesReturned,
		SyntheticUnwinds: c.syntheticUnwinds,

		StoresObserved: c.storesObserved,
		StoresDeduped:  c.storesDeduped,
		ObserverSkips:  c.observerSkips,
		ReprErrors:     c.reprErrors,

		EventsEncoded:     c.eventsEncoded,
		ChunksSealed:      c.chunksSealed,
		BackpressureDrops: c.backpressureDrops,
		WriterIOErrors:    c.writerIOErrors,
		EncodeDrops:       c.encodeDrops,

		SessionID: c.sessionID,
	}
}
