package types

// FrameState is the Frame Tracker's state machine per frame (§4.3):
// Active -> (Yielded <-> Active)* -> Returned | Unwound.
type FrameState uint8

const (
	FrameActive FrameState = iota
	FrameYielded
	FrameReturned
	FrameUnwound
)

// LogicalFrame is the tracer's shadow object for a runtime frame. Created on
// CALL, destroyed on terminal RETURN/EXCEPTION. Owned exclusively by the
// thread that created it; no cross-thread mutation ever occurs.
type LogicalFrame struct {
	Handle        FrameHandle
	QualifiedName string
	FileID        FileID
	FirstLine     uint32
	Parent        FrameHandle // zero value means "no parent" (top of stack)
	Depth         int
	CreatedAt     int64 // creation timestamp, wall-clock ns since the Unix epoch
	State         FrameState

	// IsGenerator marks frames tagged by the runtime as generator/coroutine
	// frames; their CALL/RETURN pair brackets the frame's entire lifetime,
	// not each (re)entry (§3).
	IsGenerator bool

	// PendingStores accumulates the current line's store observations
	// until they are flushed into the LinePayload of the frame's next LINE.
	// They are dropped with the frame at RETURN/EXCEPTION; YIELD and RESUME
	// do not clear them.
	PendingStores []Store
	seenNames     map[string]int // name -> index into PendingStores, for in-line dedup
}

// RecordStore appends or overwrites a store observation for the current
// line window. Dedup rule per §4.4: repeated stores to the same name within
// a single LINE collapse into one, keeping only the final value.
func (f *LogicalFrame) RecordStore(s Store) (deduped bool) {
	if f.seenNames == nil {
		f.seenNames = make(map[string]int)
	}
	if idx, ok := f.seenNames[s.Name]; ok {
		f.PendingStores[idx] = s
		return true
	}
	f.seenNames[s.Name] = len(f.PendingStores)
	f.PendingStores = append(f.PendingStores, s)
	return false
}

// DrainStores returns the accumulated stores and resets the per-line window.
func (f *LogicalFrame) DrainStores() []Store {
	stores := f.PendingStores
	f.PendingStores = nil
	f.seenNames = nil
	return stores
}
