package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/tracewell-dev/tracewell/internal/types"
)

// snapshot is an immutable decision-cache state. Readers load the current
// snapshot via an atomic pointer and never block; writers build a new
// snapshot under mu and swap it in. This gives the "lock-free read path
// against an epoch-versioned snapshot acceptable within a single event"
// semantics described in §3.
type snapshot struct {
	paths  map[string]bool
	frames map[types.FrameHandle]bool
}

// decisionCache is the shared Decision Cache (§3): a path->included? map
// and a frame_handle->target? map. Path insertions are monotonic for the
// life of a session. Frame entries are cleared when their frame pops,
// since a frame handle is never live again after its terminal event.
type decisionCache struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

func newDecisionCache() *decisionCache {
	dc := &decisionCache{}
	dc.snap.Store(&snapshot{paths: map[string]bool{}, frames: map[types.FrameHandle]bool{}})
	return dc
}

func (dc *decisionCache) lookupPath(path string) (target, found bool) {
	s := dc.snap.Load()
	target, found = s.paths[path]
	return
}

func (dc *decisionCache) lookupFrame(h types.FrameHandle) (target, found bool) {
	s := dc.snap.Load()
	target, found = s.frames[h]
	return
}

func (dc *decisionCache) setPath(path string, target bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	old := dc.snap.Load()
	if _, ok := old.paths[path]; ok {
		return
	}
	next := &snapshot{paths: copyPaths(old.paths), frames: old.frames}
	next.paths[path] = target
	dc.snap.Store(next)
}

func (dc *decisionCache) setFrame(h types.FrameHandle, target bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	old := dc.snap.Load()
	next := &snapshot{paths: old.paths, frames: copyFrames(old.frames)}
	next.frames[h] = target
	dc.snap.Store(next)
}

func (dc *decisionCache) clearFrame(h types.FrameHandle) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	old := dc.snap.Load()
	if _, ok := old.frames[h]; !ok {
		return
	}
	next := &snapshot{paths: old.paths, frames: copyFrames(old.frames)}
	delete(next.frames, h)
	dc.snap.Store(next)
}

func copyPaths(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyFrames(m map[types.FrameHandle]bool) map[types.FrameHandle]bool {
	out := make(map[types.FrameHandle]bool, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
