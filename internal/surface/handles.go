package surface

import (
	"sort"
	"sync"
	"time"

	"github.com/dpup/trailglobe/server/internal/lib/geo"
)

// LayerKind distinguishes the layer types a handle can own
type LayerKind int

const (
	LineLayerKind LayerKind = iota
	MarkerLayerKind
)

// Handle is the owned record of a layer living on the surface
type Handle struct {
	ID      string
	Kind    LayerKind
	Version int
	Created time.Time
	Updated time.Time
}

// Handles owns every layer the core has created on a surface. Layers are created on
// first draw, updated on later draws and cleared from the surface on dispose.
type Handles struct {
	surface Surface
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*Handle
}

// NewHandles creates an empty handle table for s
func NewHandles(s Surface) *Handles {
	return &Handles{surface: s, now: time.Now, entries: make(map[string]*Handle)}
}

func (h *Handles) touch(id string, kind LayerKind) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	entry, ok := h.entries[id]
	if !ok || entry.Kind != kind {
		h.entries[id] = &Handle{ID: id, Kind: kind, Version: 1, Created: now, Updated: now}
		return
	}
	entry.Version++
	entry.Updated = now
}

// Line creates or updates a line layer
func (h *Handles) Line(id string, coords []geo.Coordinate) {
	if len(coords) == 0 {
		h.Dispose(id)
		return
	}
	h.touch(id, LineLayerKind)
	h.surface.SetLineGeometry(id, coords)
}

// Markers creates or updates a marker layer
func (h *Handles) Markers(id string, markers []Marker) {
	if len(markers) == 0 {
		h.Dispose(id)
		return
	}
	h.touch(id, MarkerLayerKind)
	h.surface.SetMarkerSet(id, markers)
}

// Dispose clears a layer from the surface and forgets it. Returns false if the
// layer was not owned.
func (h *Handles) Dispose(id string) bool {
	h.mu.Lock()
	entry, ok := h.entries[id]
	if ok {
		delete(h.entries, id)
	}
	h.mu.Unlock()

	if !ok {
		return false
	}
	switch entry.Kind {
	case LineLayerKind:
		h.surface.SetLineGeometry(id, nil)
	case MarkerLayerKind:
		h.surface.SetMarkerSet(id, nil)
	}
	return true
}

// DisposeAll clears every owned layer
func (h *Handles) DisposeAll() {
	for _, id := range h.IDs() {
		h.Dispose(id)
	}
}

// Lookup returns a copy of the handle for id
func (h *Handles) Lookup(id string) (Handle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.entries[id]
	if !ok {
		return Handle{}, false
	}
	return *entry, true
}

// IDs returns the owned layer ids in sorted order
func (h *Handles) IDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.entries))
	for id := range h.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Surface returns the surface the handles draw on
func (h *Handles) Surface() Surface { return h.surface }
