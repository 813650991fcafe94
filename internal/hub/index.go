package hub

import "github.com/google/uuid"

// Dimension is one of the keys a session can filter location events on.
type Dimension int

const (
	DimRoute Dimension = iota
	DimVehicle
	DimDriver
	numDimensions
)

func (d Dimension) String() string {
	switch d {
	case DimRoute:
		return "route"
	case DimVehicle:
		return "vehicle"
	case DimDriver:
		return "driver"
	default:
		return "unknown"
	}
}

func (d Dimension) valid() bool { return d >= 0 && d < numDimensions }

// Index maps, per dimension, a key to the set of session ids subscribed to it.
// Index is not safe for concurrent use; Registry serializes access to it.
type Index struct {
	dims [numDimensions]map[uuid.UUID]map[uuid.UUID]struct{}
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	ix := &Index{}
	for i := range ix.dims {
		ix.dims[i] = make(map[uuid.UUID]map[uuid.UUID]struct{})
	}
	return ix
}

// Add subscribes session id to key on dim.
func (ix *Index) Add(dim Dimension, key, id uuid.UUID) {
	set := ix.dims[dim][key]
	if set == nil {
		set = make(map[uuid.UUID]struct{})
		ix.dims[dim][key] = set
	}
	set[id] = struct{}{}
}

// Remove drops session id from key on dim. The key is deleted once its set is
// empty so that subscription churn does not grow the maps.
func (ix *Index) Remove(dim Dimension, key, id uuid.UUID) {
	set := ix.dims[dim][key]
	if set == nil {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(ix.dims[dim], key)
	}
}

// Contains reports whether session id is subscribed to key on dim.
func (ix *Index) Contains(dim Dimension, key, id uuid.UUID) bool {
	_, ok := ix.dims[dim][key][id]
	return ok
}

// Keys returns the number of distinct keys held for dim.
func (ix *Index) Keys(dim Dimension) int { return len(ix.dims[dim]) }

func (ix *Index) each(dim Dimension, key uuid.UUID, fn func(id uuid.UUID)) {
	for id := range ix.dims[dim][key] {
		fn(id)
	}
}
