package registry

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DataPoint is one simulator-exposed scalar or short-array element
// mirrored into local memory. Fields are mutated only under the
// owning Registry's lock; accessors take a read lock through the
// registry where needed, while the exported getters here serve
// callers that already hold a stable snapshot.
type DataPoint struct {
	path    string
	base    string
	element int
	isArray bool
	kind    Kind

	rounding  *int
	frequency float64

	currentValue  any
	previousValue any

	updateCount int64
	changeCount int64
	lastUpdated time.Time
	lastChanged time.Time

	listeners map[uuid.UUID]ListenerFunc
}

func newDataPoint(path string, kind Kind) *DataPoint {
	p := &DataPoint{
		path:      path,
		base:      path,
		kind:      kind,
		listeners: map[uuid.UUID]ListenerFunc{},
	}
	if base, elem, ok := splitArrayPath(path); ok {
		p.base = base
		p.element = elem
		p.isArray = true
	}
	return p
}

// splitArrayPath parses an array-element path like "foo/bar[3]" into
// its base path and element index.
func splitArrayPath(path string) (string, int, bool) {
	open := strings.IndexByte(path, '[')
	if open < 0 || !strings.HasSuffix(path, "]") {
		return path, 0, false
	}
	elem, err := strconv.Atoi(path[open+1 : len(path)-1])
	if err != nil {
		return path, 0, false
	}
	return path[:open], elem, true
}

// Path returns the full path, including any array-element suffix.
func (p *DataPoint) Path() string { return p.path }

// BasePath returns the path without the array-element suffix.
func (p *DataPoint) BasePath() string { return p.base }

// Element returns the array element index, 0 for scalars.
func (p *DataPoint) Element() int { return p.element }

// IsArrayElement reports whether the point addresses one slot of a
// simulator-side array.
func (p *DataPoint) IsArrayElement() bool { return p.isArray }

// Kind returns the value representation.
func (p *DataPoint) Kind() Kind { return p.kind }

// IsInternal reports whether the point is process-local.
func (p *DataPoint) IsInternal() bool { return IsInternal(p.path) }

// CurrentValue returns the last applied (rounded) value, nil before
// the first update.
func (p *DataPoint) CurrentValue() any { return p.currentValue }

// PreviousValue returns the value before the last update.
func (p *DataPoint) PreviousValue() any { return p.previousValue }

// UpdateCount returns how many times a value was applied.
func (p *DataPoint) UpdateCount() int64 { return p.updateCount }

// ChangeCount returns how many applied values differed from their
// predecessor.
func (p *DataPoint) ChangeCount() int64 { return p.changeCount }

// Frequency returns the requested updates/second.
func (p *DataPoint) Frequency() float64 { return p.frequency }

// apply quantizes and stores a raw value, returning whether the
// stored value changed. Caller holds the registry lock.
func (p *DataPoint) apply(raw any) bool {
	rounded := p.round(raw)

	p.previousValue = p.currentValue
	p.currentValue = rounded
	p.updateCount++
	p.lastUpdated = time.Now()

	if !p.changed() {
		return false
	}
	p.changeCount++
	p.lastChanged = p.lastUpdated
	return true
}

func (p *DataPoint) changed() bool {
	if p.previousValue == nil && p.currentValue == nil {
		return false
	}
	if p.previousValue == nil || p.currentValue == nil {
		return true
	}
	return p.currentValue != p.previousValue
}

func (p *DataPoint) round(raw any) any {
	if p.rounding == nil {
		return raw
	}
	v, ok := toFloat64(raw)
	if !ok {
		return raw
	}
	shift := math.Pow(10, float64(*p.rounding))
	return math.Round(v*shift) / shift
}

func toFloat64(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
