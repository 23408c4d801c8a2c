// Package registry owns the canonical table of data points known to
// the engine: their values, change counters, listener sets and the
// subscription reference counts that decide what is requested from
// the simulator on the wire.
//
// All mutation goes through a single mutex guarding both the point
// table and the refcount table, so refcount transitions and wire
// index assignment are atomic with respect to concurrent decodes.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

const (
	// DefaultMaxActive bounds the number of simultaneously active
	// subscriptions. The simulator becomes unstable near ~100
	// subscribed values, so the default stays well below that.
	DefaultMaxActive = 80

	// DefaultFrequency is the requested updates/second for points
	// with no configured frequency.
	DefaultFrequency = 1.0

	// InternalPrefix marks paths local to this process. Internal
	// points are never subscribed on the wire; local writers update
	// them directly.
	InternalPrefix = "data:"
)

var (
	// ErrCapacityExceeded is returned when activating one more
	// subscription would exceed the configured maximum. The
	// subscription table is left unchanged.
	ErrCapacityExceeded = errors.New("subscription capacity exceeded")

	// ErrUnknownPath is returned when an operation references a path
	// that was never created.
	ErrUnknownPath = errors.New("unknown data point")

	// ErrUnknownDecrement is returned when decrementing a path with
	// no tracked subscription. The refcount is left at zero rather
	// than going negative.
	ErrUnknownDecrement = errors.New("decrement of untracked path")
)

// Kind is the value representation of a data point.
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	}
	return "unknown"
}

// ListenerFunc is invoked by the event dispatcher when a monitored
// point changes. Listeners are registered by opaque handle and hold
// no reference back into the registry.
type ListenerFunc func(path string, value any)

// IsInternal reports whether path names a process-local point.
func IsInternal(path string) bool {
	return len(path) >= len(InternalPrefix) && path[:len(InternalPrefix)] == InternalPrefix
}

// Internal prepends the internal prefix unless already present.
func Internal(path string) string {
	if IsInternal(path) {
		return path
	}
	return InternalPrefix + path
}

// ActiveSubscription describes one actively subscribed path and the
// wire index assigned to it for the current connection.
type ActiveSubscription struct {
	Path      string
	Index     uint32
	Frequency int
}

// Config customizes a Registry.
type Config struct {
	// MaxActive bounds simultaneously active subscriptions;
	// 0 means DefaultMaxActive.
	MaxActive int

	// Roundings maps paths (or "base[*]" array wildcards) to the
	// number of digits inbound values are quantized to before
	// change detection.
	Roundings map[string]int

	// Frequencies maps paths (or wildcards) to requested
	// updates/second; unlisted paths get DefaultFrequency.
	Frequencies map[string]float64

	Logger *slog.Logger
}

// Registry is the canonical data point and subscription table.
type Registry struct {
	mu sync.RWMutex

	logger    *slog.Logger
	maxActive int

	roundings   map[string]int
	frequencies map[string]float64

	points    map[string]*DataPoint
	refcounts map[string]int

	// Wire index maps, valid for one connection only.
	indexByPath map[string]uint32
	pathByIndex map[uint32]string
	nextIndex   uint32
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = DefaultMaxActive
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{
		logger:      cfg.Logger,
		maxActive:   cfg.MaxActive,
		roundings:   cfg.Roundings,
		frequencies: cfg.Frequencies,
		points:      map[string]*DataPoint{},
		refcounts:   map[string]int{},
		indexByPath: map[string]uint32{},
		pathByIndex: map[uint32]string{},
	}
}

// GetOrCreate returns the data point for path, creating it on first
// reference. It never returns two distinct points for the same path.
func (r *Registry) GetOrCreate(path string, kind Kind) *DataPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(path, kind)
}

func (r *Registry) getOrCreateLocked(path string, kind Kind) *DataPoint {
	if p, ok := r.points[path]; ok {
		return p
	}
	p := newDataPoint(path, kind)
	if d, ok := r.lookupRounding(path); ok {
		p.rounding = &d
	}
	p.frequency = DefaultFrequency
	if f, ok := r.lookupFrequency(path); ok {
		p.frequency = f
	}
	r.points[path] = p
	return p
}

// lookupRounding resolves a rounding rule by exact path, falling
// back to the "base[*]" wildcard for array elements.
func (r *Registry) lookupRounding(path string) (int, bool) {
	if d, ok := r.roundings[path]; ok {
		return d, true
	}
	if base, _, isElem := splitArrayPath(path); isElem {
		d, ok := r.roundings[base+"[*]"]
		return d, ok
	}
	return 0, false
}

func (r *Registry) lookupFrequency(path string) (float64, bool) {
	if f, ok := r.frequencies[path]; ok {
		return f, true
	}
	if base, _, isElem := splitArrayPath(path); isElem {
		f, ok := r.frequencies[base+"[*]"]
		return f, ok
	}
	return 0, false
}

// Get returns the point for path if it exists.
func (r *Registry) Get(path string) (*DataPoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.points[path]
	return p, ok
}

// AddListener registers a change listener for path and returns its
// opaque handle. The point must exist.
func (r *Registry) AddListener(path string, fn ListenerFunc) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.points[path]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	id := uuid.New()
	p.listeners[id] = fn
	return id, nil
}

// RemoveListener drops the listener registered under id, if any.
func (r *Registry) RemoveListener(path string, id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.points[path]; ok {
		delete(p.listeners, id)
	}
}

// Listeners returns a snapshot of the listeners registered for path.
func (r *Registry) Listeners(path string) []ListenerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.points[path]
	if !ok || len(p.listeners) == 0 {
		return nil
	}
	fns := make([]ListenerFunc, 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	return fns
}

// IncrementSubscription bumps the refcount for path. It returns true
// exactly when the count moved 0 to 1, in which case a wire index was
// assigned and the caller must emit a subscribe request.
//
// Internal paths are counted but never activated on the wire.
func (r *Registry) IncrementSubscription(path string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if IsInternal(path) {
		r.refcounts[path]++
		return false, nil
	}

	count := r.refcounts[path]
	if count == 0 {
		if len(r.indexByPath) >= r.maxActive {
			return false, fmt.Errorf("%w: %d active", ErrCapacityExceeded, r.maxActive)
		}
		r.assignIndexLocked(path)
		r.refcounts[path] = 1
		return true, nil
	}
	r.refcounts[path] = count + 1
	return false, nil
}

// DecrementSubscription drops one reference to path. It returns true
// exactly when the count moved 1 to 0, along with the wire index that
// was released so the caller can emit an unsubscribe request.
// Decrementing an untracked path is reported, not applied.
func (r *Registry) DecrementSubscription(path string) (bool, uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := r.refcounts[path]
	if count == 0 {
		r.logger.Warn("decrement of untracked path", "path", path)
		return false, 0, fmt.Errorf("%w: %s", ErrUnknownDecrement, path)
	}
	count--
	if count > 0 {
		r.refcounts[path] = count
		return false, 0, nil
	}
	delete(r.refcounts, path)
	idx, ok := r.indexByPath[path]
	if ok {
		delete(r.indexByPath, path)
		delete(r.pathByIndex, idx)
	}
	return ok, idx, nil
}

// IsMonitored reports whether any consumer currently requests path.
func (r *Registry) IsMonitored(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refcounts[path] > 0
}

// Refcount returns the current subscription count for path.
func (r *Registry) Refcount(path string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refcounts[path]
}

// IndexOf returns the wire index currently assigned to path.
func (r *Registry) IndexOf(path string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.indexByPath[path]
	return idx, ok
}

// PathAt resolves a wire index from a value batch back to its path.
func (r *Registry) PathAt(index uint32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	path, ok := r.pathByIndex[index]
	return path, ok
}

// ResetIndexes discards all wire index assignments and restarts
// numbering at zero. Called on reconnect: indices are only meaningful
// for the lifetime of one connection. Refcounts and listeners are
// untouched.
func (r *Registry) ResetIndexes() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexByPath = map[string]uint32{}
	r.pathByIndex = map[uint32]string{}
	r.nextIndex = 0
}

// Reactivate discards all prior wire index assignments and assigns
// fresh ones, starting at zero, to every path with a live refcount,
// returning them for re-subscription ordered by path so reconnects
// are deterministic. The reset and the reassignment happen under one
// lock so a concurrent subscription cannot observe or leave a stale
// index mapping.
func (r *Registry) Reactivate() []ActiveSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.indexByPath = map[string]uint32{}
	r.pathByIndex = map[uint32]string{}
	r.nextIndex = 0

	paths := make([]string, 0, len(r.refcounts))
	for path, count := range r.refcounts {
		if count > 0 && !IsInternal(path) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	subs := make([]ActiveSubscription, 0, len(paths))
	for _, path := range paths {
		idx := r.assignIndexLocked(path)
		subs = append(subs, ActiveSubscription{
			Path:      path,
			Index:     idx,
			Frequency: r.frequencyHzLocked(path),
		})
	}
	return subs
}

// ActiveSubscriptions returns the current active set without
// modifying it.
func (r *Registry) ActiveSubscriptions() []ActiveSubscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]ActiveSubscription, 0, len(r.indexByPath))
	for path, idx := range r.indexByPath {
		subs = append(subs, ActiveSubscription{
			Path:      path,
			Index:     idx,
			Frequency: r.frequencyHzLocked(path),
		})
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Index < subs[j].Index })
	return subs
}

// FrequencyHz returns the wire request frequency for path, rounded
// to whole updates per second with a minimum of 1.
func (r *Registry) FrequencyHz(path string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frequencyHzLocked(path)
}

func (r *Registry) frequencyHzLocked(path string) int {
	freq := DefaultFrequency
	if p, ok := r.points[path]; ok {
		freq = p.frequency
	}
	hz := int(freq)
	if hz < 1 {
		hz = 1
	}
	return hz
}

func (r *Registry) assignIndexLocked(path string) uint32 {
	idx := r.nextIndex
	r.nextIndex++
	r.indexByPath[path] = idx
	r.pathByIndex[idx] = path
	return idx
}

// ApplyValue applies a raw inbound value to path: quantizes it per
// the point's rounding rule, shifts current to previous, bumps the
// counters and reports whether the rounded value differs from the
// prior rounded value. This is the single authority for change
// detection; no other component compares values. Whether a change
// notifies listeners is decided by the cascade flag of the queue
// event the caller pushes.
//
// The point is created on the fly for unknown paths so side channels
// can introduce new points.
func (r *Registry) ApplyValue(path string, raw any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := KindFloat
	if _, isString := raw.(string); isString {
		kind = KindString
	}
	p := r.getOrCreateLocked(path, kind)
	return p.apply(raw)
}

// Add adds delta to path's numeric value under the table lock,
// creating the point at zero on first use, and returns the new value
// along with whether it changed. Used for the engine's internal
// counters, where read-modify-write from several goroutines must not
// lose increments.
func (r *Registry) Add(path string, delta float64) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.getOrCreateLocked(path, KindFloat)
	current, _ := toFloat64(p.currentValue)
	next := current + delta
	return next, p.apply(next)
}

// Value returns the current value of path, false if the path is
// unknown or never updated.
func (r *Registry) Value(path string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.points[path]
	if !ok || p.currentValue == nil {
		return nil, false
	}
	return p.currentValue, true
}

// Values returns a snapshot of every point with a known value.
func (r *Registry) Values() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	values := make(map[string]any, len(r.points))
	for path, p := range r.points {
		if p.currentValue != nil {
			values[path] = p.currentValue
		}
	}
	return values
}

// Len returns the number of known points.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.points)
}
