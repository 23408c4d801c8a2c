package simlink

import (
	"github.com/simlink-go/simlink/pkg/event"
	"github.com/simlink-go/simlink/pkg/registry"
)

// Internal counter points the engine maintains about itself. They
// live in the registry like any other data point, so collaborators
// can subscribe to and render them.
const (
	StartCountPath   = registry.InternalPrefix + "_starts"
	StopCountPath    = registry.InternalPrefix + "_stops"
	ReadCountPath    = registry.InternalPrefix + "_reads"
	ValueCountPath   = registry.InternalPrefix + "_values"
	TimeoutCountPath = registry.InternalPrefix + "_timeouts"
)

// bumpCounter adds delta to an internal counter point, pushing the
// new value through the queue when any consumer monitors it.
func bumpCounter(reg *registry.Registry, q *event.Queue, path string, delta float64) {
	v, changed := reg.Add(path, delta)
	if changed && reg.IsMonitored(path) {
		q.PushUpdate(path, v, true)
	}
}
