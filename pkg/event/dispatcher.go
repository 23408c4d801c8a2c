package event

import (
	"log/slog"
	"sync"

	"github.com/simlink-go/simlink/pkg/registry"
)

// Dispatcher is the queue's single consumer. It drains events in
// enqueue order, globally across all producers, and invokes listener
// callbacks synchronously: one event is fully processed before the
// next begins, so downstream logic observes consistent value
// sequences.
type Dispatcher struct {
	queue  *Queue
	reg    *registry.Registry
	logger *slog.Logger

	// onControl handles reload/stop sentinels; terminate is handled
	// internally.
	onControl func(Control)

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher over queue. onControl may be nil.
func NewDispatcher(queue *Queue, reg *registry.Registry, logger *slog.Logger, onControl func(Control)) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:     queue,
		reg:       reg,
		logger:    logger,
		onControl: onControl,
	}
}

// Start launches the consumer goroutine.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop pushes a terminate sentinel to unblock the consumer and waits
// for it to exit.
func (d *Dispatcher) Stop() {
	d.queue.PushControl(ControlTerminate)
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		e, ok := d.queue.Pop()
		if !ok {
			return
		}
		if e.Control != controlNone {
			if e.Control == ControlTerminate {
				return
			}
			if d.onControl != nil {
				d.onControl(e.Control)
			}
			continue
		}
		if e.Update != nil && e.Update.Cascade {
			d.notify(e.Update)
		}
	}
}

// notify invokes every listener of the updated path, recovering from
// panics so one failing listener cannot stall the queue.
func (d *Dispatcher) notify(u *Update) {
	for _, fn := range d.reg.Listeners(u.Path) {
		d.safeCall(fn, u)
	}
}

func (d *Dispatcher) safeCall(fn registry.ListenerFunc, u *Update) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("listener panicked", "path", u.Path, "panic", r)
		}
	}()
	fn(u.Path, u.Value)
}
