/*
Package simlink synchronizes simulator-side values ("data points")
into local memory and carries local commands and writes back, over
the simulator's UDP protocol.

The Engine is the single entry point: it owns the data point
Registry, the ordered event Queue, and a connection supervisor that
discovers the simulator via its multicast beacon, opens the binary
value channel and the JSON text side channel, and rebuilds both when
the peer restarts or the network drops. Collaborators (button and
representation layers) subscribe to paths, register listeners and
send commands through the Engine; they never touch sockets.
*/
package simlink

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/simlink-go/simlink/pkg/beacon"
	"github.com/simlink-go/simlink/pkg/config"
	"github.com/simlink-go/simlink/pkg/event"
	"github.com/simlink-go/simlink/pkg/registry"
	"github.com/simlink-go/simlink/pkg/snapshot"
	"github.com/simlink-go/simlink/pkg/wire"
)

// ConnectionState is the supervisor's externally visible state.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateDiscovering
	StateConnected
	StateDegraded
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// ConnStatusPath is the internal data point mirroring the connection
// state (numeric value of ConnectionState) for collaborators that
// prefer to watch a point instead of polling.
const ConnStatusPath = registry.InternalPrefix + "_connection_status"

// stopGrace bounds how long Stop waits for the background loops.
const stopGrace = 10 * time.Second

// Subscription is an opaque handle for one consumer's interest in a
// path.
type Subscription struct {
	path string
}

// Path returns the subscribed path.
func (s *Subscription) Path() string { return s.path }

// Options carries optional Engine collaborators.
type Options struct {
	Logger *slog.Logger

	// Metrics registers engine counters when non-nil.
	Metrics prometheus.Registerer

	// OnReload is invoked when a reload control event passes through
	// the queue.
	OnReload func()
}

// Engine is the simulator synchronization engine.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	reg        *registry.Registry
	queue      *event.Queue
	dispatcher *event.Dispatcher
	metrics    *metrics
	snap       *snapshot.Store
	onReload   func()

	mu      sync.Mutex
	started bool
	state   ConnectionState
	value   *valueChannel
	text    *textChannel
	lost    chan struct{}

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates an engine from cfg. Nothing runs until Start.
func New(cfg *config.Config, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	queue := event.NewQueue()
	reg := registry.New(registry.Config{
		MaxActive:   cfg.Value.MaxSubscriptions,
		Roundings:   cfg.Roundings,
		Frequencies: cfg.Frequencies,
		Logger:      logger,
	})

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		reg:      reg,
		queue:    queue,
		metrics:  newMetrics(opts.Metrics, queue),
		onReload: opts.OnReload,
	}
	e.dispatcher = event.NewDispatcher(queue, reg, logger, e.handleControl)

	if cfg.SnapshotPath != "" {
		e.snap = snapshot.NewStore(cfg.SnapshotPath)
	}

	e.reg.GetOrCreate(ConnStatusPath, registry.KindInt)
	return e
}

// Registry exposes the data point table, mainly for inspection.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Start restores the snapshot, starts the event dispatcher and
// launches the connection supervisor. A stopped engine can be
// started again.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.stop = make(chan struct{})
	stop := e.stop
	e.mu.Unlock()

	e.restoreSnapshot()
	bumpCounter(e.reg, e.queue, StartCountPath, 1)
	e.dispatcher.Start()

	e.wg.Add(1)
	go e.supervise(stop)
	return nil
}

// Stop unsubscribes every active path best-effort, closes both
// channels and blocks until the receive loops and the queue consumer
// have exited, bounded by a grace timeout.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	e.started = false
	stop := e.stop
	e.mu.Unlock()

	close(stop)

	e.mu.Lock()
	if e.value != nil {
		for _, sub := range e.reg.ActiveSubscriptions() {
			if err := e.value.sendSubscribe(sub.Index, sub.Path, 0); err != nil {
				e.logger.Debug("unsubscribe on stop", "path", sub.Path, "error", err)
			}
		}
	}
	e.mu.Unlock()

	e.teardownChannels()
	e.setState(StateIdle)
	bumpCounter(e.reg, e.queue, StopCountPath, 1)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		e.dispatcher.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGrace):
		e.logger.Warn("shutdown grace period elapsed")
	}

	e.saveSnapshot()
	return nil
}

// ConnectionState returns the supervisor's current state.
func (e *Engine) ConnectionState() ConnectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Subscribe registers interest in path. The first subscriber of a
// path triggers a wire subscribe when connected; further subscribers
// only bump the refcount. Internal paths are never put on the wire.
func (e *Engine) Subscribe(path string, kind registry.Kind) (*Subscription, error) {
	e.reg.GetOrCreate(path, kind)

	activated, err := e.reg.IncrementSubscription(path)
	if err != nil {
		return nil, err
	}

	if activated {
		e.mu.Lock()
		if e.value != nil {
			idx, ok := e.reg.IndexOf(path)
			if ok {
				if err := e.value.sendSubscribe(idx, path, e.reg.FrequencyHz(path)); err != nil {
					e.logger.Warn("subscribe send", "path", path, "error", err)
				}
			}
		}
		e.mu.Unlock()
		e.metrics.setActive(len(e.reg.ActiveSubscriptions()))
	}

	return &Subscription{path: path}, nil
}

// Unsubscribe drops one reference to the handle's path. The last
// reference triggers a wire unsubscribe.
func (e *Engine) Unsubscribe(sub *Subscription) error {
	deactivated, idx, err := e.reg.DecrementSubscription(sub.path)
	if err != nil {
		return err
	}
	if deactivated {
		e.mu.Lock()
		if e.value != nil {
			if err := e.value.sendSubscribe(idx, sub.path, 0); err != nil {
				e.logger.Warn("unsubscribe send", "path", sub.path, "error", err)
			}
		}
		e.mu.Unlock()
		e.metrics.setActive(len(e.reg.ActiveSubscriptions()))
	}
	return nil
}

// CurrentValue returns the last stored value for path.
func (e *Engine) CurrentValue(path string) (any, bool) {
	return e.reg.Value(path)
}

// AddListener registers fn to be called from the event dispatcher
// whenever path changes with cascade. The returned handle removes it.
func (e *Engine) AddListener(path string, fn registry.ListenerFunc) (uuid.UUID, error) {
	return e.reg.AddListener(path, fn)
}

// RemoveListener drops a listener registered with AddListener.
func (e *Engine) RemoveListener(path string, id uuid.UUID) {
	e.reg.RemoveListener(path, id)
}

// SendCommand executes a command on the simulator. Held commands use
// CommandBegin and CommandEnd phases.
func (e *Engine) SendCommand(path string, phase CommandPhase) error {
	if !HasCommand(path) {
		return fmt.Errorf("%w: %q", ErrNoCommand, path)
	}

	e.mu.Lock()
	vc := e.value
	e.mu.Unlock()
	if vc == nil {
		return fmt.Errorf("%w: command %s", ErrNotConnected, path)
	}

	return vc.sendCommand(commandPath(path, phase))
}

// SendCommandAfter schedules a one-shot command execution after
// delay. The command is validated now; a send failure at fire time
// is logged, not returned.
func (e *Engine) SendCommandAfter(path string, phase CommandPhase, delay time.Duration) error {
	if !HasCommand(path) {
		return fmt.Errorf("%w: %q", ErrNoCommand, path)
	}
	time.AfterFunc(delay, func() {
		if err := e.SendCommand(path, phase); err != nil {
			e.logger.Warn("delayed command", "path", path, "error", err)
		}
	})
	return nil
}

// WriteValue writes a value to the simulator, or directly into the
// registry for internal paths. Supported wire types are float, int
// and bool.
func (e *Engine) WriteValue(path string, value any) error {
	if registry.IsInternal(path) {
		e.writeInternal(path, value, true)
		return nil
	}

	var frame []byte
	switch v := value.(type) {
	case float64:
		frame = wire.EncodeWriteFloat(path, float32(v))
	case float32:
		frame = wire.EncodeWriteFloat(path, v)
	case int:
		frame = wire.EncodeWriteInt(path, int32(v))
	case int32:
		frame = wire.EncodeWriteInt(path, v)
	case bool:
		frame = wire.EncodeWriteBool(path, v)
	default:
		return fmt.Errorf("unsupported write type %T for %s", value, path)
	}

	e.mu.Lock()
	vc := e.value
	e.mu.Unlock()
	if vc == nil {
		return fmt.Errorf("%w: write %s", ErrNotConnected, path)
	}

	return vc.sendWrite(frame)
}

// writeInternal updates a local point and funnels the change through
// the queue so listener ordering matches network updates.
func (e *Engine) writeInternal(path string, value any, cascade bool) {
	kind := registry.KindFloat
	if _, ok := value.(string); ok {
		kind = registry.KindString
	}
	e.reg.GetOrCreate(path, kind)
	if e.reg.ApplyValue(path, value) && cascade {
		e.queue.PushUpdate(path, value, true)
		e.metrics.incUpdatesEnqueued()
	}
}

// handleControl reacts to control sentinels drained by the
// dispatcher.
func (e *Engine) handleControl(c event.Control) {
	switch c {
	case event.ControlReload:
		e.logger.Info("reload requested")
		if e.onReload != nil {
			e.onReload()
		}
	case event.ControlStop:
		e.logger.Info("stop requested through queue")
		go e.Stop()
	}
}

// RequestStop asks for a graceful shutdown through the event queue,
// usable from listener callbacks.
func (e *Engine) RequestStop() {
	e.queue.PushControl(event.ControlStop)
}

// RequestReload asks the collaborator layer to rebuild its consumers.
func (e *Engine) RequestReload() {
	e.queue.PushControl(event.ControlReload)
}

func (e *Engine) restoreSnapshot() {
	if e.snap == nil {
		return
	}
	values, err := e.snap.Load()
	if err != nil {
		e.logger.Warn("snapshot load", "error", err)
		return
	}
	for path, value := range values {
		e.reg.ApplyValue(path, value)
	}
	if len(values) > 0 {
		e.logger.Info("snapshot restored", "points", len(values))
	}
}

func (e *Engine) saveSnapshot() {
	if e.snap == nil {
		return
	}
	if err := e.snap.Save(e.reg.Values()); err != nil {
		e.logger.Warn("snapshot save", "error", err)
	}
}

func (e *Engine) setState(s ConnectionState) {
	e.mu.Lock()
	changed := e.state != s
	e.state = s
	e.mu.Unlock()
	if changed {
		e.metrics.setState(s)
		e.writeInternal(ConnStatusPath, int(s), true)
		e.logger.Info("connection state", "state", s.String())
	}
}

func stopping(stop chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// supervise drives the discover/connect/monitor/reconnect cycle for
// one Start/Stop lifecycle.
func (e *Engine) supervise(stop chan struct{}) {
	defer e.wg.Done()

	retry := newBackoff(
		time.Duration(e.cfg.Reconnect.InitialSeconds*float64(time.Second)),
		time.Duration(e.cfg.Reconnect.MaxSeconds*float64(time.Second)),
		e.cfg.Reconnect.Multiplier,
		e.cfg.Reconnect.Jitter,
	)

	for !stopping(stop) {
		e.setState(StateDiscovering)

		peer, err := e.discoverPeer()
		if err != nil {
			e.logDiscoveryFailure(err)
			e.setState(StateIdle)
			if !sleep(stop, retry.next()) {
				return
			}
			continue
		}

		if err := e.connect(peer, stop); err != nil {
			if stopping(stop) {
				return
			}
			e.logger.Error("connect failed", "error", err)
			if !sleep(stop, retry.next()) {
				return
			}
			continue
		}
		retry.reset()

		// Monitor until the value channel reports the connection
		// lost or we are asked to stop.
		e.mu.Lock()
		lost := e.lost
		e.mu.Unlock()
		select {
		case <-stop:
			return
		case <-lost:
		}

		e.metrics.incReconnects()
		e.teardownChannels()
		e.setState(StateDisconnected)
		if !sleep(stop, retry.next()) {
			return
		}
	}
}

func (e *Engine) logDiscoveryFailure(err error) {
	switch {
	case errors.Is(err, beacon.ErrUnsupportedVersion):
		e.logger.Error("simulator version rejected", "error", err)
	case errors.Is(err, beacon.ErrNotFound):
		e.metrics.incBeaconTimeouts()
		e.logger.Warn("simulator not found, retrying", "error", err)
	default:
		e.logger.Error("discovery failed", "error", err)
	}
}

func (e *Engine) discoverPeer() (*beacon.Peer, error) {
	if e.cfg.StaticHost != "" {
		ip := net.ParseIP(e.cfg.StaticHost)
		if ip == nil {
			addrs, err := net.LookupIP(e.cfg.StaticHost)
			if err != nil || len(addrs) == 0 {
				return nil, fmt.Errorf("static host %q: %w", e.cfg.StaticHost, err)
			}
			ip = addrs[0]
		}
		return &beacon.Peer{IP: ip, Port: uint16(e.cfg.StaticPort)}, nil
	}

	d := beacon.New(beacon.Config{
		Group:      e.cfg.Beacon.Group,
		Port:       e.cfg.Beacon.Port,
		Interface:  e.cfg.Interface,
		Timeout:    e.cfg.BeaconTimeout(),
		MinVersion: e.cfg.Beacon.MinVersion,
		Logger:     e.logger,
	})
	peer, err := d.Discover()
	if err == nil {
		e.metrics.incBeaconReceived()
	}
	return peer, err
}

// connect opens both channels against peer, assigns fresh wire
// indices and re-subscribes every path consumers still hold
// references to. A shutdown racing the connection attempt closes the
// channels instead of publishing them.
func (e *Engine) connect(peer *beacon.Peer, stop chan struct{}) error {
	lost := make(chan struct{})
	var lostOnce sync.Once
	onLost := func() { lostOnce.Do(func() { close(lost) }) }

	vc, err := openValueChannel(peer.Addr(), e.reg, e.queue, e.metrics, e.logger,
		e.cfg.ValueReadTimeout(), e.cfg.Value.MaxTimeouts, onLost)
	if err != nil {
		return err
	}

	subs := e.reg.Reactivate()
	for _, sub := range subs {
		if err := vc.sendSubscribe(sub.Index, sub.Path, sub.Frequency); err != nil {
			vc.close()
			return err
		}
	}
	e.metrics.setActive(len(subs))

	tc, err := openTextChannel(textChannelConfig{
		group:       e.cfg.Text.Group,
		port:        e.cfg.Text.Port,
		ifaceName:   e.cfg.Interface,
		interval:    e.cfg.TextInterval(),
		slack:       e.cfg.TextSlack(),
		maxTimeouts: e.cfg.Text.MaxTimeouts,
	}, e.reg, e.queue, e.metrics, e.logger,
		func() { e.setState(StateDegraded) },
		func() { e.recoverFromDegraded() })
	if err != nil {
		// The text feed is optional; run without it.
		e.logger.Warn("text channel unavailable", "error", err)
		tc = nil
	}

	e.mu.Lock()
	if stopping(stop) {
		e.mu.Unlock()
		vc.close()
		if tc != nil {
			tc.close()
		}
		return ErrNotStarted
	}
	e.value = vc
	e.text = tc
	e.lost = lost
	e.mu.Unlock()

	if stopping(stop) {
		// Stop won the race; teardown closes the published channels.
		return ErrNotStarted
	}
	e.setState(StateConnected)
	e.logger.Info("connected",
		"peer", peer.Addr().String(), "resubscribed", len(subs))
	return nil
}

// recoverFromDegraded re-reports Connected when the text feed comes
// back after a degradation, leaving any other state alone.
func (e *Engine) recoverFromDegraded() {
	e.mu.Lock()
	degraded := e.state == StateDegraded
	e.mu.Unlock()
	if degraded {
		e.setState(StateConnected)
	}
}

// teardownChannels closes both channels and clears the per-connection
// index table; data points, refcounts and listeners survive.
func (e *Engine) teardownChannels() {
	e.mu.Lock()
	vc, tc := e.value, e.text
	e.value, e.text = nil, nil
	e.mu.Unlock()

	if vc != nil {
		vc.close()
	}
	if tc != nil {
		tc.close()
	}
	e.reg.ResetIndexes()
	e.metrics.setActive(0)
}

// sleep waits d unless stopped first.
func sleep(stop chan struct{}, d time.Duration) bool {
	select {
	case <-stop:
		return false
	case <-time.After(d):
		return true
	}
}
