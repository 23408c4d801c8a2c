package simlink

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/simlink-go/simlink/pkg/event"
	"github.com/simlink-go/simlink/pkg/registry"
	"github.com/simlink-go/simlink/pkg/wire"
)

// textChannel receives string-typed values from the companion feed
// over its own multicast socket. String values do not fit the fixed
// binary frame, so this channel lives independently of the value
// channel and is best-effort: repeated timeouts degrade the
// connection status but never force a reconnect.
type textChannel struct {
	conn *net.UDPConn

	reg     *registry.Registry
	queue   *event.Queue
	metrics *metrics
	logger  *slog.Logger

	// interval is the expected time between feed packets; the read
	// deadline is interval+slack and follows the "f" control field
	// the feed advertises.
	interval time.Duration
	slack    time.Duration

	maxTimeouts int
	onDegraded  func()
	onRecovered func()

	cache map[string]string

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

type textChannelConfig struct {
	group       string
	port        int
	ifaceName   string
	interval    time.Duration
	slack       time.Duration
	maxTimeouts int
}

func openTextChannel(cfg textChannelConfig, reg *registry.Registry, queue *event.Queue,
	m *metrics, logger *slog.Logger, onDegraded, onRecovered func()) (*textChannel, error) {

	group := net.ParseIP(cfg.group)
	if group == nil {
		return nil, fmt.Errorf("invalid text group %q", cfg.group)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: cfg.port})
	if err != nil {
		return nil, fmt.Errorf("text channel listen: %w", err)
	}

	if group.IsMulticast() {
		var iface *net.Interface
		if cfg.ifaceName != "" {
			iface, err = net.InterfaceByName(cfg.ifaceName)
			if err != nil {
				conn.Close()
				return nil, fmt.Errorf("text channel interface: %w", err)
			}
		}
		p := ipv4.NewPacketConn(conn)
		if err := p.JoinGroup(iface, &net.UDPAddr{IP: group}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("text channel join group: %w", err)
		}
		p.SetMulticastLoopback(true)
	}

	tc := &textChannel{
		conn:        conn,
		reg:         reg,
		queue:       queue,
		metrics:     m,
		logger:      logger,
		interval:    cfg.interval,
		slack:       cfg.slack,
		maxTimeouts: cfg.maxTimeouts,
		onDegraded:  onDegraded,
		onRecovered: onRecovered,
		cache:       map[string]string{},
		stop:        make(chan struct{}),
	}

	tc.wg.Add(1)
	go tc.receiveLoop()

	return tc, nil
}

func (tc *textChannel) close() {
	tc.once.Do(func() { close(tc.stop) })
	tc.conn.Close()
	tc.wg.Wait()
}

func (tc *textChannel) stopped() bool {
	select {
	case <-tc.stop:
		return true
	default:
		return false
	}
}

func (tc *textChannel) receiveLoop() {
	defer tc.wg.Done()

	buf := make([]byte, wire.MaxDatagramSize)
	timeouts := 0

	for {
		if tc.stopped() {
			return
		}
		tc.conn.SetReadDeadline(time.Now().Add(tc.interval + tc.slack))
		n, _, err := tc.conn.ReadFromUDP(buf)
		if err != nil {
			if tc.stopped() {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				timeouts++
				tc.metrics.incSocketTimeouts()
				bumpCounter(tc.reg, tc.queue, TimeoutCountPath, 1)
				tc.logger.Debug("text channel timeout",
					"count", timeouts, "interval", tc.interval)
				// Widen the window, the feed may just be slow.
				tc.interval += time.Second
				if timeouts == tc.maxTimeouts && tc.onDegraded != nil {
					tc.onDegraded()
				}
				continue
			}
			tc.logger.Error("text channel read", "error", err)
			return
		}

		timeouts = 0
		tc.handlePacket(buf[:n])
	}
}

func (tc *textChannel) handlePacket(data []byte) {
	batch, ok := wire.DecodeTextBatch(data)
	if !ok {
		tc.metrics.incMalformed()
		tc.logger.Debug("dropping malformed text packet", "bytes", len(data))
		return
	}

	tc.metrics.incTextPackets()
	if tc.onRecovered != nil {
		tc.onRecovered()
	}

	if batch.HasInterval {
		advertised := time.Duration(batch.Interval * float64(time.Second))
		if advertised > 0 && advertised != tc.interval {
			tc.logger.Info("text feed interval adjusted",
				"seconds", batch.Interval, "values", len(batch.Values))
			tc.interval = advertised
		}
	}

	for path, value := range batch.Values {
		if cached, seen := tc.cache[path]; seen && cached == value {
			continue
		}
		tc.cache[path] = value
		tc.reg.GetOrCreate(path, registry.KindString)
		tc.reg.ApplyValue(path, value)
		tc.queue.PushUpdate(path, value, true)
		tc.metrics.incUpdatesEnqueued()
	}
}
