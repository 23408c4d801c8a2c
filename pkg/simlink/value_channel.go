package simlink

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/simlink-go/simlink/pkg/event"
	"github.com/simlink-go/simlink/pkg/registry"
	"github.com/simlink-go/simlink/pkg/wire"
)

// valueChannel owns the UDP socket used both to send subscribe,
// command and write frames and to receive the simulator's periodic
// binary value batches. One socket for both directions keeps the
// simulator replying to the port it heard us on.
type valueChannel struct {
	conn *net.UDPConn
	peer *net.UDPAddr

	reg     *registry.Registry
	queue   *event.Queue
	metrics *metrics
	logger  *slog.Logger

	readTimeout time.Duration
	maxTimeouts int

	// onLost tells the supervisor the connection died; fired at most
	// once, from the receive loop.
	onLost func()

	// sendMu serializes outbound frames; the receive loop runs
	// concurrently on the same socket.
	sendMu sync.Mutex

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func openValueChannel(peer *net.UDPAddr, reg *registry.Registry, queue *event.Queue,
	m *metrics, logger *slog.Logger, readTimeout time.Duration, maxTimeouts int,
	onLost func()) (*valueChannel, error) {

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("value channel: %w", err)
	}

	vc := &valueChannel{
		conn:        conn,
		peer:        peer,
		reg:         reg,
		queue:       queue,
		metrics:     m,
		logger:      logger,
		readTimeout: readTimeout,
		maxTimeouts: maxTimeouts,
		onLost:      onLost,
		stop:        make(chan struct{}),
	}

	vc.wg.Add(1)
	go vc.receiveLoop()

	return vc, nil
}

// close stops the receive loop and releases the socket.
func (vc *valueChannel) close() {
	vc.once.Do(func() { close(vc.stop) })
	vc.conn.Close()
	vc.wg.Wait()
}

func (vc *valueChannel) stopped() bool {
	select {
	case <-vc.stop:
		return true
	default:
		return false
	}
}

// sendSubscribe asks the simulator to push path under index at
// frequencyHz updates per second. Frequency 0 cancels.
func (vc *valueChannel) sendSubscribe(index uint32, path string, frequencyHz int) error {
	return vc.send(wire.EncodeSubscribe(index, path, frequencyHz))
}

func (vc *valueChannel) sendCommand(path string) error {
	return vc.send(wire.EncodeCommand(path))
}

func (vc *valueChannel) sendWrite(frame []byte) error {
	return vc.send(frame)
}

func (vc *valueChannel) send(frame []byte) error {
	vc.sendMu.Lock()
	defer vc.sendMu.Unlock()
	if _, err := vc.conn.WriteToUDP(frame, vc.peer); err != nil {
		return fmt.Errorf("value channel send: %w", err)
	}
	return nil
}

// receiveLoop blocks on the socket with a per-read timeout. Timeouts
// increment a consecutive counter; past the threshold the connection
// is declared lost and the loop exits. Any successful read resets
// the counter.
func (vc *valueChannel) receiveLoop() {
	defer vc.wg.Done()

	buf := make([]byte, wire.MaxDatagramSize)
	timeouts := 0

	for {
		if vc.stopped() {
			return
		}
		vc.conn.SetReadDeadline(time.Now().Add(vc.readTimeout))
		n, _, err := vc.conn.ReadFromUDP(buf)
		if err != nil {
			if vc.stopped() {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				timeouts++
				vc.metrics.incSocketTimeouts()
				bumpCounter(vc.reg, vc.queue, TimeoutCountPath, 1)
				vc.logger.Info("value channel timeout",
					"count", timeouts, "max", vc.maxTimeouts)
				if timeouts >= vc.maxTimeouts {
					vc.logger.Warn("too many timeouts, connection lost")
					vc.onLost()
					return
				}
				continue
			}
			vc.logger.Error("value channel read", "error", err)
			vc.onLost()
			return
		}

		timeouts = 0
		vc.handlePacket(buf[:n])
	}
}

// handlePacket decodes one value batch and applies every tuple to
// the registry. Changed values are pushed onto the event queue; the
// cascade flag follows whether any consumer monitors the path.
func (vc *valueChannel) handlePacket(data []byte) {
	updates, ok := wire.DecodeValueBatch(data)
	if !ok {
		vc.metrics.incMalformed()
		vc.logger.Debug("dropping malformed packet", "bytes", len(data))
		return
	}

	vc.metrics.incValuePackets()
	vc.metrics.addValuesDecoded(len(updates))
	bumpCounter(vc.reg, vc.queue, ReadCountPath, 1)
	bumpCounter(vc.reg, vc.queue, ValueCountPath, float64(len(updates)))

	for _, u := range updates {
		path, ok := vc.reg.PathAt(u.Index)
		if !ok {
			// Updates for a just-cancelled subscription may still
			// be in flight.
			vc.logger.Debug("value for unknown index", "index", u.Index)
			continue
		}
		if vc.reg.ApplyValue(path, float64(u.Value)) {
			cascade := vc.reg.IsMonitored(path)
			vc.queue.PushUpdate(path, float64(u.Value), cascade)
			vc.metrics.incUpdatesEnqueued()
		}
	}
}
