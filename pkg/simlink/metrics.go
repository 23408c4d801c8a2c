package simlink

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/simlink-go/simlink/pkg/event"
)

// metrics counts engine activity. All methods are nil-safe so the
// engine runs unchanged without a metrics registry.
type metrics struct {
	beaconReceived   prometheus.Counter
	beaconTimeouts   prometheus.Counter
	valuePackets     prometheus.Counter
	valuesDecoded    prometheus.Counter
	textPackets      prometheus.Counter
	malformedPackets prometheus.Counter
	socketTimeouts   prometheus.Counter
	reconnects       prometheus.Counter
	updatesEnqueued  prometheus.Counter
	activeSubscribed prometheus.Gauge
	queueDepth       prometheus.GaugeFunc
	connectionState  prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, queue *event.Queue) *metrics {
	if reg == nil {
		return nil
	}

	m := &metrics{
		beaconReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simlink_beacon_packets_total",
			Help: "Beacon announcements received.",
		}),
		beaconTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simlink_beacon_timeouts_total",
			Help: "Discovery attempts that timed out.",
		}),
		valuePackets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simlink_value_packets_total",
			Help: "Binary value batches received.",
		}),
		valuesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simlink_values_total",
			Help: "Individual values decoded from batches.",
		}),
		textPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simlink_text_packets_total",
			Help: "Text side-channel packets received.",
		}),
		malformedPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simlink_malformed_packets_total",
			Help: "Packets dropped for a bad tag or framing.",
		}),
		socketTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simlink_socket_timeouts_total",
			Help: "Per-read socket timeouts across channels.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simlink_reconnects_total",
			Help: "Connections lost and rebuilt.",
		}),
		updatesEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simlink_updates_enqueued_total",
			Help: "Update events pushed onto the event queue.",
		}),
		activeSubscribed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simlink_active_subscriptions",
			Help: "Paths currently subscribed on the wire.",
		}),
		queueDepth: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "simlink_event_queue_depth",
			Help: "Events waiting in the queue.",
		}, func() float64 { return float64(queue.Len()) }),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simlink_connection_state",
			Help: "Supervisor state (0 idle .. 4 disconnected).",
		}),
	}

	reg.MustRegister(
		m.beaconReceived, m.beaconTimeouts,
		m.valuePackets, m.valuesDecoded, m.textPackets,
		m.malformedPackets, m.socketTimeouts, m.reconnects,
		m.updatesEnqueued, m.activeSubscribed, m.queueDepth,
		m.connectionState,
	)
	return m
}

func (m *metrics) incBeaconReceived() {
	if m != nil {
		m.beaconReceived.Inc()
	}
}

func (m *metrics) incBeaconTimeouts() {
	if m != nil {
		m.beaconTimeouts.Inc()
	}
}

func (m *metrics) incValuePackets() {
	if m != nil {
		m.valuePackets.Inc()
	}
}

func (m *metrics) addValuesDecoded(n int) {
	if m != nil {
		m.valuesDecoded.Add(float64(n))
	}
}

func (m *metrics) incTextPackets() {
	if m != nil {
		m.textPackets.Inc()
	}
}

func (m *metrics) incMalformed() {
	if m != nil {
		m.malformedPackets.Inc()
	}
}

func (m *metrics) incSocketTimeouts() {
	if m != nil {
		m.socketTimeouts.Inc()
	}
}

func (m *metrics) incReconnects() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *metrics) incUpdatesEnqueued() {
	if m != nil {
		m.updatesEnqueued.Inc()
	}
}

func (m *metrics) setActive(n int) {
	if m != nil {
		m.activeSubscribed.Set(float64(n))
	}
}

func (m *metrics) setState(s ConnectionState) {
	if m != nil {
		m.connectionState.Set(float64(s))
	}
}
