package simlink

import (
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simlink-go/simlink/pkg/config"
	"github.com/simlink-go/simlink/pkg/event"
	"github.com/simlink-go/simlink/pkg/registry"
)

func TestValueChannelReadErrorReportsLost(t *testing.T) {
	reg := registry.New(registry.Config{})
	queue := event.NewQueue()

	lost := make(chan struct{})
	var once sync.Once
	onLost := func() { once.Do(func() { close(lost) }) }

	peer := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}
	vc, err := openValueChannel(peer, reg, queue, nil, slog.Default(),
		time.Minute, 5, onLost)
	require.NoError(t, err)

	// A dead socket is a lost connection, not a silent exit.
	vc.conn.Close()

	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("read error did not report the connection lost")
	}
	vc.close()
}

func TestValueChannelCloseDoesNotReportLost(t *testing.T) {
	reg := registry.New(registry.Config{})
	queue := event.NewQueue()

	lost := make(chan struct{})
	var once sync.Once
	onLost := func() { once.Do(func() { close(lost) }) }

	peer := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}
	vc, err := openValueChannel(peer, reg, queue, nil, slog.Default(),
		time.Minute, 5, onLost)
	require.NoError(t, err)

	vc.close()

	select {
	case <-lost:
		t.Fatal("deliberate close reported the connection lost")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTextChannelRecoveryCallback(t *testing.T) {
	reg := registry.New(registry.Config{})
	queue := event.NewQueue()

	recovered := 0
	tc := &textChannel{
		reg:         reg,
		queue:       queue,
		logger:      slog.Default(),
		interval:    time.Second,
		onRecovered: func() { recovered++ },
		cache:       map[string]string{},
	}

	tc.handlePacket([]byte(`{"ts": 1.0, "f": 5, "fma/line1": "CLB"}`))

	assert.Equal(t, 1, recovered)
	v, ok := reg.Value("fma/line1")
	require.True(t, ok)
	assert.Equal(t, "CLB", v)

	// Malformed packets do not count as feed recovery.
	tc.handlePacket([]byte("not json"))
	assert.Equal(t, 1, recovered)
}

func TestRecoverFromDegradedOnlyLeavesDegraded(t *testing.T) {
	e := New(config.Default(), Options{})

	e.state = StateDegraded
	e.recoverFromDegraded()
	assert.Equal(t, StateConnected, e.ConnectionState())

	e.state = StateDisconnected
	e.recoverFromDegraded()
	assert.Equal(t, StateDisconnected, e.ConnectionState())
}
