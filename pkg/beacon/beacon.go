// Package beacon discovers a running simulator on the local network.
// The simulator announces itself by multicasting a small binary
// packet to a well-known group; no directory service is involved.
package beacon

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/simlink-go/simlink/pkg/wire"
)

const (
	// DefaultGroup and DefaultPort are the well-known multicast
	// address the simulator announces on.
	DefaultGroup = "239.255.1.1"
	DefaultPort  = 49707

	// DefaultTimeout bounds one discovery attempt.
	DefaultTimeout = 3 * time.Second

	// DefaultMinVersion is the lowest simulator version the engine
	// supports.
	DefaultMinVersion = 121100
)

var (
	// ErrNotFound is returned when no valid announcement arrives
	// within the timeout. The supervisor retries after a backoff.
	ErrNotFound = errors.New("no simulator found on local network")

	// ErrUnsupportedVersion is returned when the announcing peer is
	// older than the minimum supported version. Terminal for the
	// attempt, logged loudly by the supervisor.
	ErrUnsupportedVersion = errors.New("simulator version not supported")
)

// Peer describes a discovered simulator.
type Peer struct {
	IP       net.IP
	Port     uint16
	Hostname string
	Version  int32
	Role     uint32
}

// Addr returns the peer's UDP endpoint for subscribe and command
// traffic.
func (p *Peer) Addr() *net.UDPAddr {
	return &net.UDPAddr{IP: p.IP, Port: int(p.Port)}
}

// Config customizes a Discoverer. Zero values take the defaults
// above. A non-multicast Group skips the group join, which lets
// tests feed announcements over plain loopback UDP.
type Config struct {
	Group      string
	Port       int
	Interface  string
	Timeout    time.Duration
	MinVersion int
	Logger     *slog.Logger
}

// Discoverer waits for a simulator announcement.
type Discoverer struct {
	cfg Config
}

// New creates a Discoverer.
func New(cfg Config) *Discoverer {
	if cfg.Group == "" {
		cfg.Group = DefaultGroup
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = DefaultMinVersion
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Discoverer{cfg: cfg}
}

// Discover listens for one announcement, validating the header tag
// and the peer version. Packets with a foreign tag are discarded and
// the wait continues until the timeout.
func (d *Discoverer) Discover() (*Peer, error) {
	conn, err := d.listen()
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return d.wait(conn)
}

func (d *Discoverer) listen() (*net.UDPConn, error) {
	group := net.ParseIP(d.cfg.Group)
	if group == nil {
		return nil, fmt.Errorf("invalid beacon group %q", d.cfg.Group)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: d.cfg.Port})
	if err != nil {
		return nil, fmt.Errorf("beacon listen: %w", err)
	}

	if group.IsMulticast() {
		var iface *net.Interface
		if d.cfg.Interface != "" {
			iface, err = net.InterfaceByName(d.cfg.Interface)
			if err != nil {
				conn.Close()
				return nil, fmt.Errorf("beacon interface: %w", err)
			}
		}
		p := ipv4.NewPacketConn(conn)
		if err := p.JoinGroup(iface, &net.UDPAddr{IP: group}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("beacon join group: %w", err)
		}
		p.SetMulticastLoopback(true)
	}

	return conn, nil
}

// wait reads announcements from conn until one decodes, the version
// check fails, or the timeout elapses.
func (d *Discoverer) wait(conn *net.UDPConn) (*Peer, error) {
	deadline := time.Now().Add(d.cfg.Timeout)
	buf := make([]byte, wire.MaxDatagramSize)

	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil, ErrNotFound
			}
			return nil, err
		}

		b, ok := wire.DecodeBeacon(buf[:n])
		if !ok {
			d.cfg.Logger.Debug("discarding non-beacon packet", "from", src, "bytes", n)
			continue
		}
		if b.MajorVersion != 1 || b.MinorVersion > 2 || b.HostID != 1 {
			return nil, fmt.Errorf("%w: beacon %d.%d host %d",
				ErrUnsupportedVersion, b.MajorVersion, b.MinorVersion, b.HostID)
		}
		if int(b.Version) < d.cfg.MinVersion {
			return nil, fmt.Errorf("%w: %d < %d", ErrUnsupportedVersion, b.Version, d.cfg.MinVersion)
		}

		peer := &Peer{
			IP:       src.IP,
			Port:     b.Port,
			Hostname: b.Hostname,
			Version:  b.Version,
			Role:     b.Role,
		}
		d.cfg.Logger.Info("simulator found",
			"ip", peer.IP, "port", peer.Port,
			"hostname", peer.Hostname, "version", peer.Version)
		return peer, nil
	}
}
