// Package netmon reads the platform's current network state.
//
// The reading is deliberately uncached: connectivity can change between
// any two calls, so every State() walks the interface table again. Any
// failure along the way maps to an offline reading - serving stale cache
// is safer than attempting a request that will fail.
package netmon

import (
	"net"
	"strings"
	"time"

	"github.com/artpar/apiward/ports"
	"github.com/rs/zerolog"
)

// Monitor implements ports.Connectivity by scanning network interfaces
// and optionally confirming reachability with a dial probe.
type Monitor struct {
	// ProbeAddr, when set ("host:port"), requires a successful TCP dial
	// before reporting online. Interface presence alone can lie (e.g. a
	// captive portal or a link with no route).
	ProbeAddr    string
	ProbeTimeout time.Duration

	logger zerolog.Logger

	// Injection points for tests.
	listInterfaces func() ([]net.Interface, error)
	interfaceAddrs func(ni net.Interface) ([]net.Addr, error)
	dial           func(network, addr string, timeout time.Duration) (net.Conn, error)
}

// New creates a monitor backed by the OS interface table.
func New(logger zerolog.Logger) *Monitor {
	return &Monitor{
		ProbeTimeout:   3 * time.Second,
		logger:         logger,
		listInterfaces: net.Interfaces,
		interfaceAddrs: func(ni net.Interface) ([]net.Addr, error) { return ni.Addrs() },
		dial:           net.DialTimeout,
	}
}

// State returns a fresh point-in-time connectivity reading.
func (m *Monitor) State() ports.NetworkState {
	offline := ports.NetworkState{Online: false, Transport: ports.TransportNone}

	ifaces, err := m.listInterfaces()
	if err != nil {
		m.logger.Debug().Err(err).Msg("interface query failed, reporting offline")
		return offline
	}

	transport := ports.TransportNone
	for _, ni := range ifaces {
		if ni.Flags&net.FlagUp == 0 || ni.Flags&net.FlagLoopback != 0 {
			continue
		}
		if !m.hasUsableAddr(ni) {
			continue
		}
		t := classifyInterface(ni.Name)
		if betterTransport(t, transport) {
			transport = t
		}
	}

	if transport == ports.TransportNone {
		return offline
	}

	if m.ProbeAddr != "" {
		conn, err := m.dial("tcp", m.ProbeAddr, m.ProbeTimeout)
		if err != nil {
			m.logger.Debug().Err(err).Str("probe", m.ProbeAddr).Msg("probe dial failed, reporting offline")
			return offline
		}
		conn.Close()
	}

	return ports.NetworkState{Online: true, Transport: transport}
}

func (m *Monitor) hasUsableAddr(ni net.Interface) bool {
	addrs, err := m.interfaceAddrs(ni)
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP
		if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsLoopback() {
			continue
		}
		return true
	}
	return false
}

// classifyInterface maps a platform interface name to a transport type.
// Naming conventions: wl*/wifi* (wireless), ww*/rmnet*/cell* (cellular
// modems), everything else with an address is treated as wired.
func classifyInterface(name string) ports.Transport {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "wl") || strings.Contains(lower, "wifi"):
		return ports.TransportWifi
	case strings.HasPrefix(lower, "ww") || strings.HasPrefix(lower, "rmnet") || strings.Contains(lower, "cell"):
		return ports.TransportCellular
	default:
		return ports.TransportWired
	}
}

// betterTransport prefers wired > wifi > cellular when several links are up.
func betterTransport(candidate, current ports.Transport) bool {
	rank := func(t ports.Transport) int {
		switch t {
		case ports.TransportWired:
			return 3
		case ports.TransportWifi:
			return 2
		case ports.TransportCellular:
			return 1
		default:
			return 0
		}
	}
	return rank(candidate) > rank(current)
}

// Ensure interface compliance.
var _ ports.Connectivity = (*Monitor)(nil)
