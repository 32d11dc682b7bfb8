// Package connectivity reports network reachability for the sync core.
package connectivity

import (
	"net"
	"strings"
	"sync"
	"time"
)

// Oracle answers "am I currently reachable?" and exposes a deduplicated
// stream of reachability transitions. It is side-effect-free: no retry
// logic lives here.
type Oracle interface {
	// Reachable reports point-in-time reachability.
	Reachable() bool

	// Changes emits each reachability transition exactly once. The channel
	// is closed by Close.
	Changes() <-chan bool

	// Close tears the oracle down and releases its probe.
	Close()
}

// Monitor polls the host's network interfaces and collapses them into a
// single reachable boolean. Any usable interface other than loopback or a
// Bluetooth PAN counts as reachable.
type Monitor struct {
	interval time.Duration

	mu        sync.RWMutex
	reachable bool

	changes chan bool
	stop    chan struct{}
	once    sync.Once
}

// NewMonitor starts a Monitor probing at the given interval.
func NewMonitor(interval time.Duration) *Monitor {
	m := &Monitor{
		interval:  interval,
		reachable: probeInterfaces(),
		changes:   make(chan bool, 1),
		stop:      make(chan struct{}),
	}
	go m.loop()
	return m
}

// Reachable reports the last probed state.
func (m *Monitor) Reachable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reachable
}

// Changes returns the transition stream.
func (m *Monitor) Changes() <-chan bool {
	return m.changes
}

// Close stops the probe loop and closes the transition stream.
func (m *Monitor) Close() {
	m.once.Do(func() { close(m.stop) })
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	defer close(m.changes)

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			now := probeInterfaces()

			m.mu.Lock()
			changed := now != m.reachable
			m.reachable = now
			m.mu.Unlock()

			if changed {
				// Keep only the newest transition for a slow consumer.
				select {
				case m.changes <- now:
				default:
					select {
					case <-m.changes:
					default:
					}
					m.changes <- now
				}
			}
		}
	}
}

// probeInterfaces collapses the interface set into one boolean.
func probeInterfaces() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isBluetoothPAN(iface.Name) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		return true
	}
	return false
}

// isBluetoothPAN reports whether an interface name looks like a
// Bluetooth personal-area network, which does not count as reachable.
func isBluetoothPAN(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "bnep") || strings.HasPrefix(lower, "bt-pan")
}

// Static is a fixed-answer Oracle for composition in tests and for flows
// that force an offline mode.
type Static struct {
	mu        sync.RWMutex
	reachable bool
	changes   chan bool
}

// NewStatic creates a Static oracle with an initial state.
func NewStatic(reachable bool) *Static {
	return &Static{
		reachable: reachable,
		changes:   make(chan bool, 1),
	}
}

// Reachable reports the configured state.
func (s *Static) Reachable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reachable
}

// Set flips the state, emitting a transition when it actually changes.
func (s *Static) Set(reachable bool) {
	s.mu.Lock()
	changed := s.reachable != reachable
	s.reachable = reachable
	s.mu.Unlock()

	if changed {
		select {
		case s.changes <- reachable:
		default:
		}
	}
}

// Changes returns the transition stream.
func (s *Static) Changes() <-chan bool {
	return s.changes
}

// Close is a no-op for Static.
func (s *Static) Close() {}
