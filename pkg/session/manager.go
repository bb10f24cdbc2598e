// Package session owns the per-peer cryptographic sessions of the
// overlay node. It sits between the switch-facing interface
// (encrypted datagrams to and from the routing fabric) and the
// inside-facing interface (plaintext datagrams to and from the upper
// layers), and talks to pathfinders over the event bus: route
// discoveries come in, session lifecycle notifications go out.
//
// Sessions are indexed twice, by overlay address and by a 32-bit
// receive handle allocated from a random per-instance base. Outbound
// datagrams with no usable route are parked in a small buffer while a
// search runs. A periodic housekeeper expires idle sessions, stale
// buffers, and re-triggers searches for sessions this node maintains.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/backwardn/cjdns/pkg/addr"
	"github.com/backwardn/cjdns/pkg/cryptoauth"
	"github.com/backwardn/cjdns/pkg/eventbus"
)

// Defaults for the Config tunables.
const (
	DefaultSessionTimeout       = 2 * time.Minute
	DefaultSessionSearchAfter   = 20 * time.Second
	DefaultMaxBufferedMessages  = 30
	DefaultBufferTimeout        = 10 * time.Second
	DefaultHousekeepingInterval = 10 * time.Second
)

// Sink consumes an outbound datagram on behalf of one of the two
// peer-facing interfaces. The callee must not retain pkt.
type Sink func(pkt []byte)

// Config configures a Manager.
type Config struct {
	// CryptoAuth is this node's key store; every session's crypto
	// state is minted from it. Required.
	CryptoAuth *cryptoauth.CryptoAuth

	// Bus is the event bus shared with the pathfinders. Required.
	// The manager registers for PathfinderNode and PathfinderSessions
	// at construction.
	Bus *eventbus.Emitter

	// SwitchOut receives encrypted datagrams headed into the routing
	// fabric. Required.
	SwitchOut Sink

	// InsideOut receives plaintext datagrams headed to the upper
	// layers. Required.
	InsideOut Sink

	// SessionTimeout evicts a session which has not authenticated any
	// inbound traffic for this long. Default: DefaultSessionTimeout.
	SessionTimeout time.Duration

	// SessionSearchAfter re-triggers a route search for maintained
	// sessions at this interval. Default: DefaultSessionSearchAfter.
	SessionSearchAfter time.Duration

	// MaxBufferedMessages bounds the route-lookup parking buffer.
	// Default: DefaultMaxBufferedMessages.
	MaxBufferedMessages int

	// BufferTimeout drops parked messages once their age reaches this.
	// Default: DefaultBufferTimeout.
	BufferTimeout time.Duration

	// HousekeepingInterval is the period of the timeout scan started
	// by Start. Default: DefaultHousekeepingInterval.
	HousekeepingInterval time.Duration

	// LoggerFactory creates the manager logger. If nil, the default
	// factory is used.
	LoggerFactory logging.LoggerFactory

	// Now overrides the clock, for tests. If nil, time.Now is used.
	Now func() time.Time
}

// Manager is the session manager. Its three ingress points
// (HandleFromSwitch, HandleFromInside, the event-bus endpoint) and
// the housekeeper are serialized by one mutex; handlers run to
// completion, and events they publish are consumed before they
// return. Bus sinks must therefore not call back into the Manager
// synchronously.
type Manager struct {
	config Config
	log    logging.LeveledLogger

	ca  *cryptoauth.CryptoAuth
	bus *eventbus.Emitter

	mu    sync.Mutex
	table *Table
	bufs  *bufferStore

	now func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// NewManager creates a session manager and registers it on the bus.
func NewManager(config Config) (*Manager, error) {
	if config.CryptoAuth == nil {
		return nil, ErrNoCryptoAuth
	}
	if config.Bus == nil {
		return nil, ErrNoBus
	}
	if config.SwitchOut == nil {
		return nil, ErrNoSwitchOut
	}
	if config.InsideOut == nil {
		return nil, ErrNoInsideOut
	}
	if config.SessionTimeout <= 0 {
		config.SessionTimeout = DefaultSessionTimeout
	}
	if config.SessionSearchAfter <= 0 {
		config.SessionSearchAfter = DefaultSessionSearchAfter
	}
	if config.MaxBufferedMessages <= 0 {
		config.MaxBufferedMessages = DefaultMaxBufferedMessages
	}
	if config.BufferTimeout <= 0 {
		config.BufferTimeout = DefaultBufferTimeout
	}
	if config.HousekeepingInterval <= 0 {
		config.HousekeepingInterval = DefaultHousekeepingInterval
	}
	lf := config.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	table, err := NewTable()
	if err != nil {
		return nil, fmt.Errorf("allocating session table: %w", err)
	}

	m := &Manager{
		config: config,
		log:    lf.NewLogger("session"),
		ca:     config.CryptoAuth,
		bus:    config.Bus,
		table:  table,
		bufs:   newBufferStore(config.MaxBufferedMessages),
		now:    now,
		stopCh: make(chan struct{}),
	}
	m.bus.RegisterCore(eventbus.PathfinderNode, m.handleBusEvent)
	m.bus.RegisterCore(eventbus.PathfinderSessions, m.handleBusEvent)
	return m, nil
}

// Start launches the periodic housekeeper. Call Close to stop it.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.HousekeepingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Housekeep()
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Close stops the housekeeper. It does not tear down live sessions.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// nowMs is the manager's millisecond clock.
func (m *Manager) nowMs() int64 {
	return m.now().UnixMilli()
}

// ---------------------------------------------------------------
// Lookup with the lazy key-consistency check.

// check flips foundKey once the crypto session learned the peer key,
// asserting that the key derives the address the session is filed
// under. A mismatch means memory corruption or a protocol breach and
// is fatal.
func (m *Manager) check(s *Session) {
	if s.foundKey {
		return
	}
	herKey := s.ca.HerPublicKey()
	if herKey.IsZero() {
		return
	}
	derived, _ := addr.ForPublicKey(herKey)
	if derived != s.ip6 {
		panic(fmt.Sprintf("session: key %s derives %s but session is filed under %s",
			herKey, derived, s.ip6))
	}
	s.foundKey = true
}

func (m *Manager) sessionForIP6(ip addr.IP6) *Session {
	s := m.table.ByIP6(ip)
	if s != nil {
		m.check(s)
	}
	return s
}

func (m *Manager) sessionForHandle(handle uint32) *Session {
	s := m.table.ByHandle(handle)
	if s != nil {
		m.check(s)
	}
	return s
}

// SessionForIP6 returns the session for an overlay address, nil if
// none exists.
func (m *Manager) SessionForIP6(ip addr.IP6) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionForIP6(ip)
}

// SessionForHandle returns the session a receive handle names, nil if
// the handle is not live.
func (m *Manager) SessionForHandle(handle uint32) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionForHandle(handle)
}

// HandleList returns a snapshot of all live receive handles.
func (m *Manager) HandleList() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Handles()
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Count()
}

// BufferedCount returns the number of parked outbound messages.
func (m *Manager) BufferedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bufs.count()
}

// ---------------------------------------------------------------
// Session creation and path updates.

// getOrCreate locates the session for ip or creates it. For an
// existing session the supplied path information is merged: versions
// fill in when unknown, maintain is sticky OR, and a label is adopted
// only when its metric is no worse than the current one. A
// MetricDeadLink report for the current send label falls the session
// back to its return path, or clears it entirely when both were the
// same path.
func (m *Manager) getOrCreate(ip addr.IP6, key addr.Key, version uint32,
	label uint64, metric uint32, maintain bool) (*Session, error) {

	if !ip.Valid() {
		panic("session: getOrCreate with invalid address")
	}
	if s := m.sessionForIP6(ip); s != nil {
		if s.version == 0 {
			s.version = version
		}
		s.maintainSession = s.maintainSession || maintain
		if metric == MetricDeadLink {
			if s.sendSwitchLabel == label {
				m.log.Debugf("session [%s] broken path [%s]", ip, addr.FormatPath(label))
				if s.sendSwitchLabel == s.recvSwitchLabel {
					s.sendSwitchLabel = 0
					s.metric = MetricDeadLink
				} else {
					s.sendSwitchLabel = s.recvSwitchLabel
					s.metric = MetricSMIncoming
				}
			}
		} else if metric <= s.metric && label != 0 {
			s.sendSwitchLabel = label
			if version != 0 {
				s.version = version
			}
			s.metric = metric
			m.log.Debugf("session [%s] discovered path [%s] metric [%d]",
				ip, addr.FormatPath(label), metric)
		}
		return s, nil
	}

	caSess, err := m.ca.NewSession(key, ip.String())
	if err != nil {
		return nil, err
	}
	s := &Session{
		ca:              caSess,
		version:         version,
		sendSwitchLabel: label,
		metric:          metric,
		maintainSession: maintain,
	}
	if !key.IsZero() {
		// NewSession derived and validated the address already; a
		// disagreement with the index key is fatal.
		if caSess.HerIP6() != ip {
			panic(fmt.Sprintf("session: key %s derives %s but caller filed it under %s",
				key, caSess.HerIP6(), ip))
		}
		s.foundKey = true
	}

	now := m.nowMs()
	s.timeOfLastIn = now
	s.timeOfLastOut = now
	s.timeOfKeepAliveIn = now

	s.receiveHandle = m.table.Insert(ip, s)
	m.log.Debugf("created session for [%s] handle [%d]", ip, s.receiveHandle)

	m.sendSessionEvent(s, label, eventbus.Broadcast, eventbus.CoreSession)
	m.check(s)
	return s, nil
}

// sendSessionEvent publishes a node record describing s.
func (m *Manager) sendSessionEvent(s *Session, path uint64, destPf uint32, ev eventbus.CoreEvent) {
	node := eventbus.Node{
		Path:      path,
		Metric:    s.metric,
		Version:   s.version,
		PublicKey: s.ca.HerPublicKey(),
		IP6:       s.ip6,
	}
	m.bus.EmitCore(ev, destPf, node.Encode())
}

// triggerSearch asks every pathfinder to find a route to target.
func (m *Manager) triggerSearch(target addr.IP6, version uint32) {
	req := eventbus.SearchReq{IP6: target, Version: version}
	m.bus.EmitCore(eventbus.CoreSearchReq, eventbus.Broadcast, req.Encode())
}

// unsetupSession tells pathfinders that a session is stuck before
// key exchange so they may restart handshake signalling. Without a
// version and at least one label the notice would be meaningless.
func (m *Manager) unsetupSession(s *Session) {
	if s.version == 0 || (s.sendSwitchLabel == 0 && s.recvSwitchLabel == 0) {
		return
	}
	path := s.sendSwitchLabel
	if path == 0 {
		path = s.recvSwitchLabel
	}
	m.sendSessionEvent(s, path, eventbus.Broadcast, eventbus.CoreUnsetupSession)
}
