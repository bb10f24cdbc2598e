// Package transport carries the node's two peer-facing interfaces
// over UDP sockets: raw datagram in, raw datagram out. It knows
// nothing about the session layer's frame formats.
package transport

import (
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// MaxDatagramSize bounds one datagram on either interface.
const MaxDatagramSize = 65536

// Handler consumes one inbound datagram. The data slice is owned by
// the callee.
type Handler func(data []byte, from net.Addr)

// UDPConfig configures a UDP interface socket.
type UDPConfig struct {
	// Conn is an optional pre-existing PacketConn, for tests.
	// If nil, a socket is bound to ListenAddr.
	Conn net.PacketConn

	// ListenAddr is the address to bind (e.g. ":9001"). Ignored when
	// Conn is set; empty means an ephemeral port.
	ListenAddr string

	// Handler receives every inbound datagram. Required.
	Handler Handler

	// LoggerFactory creates the socket logger. If nil, the default
	// factory is used.
	LoggerFactory logging.LoggerFactory
}

// UDP is one peer-facing interface socket. Outbound datagrams go to
// an explicit address, or to the last heard-from address in sticky
// mode, which is how the daemon pairs each interface with its single
// counterpart process.
type UDP struct {
	conn    net.PacketConn
	handler Handler
	log     logging.LeveledLogger

	closeCh chan struct{}
	wg      sync.WaitGroup

	mu       sync.RWMutex
	lastPeer net.Addr
	started  bool
	closed   bool
}

// NewUDP creates the socket. Call Start to begin reading.
func NewUDP(config UDPConfig) (*UDP, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}
	lf := config.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	u := &UDP{
		conn:    config.Conn,
		handler: config.Handler,
		log:     lf.NewLogger("transport"),
		closeCh: make(chan struct{}),
	}
	if u.conn == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		u.conn = conn
	}
	return u, nil
}

// Start begins the read loop.
func (u *UDP) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return ErrClosed
	}
	if u.started {
		return ErrAlreadyStarted
	}
	u.started = true

	u.log.Infof("listening on %s", u.conn.LocalAddr())
	u.wg.Add(1)
	go u.readLoop()
	return nil
}

// Close stops the read loop and closes the socket.
func (u *UDP) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return ErrClosed
	}
	u.closed = true
	u.mu.Unlock()

	close(u.closeCh)
	u.conn.SetReadDeadline(time.Now())
	u.conn.Close()
	u.wg.Wait()
	return nil
}

// SendTo writes one datagram to an explicit address.
func (u *UDP) SendTo(data []byte, to net.Addr) error {
	u.mu.RLock()
	closed := u.closed
	u.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if to == nil {
		return ErrNoPeer
	}
	if len(data) > MaxDatagramSize {
		return ErrDatagramTooLarge
	}
	_, err := u.conn.WriteTo(data, to)
	return err
}

// Send writes one datagram to the last heard-from address.
func (u *UDP) Send(data []byte) error {
	u.mu.RLock()
	peer := u.lastPeer
	u.mu.RUnlock()
	if peer == nil {
		return ErrNoPeer
	}
	return u.SendTo(data, peer)
}

// LocalAddr returns the bound address.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

func (u *UDP) readLoop() {
	defer u.wg.Done()
	buf := make([]byte, MaxDatagramSize)
	for {
		n, from, err := u.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-u.closeCh:
				return
			default:
				u.log.Warnf("read error: %v", err)
				continue
			}
		}
		if n == 0 {
			continue
		}
		u.mu.Lock()
		u.lastPeer = from
		u.mu.Unlock()

		data := make([]byte, n)
		copy(data, buf[:n])
		u.handler(data, from)
	}
}
