// Package discovery announces this node to directly reachable
// neighbors and finds theirs: a DNS-SD beacon carrying the node's
// public key and protocol version. It produces candidate peers for an
// operator or supervisor to wire up; it makes no routing decisions.
package discovery

import (
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"

	"github.com/backwardn/cjdns/pkg/addr"
)

const (
	// Service is the DNS-SD service type of overlay node beacons.
	Service = "_fc-mesh._udp"

	// Domain is the mDNS domain beacons live in.
	Domain = "local."

	// DefaultPort is the port advertised when none is configured.
	DefaultPort = 3478
)

// TXT record keys.
const (
	txtKeyPublicKey = "pk"
	txtKeyVersion   = "v"
)

// MDNSServer is the interface to a running mDNS registration. It
// allows dependency injection in tests.
type MDNSServer interface {
	// Shutdown stops the server.
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	// Register creates a new mDNS server for the given service.
	Register(instance, service, domain string, port int, txt []string,
		ifaces []net.Interface) (MDNSServer, error)
}

// zeroconfServerFactory is the production implementation.
type zeroconfServerFactory struct{}

func (zeroconfServerFactory) Register(instance, service, domain string, port int,
	txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// BeaconConfig configures a Beacon.
type BeaconConfig struct {
	// PublicKey is this node's permanent public key. Required; it
	// must derive a valid overlay address.
	PublicKey addr.Key

	// Version is this node's protocol version. Required.
	Version uint32

	// Port is the UDP port peers should contact. Default: DefaultPort.
	Port int

	// Interfaces restricts which network interfaces carry the beacon.
	// Nil means all.
	Interfaces []net.Interface

	// ServerFactory overrides the mDNS backend, for tests.
	ServerFactory MDNSServerFactory

	// LoggerFactory creates the beacon logger. If nil, the default
	// factory is used.
	LoggerFactory logging.LoggerFactory
}

// Beacon advertises this node on the local network.
type Beacon struct {
	config  BeaconConfig
	factory MDNSServerFactory
	log     logging.LeveledLogger

	mu     sync.Mutex
	server MDNSServer
	closed bool
}

// NewBeacon creates a beacon. Call Start to begin advertising.
func NewBeacon(config BeaconConfig) (*Beacon, error) {
	if _, ok := addr.ForPublicKey(config.PublicKey); !ok {
		return nil, ErrBadPublicKey
	}
	if config.Version == 0 {
		return nil, ErrNoVersion
	}
	if config.Port <= 0 || config.Port > 65535 {
		config.Port = DefaultPort
	}
	factory := config.ServerFactory
	if factory == nil {
		factory = zeroconfServerFactory{}
	}
	lf := config.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return &Beacon{
		config:  config,
		factory: factory,
		log:     lf.NewLogger("discovery"),
	}, nil
}

// Start registers the beacon service.
func (b *Beacon) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.server != nil {
		return nil
	}

	ip, _ := addr.ForPublicKey(b.config.PublicKey)
	instance := instanceName(ip)
	txt := []string{
		fmt.Sprintf("%s=%s", txtKeyPublicKey, b.config.PublicKey),
		fmt.Sprintf("%s=%d", txtKeyVersion, b.config.Version),
	}
	server, err := b.factory.Register(instance, Service, Domain,
		b.config.Port, txt, b.config.Interfaces)
	if err != nil {
		return fmt.Errorf("registering beacon: %w", err)
	}
	b.server = server
	b.log.Infof("advertising [%s] as [%s]", ip, instance)
	return nil
}

// Close withdraws the beacon.
func (b *Beacon) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.server != nil {
		b.server.Shutdown()
		b.server = nil
	}
}

// instanceName derives a stable DNS-SD instance name from the node
// address.
func instanceName(ip addr.IP6) string {
	return fmt.Sprintf("fcnode-%02x%02x%02x%02x", ip[12], ip[13], ip[14], ip[15])
}
