package discovery

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"

	"github.com/backwardn/cjdns/pkg/addr"
)

// DefaultBrowseTimeout bounds one Browse sweep.
const DefaultBrowseTimeout = 5 * time.Second

// Peer is one discovered neighbor candidate.
type Peer struct {
	// PublicKey is the neighbor's permanent public key.
	PublicKey addr.Key

	// IP6 is the derived overlay address.
	IP6 addr.IP6

	// Version is the neighbor's protocol version.
	Version uint32

	// Addrs are the LAN addresses the beacon resolved to.
	Addrs []net.IP

	// Port is the advertised contact port.
	Port int
}

// MDNSBrowser is the interface for mDNS browsing. It allows
// dependency injection in tests.
type MDNSBrowser interface {
	Browse(ctx context.Context, service, domain string,
		entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfBrowser is the production implementation.
type zeroconfBrowser struct{}

func (zeroconfBrowser) Browse(ctx context.Context, service, domain string,
	entries chan<- *zeroconf.ServiceEntry) error {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}
	return r.Browse(ctx, service, domain, entries)
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// Browser overrides the mDNS backend, for tests.
	Browser MDNSBrowser

	// BrowseTimeout bounds one Browse sweep.
	// Default: DefaultBrowseTimeout.
	BrowseTimeout time.Duration

	// LoggerFactory creates the resolver logger. If nil, the default
	// factory is used.
	LoggerFactory logging.LoggerFactory
}

// Resolver finds neighbor beacons on the local network.
type Resolver struct {
	browser MDNSBrowser
	timeout time.Duration
	log     logging.LeveledLogger
}

// NewResolver creates a resolver.
func NewResolver(config ResolverConfig) *Resolver {
	browser := config.Browser
	if browser == nil {
		browser = zeroconfBrowser{}
	}
	timeout := config.BrowseTimeout
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}
	lf := config.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return &Resolver{
		browser: browser,
		timeout: timeout,
		log:     lf.NewLogger("discovery"),
	}
}

// Browse sweeps the local network once and returns every valid peer
// beacon heard. Beacons with malformed or invalid keys are dropped.
func (r *Resolver) Browse(ctx context.Context) ([]Peer, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	var peers []Peer
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			peer, ok := r.peerFromEntry(entry)
			if !ok {
				continue
			}
			mu.Lock()
			peers = append(peers, peer)
			mu.Unlock()
		}
	}()

	if err := r.browser.Browse(ctx, Service, Domain, entries); err != nil {
		return nil, err
	}
	<-ctx.Done()
	<-done

	mu.Lock()
	defer mu.Unlock()
	return peers, nil
}

// peerFromEntry validates one service entry.
func (r *Resolver) peerFromEntry(entry *zeroconf.ServiceEntry) (Peer, bool) {
	var peer Peer
	for _, kv := range entry.Text {
		k, v, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		switch k {
		case txtKeyPublicKey:
			key, err := addr.ParseKey(v)
			if err != nil {
				r.log.Debugf("DROP beacon [%s]: %v", entry.Instance, err)
				return peer, false
			}
			peer.PublicKey = key
		case txtKeyVersion:
			ver, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				r.log.Debugf("DROP beacon [%s]: bad version", entry.Instance)
				return peer, false
			}
			peer.Version = uint32(ver)
		}
	}
	if peer.PublicKey.IsZero() || peer.Version == 0 {
		r.log.Debugf("DROP beacon [%s]: missing key or version", entry.Instance)
		return peer, false
	}
	ip6, ok := addr.ForPublicKey(peer.PublicKey)
	if !ok {
		r.log.Debugf("DROP beacon [%s]: key outside the overlay", entry.Instance)
		return peer, false
	}
	peer.IP6 = ip6
	peer.Port = entry.Port
	peer.Addrs = append(peer.Addrs, entry.AddrIPv6...)
	peer.Addrs = append(peer.Addrs, entry.AddrIPv4...)
	return peer, true
}
