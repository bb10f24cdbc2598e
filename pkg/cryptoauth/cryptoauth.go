// Package cryptoauth implements the authenticated-encryption session
// underneath the session layer: a curve25519 / XSalsa20-Poly1305
// channel with a small handshake state machine.
//
// The handshake exchanges ephemeral keys inside packets sealed to the
// peers' permanent keys: a hello packet (nonce word 0 or 1) answered
// by a key packet (nonce word 2 or 3), after which data packets
// (nonce word >= 4) are sealed with the precomputed ephemeral shared
// secret. Handshake packets carry the caller's payload piggybacked
// after the sealed ephemeral key, so traffic can flow before the
// session is established.
package cryptoauth

import (
	"crypto/rand"
	"time"

	"github.com/pion/logging"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"

	"github.com/backwardn/cjdns/pkg/addr"
)

// ResetAfterInactivity is how long an unfinished handshake may sit
// idle before ResetIfTimeout starts it over.
const ResetAfterInactivity = 60 * time.Second

// CryptoAuth holds this node's permanent keypair and mints sessions
// bound to it.
type CryptoAuth struct {
	privateKey [32]byte
	publicKey  addr.Key
	ip6        addr.IP6
	log        logging.LeveledLogger
	now        func() time.Time
}

// Config configures a CryptoAuth instance.
type Config struct {
	// PrivateKey is this node's permanent curve25519 private key.
	PrivateKey [32]byte

	// LoggerFactory creates the instance logger. If nil, the default
	// factory is used.
	LoggerFactory logging.LoggerFactory

	// Now overrides the clock, for tests. If nil, time.Now is used.
	Now func() time.Time
}

// New creates a CryptoAuth instance from a permanent private key.
// The derived public key must map into the overlay address space.
func New(config Config) (*CryptoAuth, error) {
	pub := publicForPrivate(config.PrivateKey)
	ip6, ok := addr.ForPublicKey(pub)
	if !ok {
		return nil, ErrBadPeerKey
	}
	lf := config.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &CryptoAuth{
		privateKey: config.PrivateKey,
		publicKey:  pub,
		ip6:        ip6,
		log:        lf.NewLogger("cryptoauth"),
		now:        now,
	}, nil
}

// PublicKey returns this node's permanent public key.
func (ca *CryptoAuth) PublicKey() addr.Key {
	return ca.publicKey
}

// IP6 returns this node's own overlay address.
func (ca *CryptoAuth) IP6() addr.IP6 {
	return ca.ip6
}

// NewSession creates a session bound to a peer. herKey may be zero
// when the peer key is not yet known (it is learned from the peer's
// hello packet). name tags the session's log lines.
func (ca *CryptoAuth) NewSession(herKey addr.Key, name string) (*Session, error) {
	s := &Session{
		ca:   ca,
		name: name,
	}
	if !herKey.IsZero() {
		if herKey == ca.publicKey {
			return nil, ErrLoopbackKey
		}
		ip6, ok := addr.ForPublicKey(herKey)
		if !ok {
			return nil, ErrBadPeerKey
		}
		s.herPermKey = herKey
		s.herIP6 = ip6
	}
	s.lastPacket = ca.now()
	return s, nil
}

// GenerateKeyPair produces a fresh permanent keypair whose derived
// address lies inside the overlay. Roughly one keypair in 256
// qualifies, so this loops.
func GenerateKeyPair() (priv [32]byte, pub addr.Key, err error) {
	for {
		pubP, privP, err := box.GenerateKey(rand.Reader)
		if err != nil {
			return priv, pub, err
		}
		if _, ok := addr.ForPublicKey(addr.Key(*pubP)); ok {
			return *privP, addr.Key(*pubP), nil
		}
	}
}

func publicForPrivate(priv [32]byte) addr.Key {
	var pub [32]byte
	curve25519.ScalarBaseMult(&pub, &priv)
	return addr.Key(pub)
}
