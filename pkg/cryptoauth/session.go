package cryptoauth

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"time"

	"golang.org/x/crypto/nacl/box"

	"github.com/backwardn/cjdns/pkg/addr"
	"github.com/backwardn/cjdns/pkg/wire"
)

// Nonce words 0-3 identify handshake packets; data packets start at 4.
const (
	nonceHello       = 0
	nonceRepeatHello = 1
	nonceKey         = 2
	nonceRepeatKey   = 3
	firstDataNonce   = 4
)

// dataOverhead is the added size of a sealed data packet: the nonce
// word plus the poly1305 tag.
const dataOverhead = 4 + box.Overhead

// Session is one end of an authenticated-encryption channel to a
// single peer. It is not safe for concurrent use; the session layer
// serializes access.
type Session struct {
	ca   *CryptoAuth
	name string

	state       State
	isInitiator bool

	herPermKey addr.Key
	herIP6     addr.IP6

	ourTempPriv [32]byte
	ourTempPub  [32]byte
	haveTemp    bool

	herTempPub [32]byte

	shared    [32]byte
	haveShare bool

	nextNonce  uint32
	sentHello  bool
	sentKey    bool
	replay     replayProtector
	lastPacket time.Time
}

// State returns the current handshake state.
func (s *Session) State() State {
	return s.state
}

// HerPublicKey returns the peer's permanent public key, or the zero
// key while it is unknown.
func (s *Session) HerPublicKey() addr.Key {
	return s.herPermKey
}

// HerIP6 returns the peer's overlay address, or the zero address
// while the peer key is unknown.
func (s *Session) HerIP6() addr.IP6 {
	return s.herIP6
}

// Stats returns the anti-replay counters.
func (s *Session) Stats() Stats {
	return s.replay.stats
}

// ResetIfTimeout restarts the handshake when it has been stuck in a
// half-open state for longer than ResetAfterInactivity.
func (s *Session) ResetIfTimeout() {
	if s.state == StateInit || s.state == StateEstablished {
		return
	}
	if s.ca.now().Sub(s.lastPacket) <= ResetAfterInactivity {
		return
	}
	s.ca.log.Debugf("session [%s] reset after handshake inactivity in state [%s]", s.name, s.state)
	s.reset()
}

func (s *Session) reset() {
	s.state = StateInit
	s.isInitiator = false
	s.haveTemp = false
	s.haveShare = false
	s.herTempPub = [32]byte{}
	s.nextNonce = 0
	s.replay.reset()
}

// Encrypt seals plain into the next outbound packet. Depending on the
// handshake state this is a hello, a key packet, or a data packet;
// handshake packets carry plain piggybacked inside the sealed region.
func (s *Session) Encrypt(plain []byte) ([]byte, error) {
	switch {
	case s.state < StateReceivedHello:
		return s.encryptHandshake(plain, false)
	case s.state < StateReceivedKey:
		return s.encryptHandshake(plain, true)
	default:
		return s.encryptData(plain)
	}
}

func (s *Session) encryptHandshake(plain []byte, keyPacket bool) ([]byte, error) {
	if s.herPermKey.IsZero() {
		return nil, ErrNoPeerKey
	}
	if !s.haveTemp {
		pub, priv, err := box.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		s.ourTempPub, s.ourTempPriv = *pub, *priv
		s.haveTemp = true
	}

	var hdr wire.CryptoHeader
	if keyPacket {
		hdr.Nonce = nonceKey
		if s.sentKey {
			hdr.Nonce = nonceRepeatKey
		}
	} else {
		hdr.Nonce = nonceHello
		if s.sentHello {
			hdr.Nonce = nonceRepeatHello
		}
	}
	if _, err := rand.Read(hdr.HandshakeNonce[:]); err != nil {
		return nil, err
	}
	hdr.PublicKey = s.ca.publicKey

	herKey := [32]byte(s.herPermKey)
	sealedInput := make([]byte, 0, 32+len(plain))
	sealedInput = append(sealedInput, s.ourTempPub[:]...)
	sealedInput = append(sealedInput, plain...)
	sealed := box.Seal(nil, sealedInput, &hdr.HandshakeNonce, &herKey, &s.ca.privateKey)

	copy(hdr.Authenticator[:], sealed[:16])
	copy(hdr.EncryptedTempKey[:], sealed[16:48])

	packet := make([]byte, wire.CryptoHeaderSize+len(sealed)-48)
	hdr.EncodeTo(packet)
	copy(packet[wire.CryptoHeaderSize:], sealed[48:])

	if keyPacket {
		s.sentKey = true
		if s.state < StateSentKey {
			s.state = StateSentKey
		}
		// Both ephemeral keys are known once the key packet is built.
		box.Precompute(&s.shared, &s.herTempPub, &s.ourTempPriv)
		s.haveShare = true
	} else {
		s.sentHello = true
		s.isInitiator = true
		if s.state < StateSentHello {
			s.state = StateSentHello
		}
	}
	s.lastPacket = s.ca.now()
	return packet, nil
}

func (s *Session) encryptData(plain []byte) ([]byte, error) {
	if s.nextNonce < firstDataNonce {
		s.nextNonce = firstDataNonce
	}
	if s.nextNonce == 0xFFFFFFFF {
		return nil, ErrNonceExhausted
	}
	nonce := s.nextNonce
	s.nextNonce++

	packet := make([]byte, 4, 4+len(plain)+box.Overhead)
	binary.BigEndian.PutUint32(packet, nonce)
	n24 := laneNonce(nonce, s.isInitiator)
	packet = box.SealAfterPrecomputation(packet, plain, &n24, &s.shared)
	s.lastPacket = s.ca.now()
	return packet, nil
}

// Decrypt opens an inbound packet, advancing the handshake when it is
// a hello or key packet. The returned payload is the piggybacked
// plaintext. A non-zero DecryptErr means the packet was rejected and
// the session state is unchanged except for counters.
func (s *Session) Decrypt(packet []byte) ([]byte, DecryptErr) {
	if len(packet) < 4 {
		return nil, DecryptErrRunt
	}
	nonce := binary.BigEndian.Uint32(packet)
	if nonce <= nonceRepeatKey {
		return s.decryptHandshake(nonce, packet)
	}
	return s.decryptData(nonce, packet)
}

func (s *Session) decryptHandshake(nonce uint32, packet []byte) ([]byte, DecryptErr) {
	hdr, err := wire.DecodeCryptoHeader(packet)
	if err != nil {
		return nil, DecryptErrRunt
	}
	if hdr.PublicKey == s.ca.publicKey {
		return nil, DecryptErrWiseguy
	}
	if !s.herPermKey.IsZero() && hdr.PublicKey != s.herPermKey {
		return nil, DecryptErrWrongPermKey
	}
	herIP6, ok := addr.ForPublicKey(hdr.PublicKey)
	if !ok {
		return nil, DecryptErrMalformedHandshake
	}

	isHello := nonce <= nonceRepeatHello
	if !isHello && !s.haveTemp {
		// A key packet answers a hello we never sent.
		return nil, DecryptErrMalformedHandshake
	}
	if isHello && s.state == StateSentHello {
		// Simultaneous hellos: the lower permanent key stays the
		// initiator, the other side folds to responder.
		if bytes.Compare(s.ca.publicKey[:], hdr.PublicKey[:]) < 0 {
			return nil, DecryptErrWiseguy
		}
	}

	herKey := [32]byte(hdr.PublicKey)
	sealed := make([]byte, 0, 48+len(packet)-wire.CryptoHeaderSize)
	sealed = append(sealed, hdr.Authenticator[:]...)
	sealed = append(sealed, hdr.EncryptedTempKey[:]...)
	sealed = append(sealed, packet[wire.CryptoHeaderSize:]...)

	opened, okOpen := box.Open(nil, sealed, &hdr.HandshakeNonce, &herKey, &s.ca.privateKey)
	if !okOpen {
		return nil, DecryptErrHandshakeDecryptFailed
	}

	s.herPermKey = hdr.PublicKey
	s.herIP6 = herIP6
	copy(s.herTempPub[:], opened[:32])
	payload := opened[32:]

	if isHello {
		s.isInitiator = false
		s.haveShare = false
		s.state = StateReceivedHello
		s.replay.reset()
		s.nextNonce = 0
	} else {
		box.Precompute(&s.shared, &s.herTempPub, &s.ourTempPriv)
		s.haveShare = true
		if s.state < StateReceivedKey {
			s.state = StateReceivedKey
		}
		s.replay.reset()
	}
	s.lastPacket = s.ca.now()
	return payload, DecryptErrNone
}

func (s *Session) decryptData(nonce uint32, packet []byte) ([]byte, DecryptErr) {
	if len(packet) < dataOverhead {
		return nil, DecryptErrRunt
	}
	if !s.haveShare {
		return nil, DecryptErrNoSession
	}
	// The peer seals with its own lane, the mirror of ours.
	n24 := laneNonce(nonce, !s.isInitiator)
	plain, ok := box.OpenAfterPrecomputation(nil, packet[4:], &n24, &s.shared)
	if !ok {
		return nil, DecryptErrFailedDecryptDataMsg
	}
	if !s.replay.check(nonce) {
		return nil, DecryptErrReplay
	}
	if s.state < StateEstablished {
		s.state = StateEstablished
	}
	s.lastPacket = s.ca.now()
	return plain, DecryptErrNone
}

// laneNonce expands a 32-bit packet nonce into a 24-byte box nonce.
// Initiator and responder write their counters into different lanes
// so the shared secret never sees the same nonce twice.
func laneNonce(nonce uint32, initiator bool) [24]byte {
	var n [24]byte
	if initiator {
		binary.BigEndian.PutUint32(n[0:], nonce)
	} else {
		binary.BigEndian.PutUint32(n[8:], nonce)
	}
	return n
}
