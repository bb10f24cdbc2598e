package session

import (
	"encoding/binary"

	"github.com/backwardn/cjdns/pkg/addr"
	"github.com/backwardn/cjdns/pkg/cryptoauth"
	"github.com/backwardn/cjdns/pkg/eventbus"
	"github.com/backwardn/cjdns/pkg/wire"
)

// errorSaveBytes is how much of the offending packet a failed-decrypt
// reply carries back to the sender.
const errorSaveBytes = 16

// minDataPacket is the smallest frame the switch side will consider
// beyond a bare control marker: the handle word plus a sealed
// zero-length data packet.
const minDataPacket = 4 + 20

// HandleFromSwitch consumes one datagram arriving from the routing
// fabric: a switch header, the nonceOrHandle word, and either a
// control frame, a handshake packet, or an encrypted data packet.
func (m *Manager) HandleFromSwitch(pkt []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(pkt) < wire.SwitchHeaderSize+4 {
		m.log.Debugf("DROP runt")
		return
	}
	sh, _ := wire.DecodeSwitchHeader(pkt)
	// The switch delivers the label reversed: it does not know we are
	// not another switch ready to consume more bits. Reversing yields
	// the return path toward the sender.
	sh.Label = wire.ReverseLabel(sh.Label)

	body := pkt[wire.SwitchHeaderSize:]
	nonceOrHandle := binary.BigEndian.Uint32(body)

	if nonceOrHandle == wire.CtrlHandle {
		m.ctrlFrame(sh, body[4:])
		return
	}

	if len(body) < minDataPacket {
		m.log.Debugf("DROP runt")
		return
	}

	// Keep the first bytes of the offending packet around so a
	// decryption failure can be reported against it.
	var firstSixteen [errorSaveBytes]byte
	copy(firstSixteen[:], body)

	var sess *Session
	var cryptoPkt []byte
	setup := nonceOrHandle <= 3

	if !setup {
		sess = m.sessionForHandle(nonceOrHandle)
		if sess == nil {
			m.log.Debugf("DROP message with unrecognized handle [%d]", nonceOrHandle)
			return
		}
		cryptoPkt = body[4:]
		if nonce := binary.BigEndian.Uint32(cryptoPkt); nonce <= 3 {
			m.log.Debugf("DROP setup message [%d] with specified handle [%d]",
				nonce, nonceOrHandle)
			return
		}
	} else {
		if len(body) < wire.CryptoHeaderSize+4 {
			m.log.Debugf("DROP runt")
			return
		}
		caHdr, err := wire.DecodeCryptoHeader(body)
		if err != nil {
			m.log.Debugf("DROP runt")
			return
		}
		ip6, ok := addr.ForPublicKey(caHdr.PublicKey)
		if !ok {
			m.log.Debugf("DROP handshake with non-fc key")
			return
		}
		// A packet claiming to be from ourselves causes problems.
		if caHdr.PublicKey == m.ca.PublicKey() {
			m.log.Debugf("DROP handshake from 'ourselves'")
			return
		}
		sess, err = m.getOrCreate(ip6, caHdr.PublicKey, 0, sh.Label, MetricSMIncoming, false)
		if err != nil {
			m.log.Debugf("DROP handshake: %v", err)
			return
		}
		sess.ca.ResetIfTimeout()
		m.log.Debugf("session [%s] new handshake nonce [%d]", sess.ip6, nonceOrHandle)
		cryptoPkt = body
	}

	plain, derr := sess.ca.Decrypt(cryptoPkt)
	if derr != cryptoauth.DecryptErrNone {
		m.log.Debugf("DROP failed decrypting message NoH[%d] state[%s] err[%s]",
			nonceOrHandle, sess.ca.State(), derr)
		m.failedDecrypt(sh, firstSixteen, derr, sess.ca.State())
		return
	}

	if setup {
		if len(plain) < 4 {
			m.log.Debugf("DROP handshake with truncated send handle")
			return
		}
		sess.sendHandle = binary.BigEndian.Uint32(plain)
		plain = plain[4:]
	}

	rh := wire.RouteHeader{
		SwitchHeader: sh,
		PublicKey:    sess.ca.HerPublicKey(),
		Version:      sess.version,
		Flags:        wire.RouteHeaderIncoming,
		IP6:          sess.ip6,
	}
	out := make([]byte, wire.RouteHeaderSize+len(plain))
	rh.EncodeTo(out)
	copy(out[wire.RouteHeaderSize:], plain)

	now := m.nowMs()
	if dh, err := wire.DecodeDataHeader(plain); err == nil && dh.ContentType != wire.ContentTypeDHT {
		sess.timeOfLastIn = now
	}
	sess.bytesIn += uint64(len(out))
	sess.timeOfKeepAliveIn = now

	path := sh.Label
	if sess.sendSwitchLabel == 0 {
		sess.sendSwitchLabel = path
	}
	if path != sess.recvSwitchLabel {
		sess.recvSwitchLabel = path
		m.sendSessionEvent(sess, path, eventbus.Broadcast, eventbus.CoreDiscoveredPath)
	}

	m.config.InsideOut(out)
}

// ctrlFrame forwards an incoming control frame to the inside
// interface behind a route header flagged {INCOMING, CTRLMSG}.
func (m *Manager) ctrlFrame(sh wire.SwitchHeader, payload []byte) {
	rh := wire.RouteHeader{
		SwitchHeader: sh,
		Flags:        wire.RouteHeaderIncoming | wire.RouteHeaderCtrlMsg,
	}
	out := make([]byte, wire.RouteHeaderSize+len(payload))
	rh.EncodeTo(out)
	copy(out[wire.RouteHeaderSize:], payload)
	m.config.InsideOut(out)
}

// failedDecrypt replies to an undecryptable packet with a control
// ERROR(AUTHENTICATION) frame aimed back along the return path. The
// reply's switch header has suppress-errors set so two nodes cannot
// bounce authentication errors at each other forever.
func (m *Manager) failedDecrypt(sh wire.SwitchHeader, firstSixteen [errorSaveBytes]byte,
	derr cryptoauth.DecryptErr, state cryptoauth.State) {

	// Error body: the offending packet's switch header as it arrived,
	// its first bytes, the decrypt error, and our handshake state.
	origSH := sh
	origSH.Label = wire.ReverseLabel(origSH.Label)

	body := make([]byte, 4+wire.SwitchHeaderSize+errorSaveBytes+8)
	binary.BigEndian.PutUint32(body[0:], uint32(wire.ErrorAuthentication))
	origSH.EncodeTo(body[4:])
	copy(body[4+wire.SwitchHeaderSize:], firstSixteen[:])
	binary.BigEndian.PutUint32(body[4+wire.SwitchHeaderSize+errorSaveBytes:], uint32(derr))
	binary.BigEndian.PutUint32(body[4+wire.SwitchHeaderSize+errorSaveBytes+4:], uint32(state))

	ctrl := wire.EncodeControl(wire.ControlError, body)

	outSH := wire.SwitchHeader{
		Label:          sh.Label,
		SuppressErrors: true,
		Version:        wire.SwitchHeaderCurrentVersion,
	}
	out := make([]byte, wire.SwitchHeaderSize+4+len(ctrl))
	outSH.EncodeTo(out)
	binary.BigEndian.PutUint32(out[wire.SwitchHeaderSize:], wire.CtrlHandle)
	copy(out[wire.SwitchHeaderSize+4:], ctrl)
	m.config.SwitchOut(out)
}

// HandleFromInside consumes one plaintext datagram from the upper
// layers: a route header, a data header, and the user payload.
func (m *Manager) HandleFromInside(pkt []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rh, err := wire.DecodeRouteHeader(pkt)
	if err != nil {
		m.log.Debugf("DROP runt")
		return
	}
	if rh.Flags&wire.RouteHeaderCtrlMsg != 0 {
		m.outgoingCtrlFrame(rh, pkt[wire.RouteHeaderSize:])
		return
	}
	if len(pkt) < wire.RouteHeaderSize+wire.DataHeaderSize {
		m.log.Debugf("DROP runt")
		return
	}
	if !rh.IP6.Valid() {
		m.log.Debugf("DROP outbound to invalid address [%s]", rh.IP6)
		return
	}
	payload := pkt[wire.RouteHeaderSize:]

	sess := m.sessionForIP6(rh.IP6)
	if sess == nil {
		if !rh.PublicKey.IsZero() && rh.Version != 0 {
			sess, err = m.getOrCreate(rh.IP6, rh.PublicKey, rh.Version,
				rh.SwitchHeader.Label, MetricSMSend,
				rh.Flags&wire.RouteHeaderPathfinder == 0)
			if err != nil {
				m.log.Debugf("DROP outbound to [%s]: %v", rh.IP6, err)
				return
			}
		} else {
			m.needsLookup(rh, pkt)
			return
		}
	}

	if rh.Version != 0 {
		sess.version = rh.Version
	}
	if sess.version == 0 {
		m.needsLookup(rh, pkt)
		return
	}

	if rh.SwitchHeader.Label != 0 {
		// Caller supplied the path.
	} else if sess.sendSwitchLabel != 0 {
		rh.SwitchHeader = wire.SwitchHeader{
			Label:   sess.sendSwitchLabel,
			Version: wire.SwitchHeaderCurrentVersion,
		}
	} else {
		m.needsLookup(rh, pkt)
		return
	}

	// Forward secrecy: user traffic waits until the key exchange is
	// done; only the DHT channel may ride on handshake packets.
	sess.ca.ResetIfTimeout()
	dh, _ := wire.DecodeDataHeader(payload)
	if dh.ContentType != wire.ContentTypeDHT && sess.ca.State() < cryptoauth.StateReceivedKey {
		m.needsLookup(rh, pkt)
		return
	}

	m.readyToSend(rh, payload, sess)
}

// outgoingCtrlFrame sends a control frame from the upper layers to
// the fabric. Control frames must not name a destination session.
func (m *Manager) outgoingCtrlFrame(rh wire.RouteHeader, payload []byte) {
	if !rh.PublicKey.IsZero() || !rh.IP6.IsZero() {
		m.log.Debugf("DROP ctrl frame with non-zero destination key or address")
		return
	}
	out := make([]byte, wire.SwitchHeaderSize+4+len(payload))
	rh.SwitchHeader.EncodeTo(out)
	binary.BigEndian.PutUint32(out[wire.SwitchHeaderSize:], wire.CtrlHandle)
	copy(out[wire.SwitchHeaderSize+4:], payload)
	m.config.SwitchOut(out)
}

// needsLookup parks pkt until a pathfinder reports a route to the
// destination, evicting any older message parked for it, and emits a
// search request. The DHT channel never parks: its messages are only
// sent with full route information in hand.
func (m *Manager) needsLookup(rh wire.RouteHeader, pkt []byte) {
	if len(pkt) >= wire.RouteHeaderSize+wire.DataHeaderSize {
		if dh, err := wire.DecodeDataHeader(pkt[wire.RouteHeaderSize:]); err == nil &&
			dh.ContentType == wire.ContentTypeDHT {
			m.log.Debugf("DROP DHT message to [%s] which would need a lookup", rh.IP6)
			return
		}
	}

	m.log.Debugf("buffering a packet to [%s] and beginning a search", rh.IP6)
	if m.bufs.has(rh.IP6) {
		m.bufs.take(rh.IP6)
		m.log.Debugf("DROP message which needs lookup, a newer one replaced it")
	}
	if m.bufs.full() {
		m.checkTimedOutBuffers()
		if m.bufs.full() {
			m.log.Debugf("DROP message needing lookup, maxBufferedMessages [%d] reached",
				m.bufs.max)
			return
		}
	}
	parked := make([]byte, len(pkt))
	copy(parked, pkt)
	m.bufs.put(rh.IP6, parked, m.nowMs())

	m.triggerSearch(rh.IP6, rh.Version)
}

// readyToSend runs the encrypt path: strip the route header, seal the
// payload, frame it for the fabric. Before the key exchange finishes
// the receive handle rides inside the sealed payload so the peer can
// address us during setup; afterwards the peer's send handle prefixes
// the sealed packet in the clear.
func (m *Manager) readyToSend(rh wire.RouteHeader, payload []byte, sess *Session) {
	if dh, err := wire.DecodeDataHeader(payload); err == nil &&
		dh.ContentType != wire.ContentTypeDHT {
		sess.timeOfLastOut = m.nowMs()
	}

	sess.ca.ResetIfTimeout()
	plain := payload
	if sess.ca.State() < cryptoauth.StateReceivedKey {
		plain = make([]byte, 4+len(payload))
		binary.BigEndian.PutUint32(plain, sess.receiveHandle)
		copy(plain[4:], payload)
	}
	sess.bytesOut += uint64(len(plain))

	sealed, err := sess.ca.Encrypt(plain)
	if err != nil {
		m.log.Debugf("DROP outbound to [%s]: %v", sess.ip6, err)
		return
	}
	if sess.ca.State() >= cryptoauth.StateReceivedKey {
		withHandle := make([]byte, 4+len(sealed))
		binary.BigEndian.PutUint32(withHandle, sess.sendHandle)
		copy(withHandle[4:], sealed)
		sealed = withHandle
	}

	sh := rh.SwitchHeader
	if sh.Label == 0 {
		sh = wire.SwitchHeader{
			Label:   sess.sendSwitchLabel,
			Version: wire.SwitchHeaderCurrentVersion,
		}
	}
	out := make([]byte, wire.SwitchHeaderSize+len(sealed))
	sh.EncodeTo(out)
	copy(out[wire.SwitchHeaderSize:], sealed)
	m.config.SwitchOut(out)
}
