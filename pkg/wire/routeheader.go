package wire

import (
	"encoding/binary"

	"github.com/backwardn/cjdns/pkg/addr"
)

// RouteHeaderSize is the encoded size of a RouteHeader in bytes.
const RouteHeaderSize = 68

// Route header flags.
const (
	// RouteHeaderIncoming marks a frame travelling from the switch
	// toward the upper layers.
	RouteHeaderIncoming uint8 = 1 << 0

	// RouteHeaderCtrlMsg marks a control frame; the public key and
	// address fields must be zero.
	RouteHeaderCtrlMsg uint8 = 1 << 1

	// RouteHeaderPathfinder marks a frame originated by a pathfinder,
	// which maintains its own sessions.
	RouteHeaderPathfinder uint8 = 1 << 2
)

// RouteHeader prefixes every plaintext datagram on the inside
// interface. It carries enough identity for the session layer to
// resolve or create the peer session.
type RouteHeader struct {
	// SwitchHeader is the switch header to use (outbound) or the one
	// the frame arrived with (incoming).
	SwitchHeader SwitchHeader

	// PublicKey is the peer public key, or zero if unknown.
	PublicKey addr.Key

	// Version is the peer protocol version, or zero if unknown.
	Version uint32

	// Flags is a combination of the RouteHeader flag bits.
	Flags uint8

	// IP6 is the peer overlay address.
	IP6 addr.IP6
}

// EncodeTo serializes the header into buf, which must be at least
// RouteHeaderSize bytes. Returns the number of bytes written.
func (h *RouteHeader) EncodeTo(buf []byte) int {
	h.SwitchHeader.EncodeTo(buf[0:])
	copy(buf[12:44], h.PublicKey[:])
	binary.BigEndian.PutUint32(buf[44:], h.Version)
	buf[48] = h.Flags
	buf[49], buf[50], buf[51] = 0, 0, 0
	copy(buf[52:68], h.IP6[:])
	return RouteHeaderSize
}

// Encode serializes the header to a new slice.
func (h *RouteHeader) Encode() []byte {
	buf := make([]byte, RouteHeaderSize)
	h.EncodeTo(buf)
	return buf
}

// DecodeRouteHeader parses a route header from the front of data.
func DecodeRouteHeader(data []byte) (RouteHeader, error) {
	if len(data) < RouteHeaderSize {
		return RouteHeader{}, ErrTooShort
	}
	sh, err := DecodeSwitchHeader(data)
	if err != nil {
		return RouteHeader{}, err
	}
	h := RouteHeader{
		SwitchHeader: sh,
		Version:      binary.BigEndian.Uint32(data[44:]),
		Flags:        data[48],
	}
	copy(h.PublicKey[:], data[12:44])
	copy(h.IP6[:], data[52:68])
	return h, nil
}
