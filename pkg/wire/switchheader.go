// Package wire defines the byte-exact datagram headers exchanged
// between the switch fabric, the session layer and the upper layers.
// All multi-byte fields are big-endian on the wire.
package wire

import (
	"encoding/binary"
	"math/bits"
)

// SwitchHeaderSize is the encoded size of a SwitchHeader in bytes.
const SwitchHeaderSize = 12

// SwitchHeaderCurrentVersion is the current switch header version,
// carried in the top two bits of the version/label-shift byte.
const SwitchHeaderCurrentVersion = 1

// CtrlHandle is the nonceOrHandle marker identifying a control frame.
const CtrlHandle uint32 = 0xFFFFFFFF

// SwitchHeader is the hop-by-hop routing header interpreted by the
// switch fabric. The label arrives bit-reversed relative to the
// forward direction; see ReverseLabel.
type SwitchHeader struct {
	// Label is the 64-bit routing label.
	Label uint64

	// Congestion is a 7-bit congestion indication.
	Congestion uint8

	// SuppressErrors prevents the receiving node from replying with
	// error control frames. Set on frames which are themselves error
	// replies so two nodes cannot bounce errors back and forth.
	SuppressErrors bool

	// Version is the 2-bit switch header version.
	Version uint8

	// LabelShift is the number of label bits already consumed by
	// switches along the path.
	LabelShift uint8

	// TrafficClass is an opaque 16-bit traffic class.
	TrafficClass uint16
}

// EncodeTo serializes the header into buf, which must be at least
// SwitchHeaderSize bytes. Returns the number of bytes written.
func (h *SwitchHeader) EncodeTo(buf []byte) int {
	binary.BigEndian.PutUint64(buf[0:], h.Label)
	congest := h.Congestion << 1
	if h.SuppressErrors {
		congest |= 1
	}
	buf[8] = congest
	buf[9] = (h.Version&0x03)<<6 | (h.LabelShift & 0x3F)
	binary.BigEndian.PutUint16(buf[10:], h.TrafficClass)
	return SwitchHeaderSize
}

// Encode serializes the header to a new slice.
func (h *SwitchHeader) Encode() []byte {
	buf := make([]byte, SwitchHeaderSize)
	h.EncodeTo(buf)
	return buf
}

// DecodeSwitchHeader parses a switch header from the front of data.
func DecodeSwitchHeader(data []byte) (SwitchHeader, error) {
	if len(data) < SwitchHeaderSize {
		return SwitchHeader{}, ErrTooShort
	}
	return SwitchHeader{
		Label:          binary.BigEndian.Uint64(data[0:]),
		Congestion:     data[8] >> 1,
		SuppressErrors: data[8]&1 != 0,
		Version:        data[9] >> 6,
		LabelShift:     data[9] & 0x3F,
		TrafficClass:   binary.BigEndian.Uint16(data[10:]),
	}, nil
}

// ReverseLabel flips the bit order of a 64-bit label. The fabric
// delivers labels reversed; reversing again yields the return path
// toward the sender.
func ReverseLabel(label uint64) uint64 {
	return bits.Reverse64(label)
}
