package wire

import (
	"encoding/binary"

	"github.com/backwardn/cjdns/pkg/addr"
)

// CryptoHeaderSize is the encoded size of a handshake CryptoHeader.
const CryptoHeaderSize = 120

// CryptoHeader is the handshake packet header. The leading nonce word
// doubles as the nonceOrHandle discriminator on the switch side:
// values 0-3 identify handshake packets, so those handle values are
// reserved.
type CryptoHeader struct {
	// Nonce is 0 or 1 for hello packets, 2 or 3 for key packets.
	Nonce uint32

	// AuthChallenge carries the password-auth challenge; all zero in
	// the unauthenticated overlay.
	AuthChallenge [12]byte

	// HandshakeNonce is the random 24-byte box nonce.
	HandshakeNonce [24]byte

	// PublicKey is the sender's permanent public key.
	PublicKey addr.Key

	// Authenticator is the poly1305 tag over the boxed temp key and
	// the sealed payload that follows the header.
	Authenticator [16]byte

	// EncryptedTempKey is the sender's boxed ephemeral public key.
	EncryptedTempKey [32]byte
}

// EncodeTo serializes the header into buf, which must be at least
// CryptoHeaderSize bytes. Returns the number of bytes written.
func (h *CryptoHeader) EncodeTo(buf []byte) int {
	binary.BigEndian.PutUint32(buf[0:], h.Nonce)
	copy(buf[4:16], h.AuthChallenge[:])
	copy(buf[16:40], h.HandshakeNonce[:])
	copy(buf[40:72], h.PublicKey[:])
	copy(buf[72:88], h.Authenticator[:])
	copy(buf[88:120], h.EncryptedTempKey[:])
	return CryptoHeaderSize
}

// Encode serializes the header to a new slice.
func (h *CryptoHeader) Encode() []byte {
	buf := make([]byte, CryptoHeaderSize)
	h.EncodeTo(buf)
	return buf
}

// DecodeCryptoHeader parses a crypto header from the front of data.
func DecodeCryptoHeader(data []byte) (CryptoHeader, error) {
	if len(data) < CryptoHeaderSize {
		return CryptoHeader{}, ErrTooShort
	}
	h := CryptoHeader{Nonce: binary.BigEndian.Uint32(data[0:])}
	copy(h.AuthChallenge[:], data[4:16])
	copy(h.HandshakeNonce[:], data[16:40])
	copy(h.PublicKey[:], data[40:72])
	copy(h.Authenticator[:], data[72:88])
	copy(h.EncryptedTempKey[:], data[88:120])
	return h, nil
}
