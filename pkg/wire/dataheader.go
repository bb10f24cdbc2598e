package wire

import "encoding/binary"

// DataHeaderSize is the encoded size of a DataHeader in bytes.
const DataHeaderSize = 4

// DataHeaderCurrentVersion is the current data header version,
// carried in the top four bits of the first byte.
const DataHeaderCurrentVersion = 1

// ContentType identifies the channel a plaintext datagram belongs to.
type ContentType uint16

// Content types.
const (
	// ContentTypeIP6 is plain tunnelled IPv6 user traffic.
	ContentTypeIP6 ContentType = 0

	// ContentTypeDHT is the distributed hash table channel. DHT
	// traffic is exempt from the forward-secrecy hold-back and does
	// not refresh user-activity timestamps.
	ContentTypeDHT ContentType = 256
)

// DataHeader prefixes the user payload of every plaintext datagram.
type DataHeader struct {
	// Version is the 4-bit data header version.
	Version uint8

	// ContentType selects the payload channel.
	ContentType ContentType
}

// EncodeTo serializes the header into buf, which must be at least
// DataHeaderSize bytes. Returns the number of bytes written.
func (h *DataHeader) EncodeTo(buf []byte) int {
	buf[0] = (h.Version & 0x0F) << 4
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:], uint16(h.ContentType))
	return DataHeaderSize
}

// Encode serializes the header to a new slice.
func (h *DataHeader) Encode() []byte {
	buf := make([]byte, DataHeaderSize)
	h.EncodeTo(buf)
	return buf
}

// DecodeDataHeader parses a data header from the front of data.
func DecodeDataHeader(data []byte) (DataHeader, error) {
	if len(data) < DataHeaderSize {
		return DataHeader{}, ErrTooShort
	}
	return DataHeader{
		Version:     data[0] >> 4,
		ContentType: ContentType(binary.BigEndian.Uint16(data[2:])),
	}, nil
}
