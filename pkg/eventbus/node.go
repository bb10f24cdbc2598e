package eventbus

import (
	"encoding/binary"

	"github.com/backwardn/cjdns/pkg/addr"
)

// NodeSize is the encoded size of a Node record in bytes.
const NodeSize = 64

// Node is the node record exchanged on the bus: the payload of
// CoreSession, CoreSessionEnded, CoreDiscoveredPath,
// CoreUnsetupSession and PathfinderNode frames.
type Node struct {
	// Path is the forward-direction switch label toward the node.
	Path uint64

	// Metric is the path cost; lower is better. MetricDeadLink marks
	// a broken path.
	Metric uint32

	// Version is the node's protocol version, 0 if unknown.
	Version uint32

	// PublicKey is the node's permanent public key.
	PublicKey addr.Key

	// IP6 is the node's overlay address.
	IP6 addr.IP6
}

// EncodeTo serializes the record into buf, which must be at least
// NodeSize bytes. Returns the number of bytes written.
func (n *Node) EncodeTo(buf []byte) int {
	binary.BigEndian.PutUint64(buf[0:], n.Path)
	binary.BigEndian.PutUint32(buf[8:], n.Metric)
	binary.BigEndian.PutUint32(buf[12:], n.Version)
	copy(buf[16:48], n.PublicKey[:])
	copy(buf[48:64], n.IP6[:])
	return NodeSize
}

// Encode serializes the record to a new slice.
func (n *Node) Encode() []byte {
	buf := make([]byte, NodeSize)
	n.EncodeTo(buf)
	return buf
}

// DecodeNode parses a Node record from the front of data.
func DecodeNode(data []byte) (Node, error) {
	if len(data) < NodeSize {
		return Node{}, ErrTooShort
	}
	n := Node{
		Path:    binary.BigEndian.Uint64(data[0:]),
		Metric:  binary.BigEndian.Uint32(data[8:]),
		Version: binary.BigEndian.Uint32(data[12:]),
	}
	copy(n.PublicKey[:], data[16:48])
	copy(n.IP6[:], data[48:64])
	return n, nil
}

// SearchReqSize is the encoded size of a SearchReq payload.
const SearchReqSize = 24

// SearchReq is the payload of a CoreSearchReq frame: the address to
// search for plus the highest version already known, with a zero
// placeholder word between them.
type SearchReq struct {
	IP6     addr.IP6
	Version uint32
}

// Encode serializes the request.
func (s *SearchReq) Encode() []byte {
	buf := make([]byte, SearchReqSize)
	copy(buf[0:16], s.IP6[:])
	binary.BigEndian.PutUint32(buf[20:], s.Version)
	return buf
}

// DecodeSearchReq parses a SearchReq payload.
func DecodeSearchReq(data []byte) (SearchReq, error) {
	if len(data) < SearchReqSize {
		return SearchReq{}, ErrTooShort
	}
	s := SearchReq{Version: binary.BigEndian.Uint32(data[20:])}
	copy(s.IP6[:], data[0:16])
	return s, nil
}
