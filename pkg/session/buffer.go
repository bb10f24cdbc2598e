package session

import "github.com/backwardn/cjdns/pkg/addr"

// bufferedMessage is one outbound plaintext datagram parked while a
// route search runs, plus the time it was parked.
type bufferedMessage struct {
	pkt      []byte
	timeSent int64
}

// bufferStore keys at most one pending message per destination; a
// newer message for the same destination evicts the older one.
type bufferStore struct {
	msgs map[addr.IP6]*bufferedMessage
	max  int
}

func newBufferStore(max int) *bufferStore {
	return &bufferStore{
		msgs: make(map[addr.IP6]*bufferedMessage),
		max:  max,
	}
}

func (b *bufferStore) has(ip addr.IP6) bool {
	_, ok := b.msgs[ip]
	return ok
}

// take removes and returns the buffered message for ip, nil if none.
func (b *bufferStore) take(ip addr.IP6) *bufferedMessage {
	bm := b.msgs[ip]
	delete(b.msgs, ip)
	return bm
}

func (b *bufferStore) put(ip addr.IP6, pkt []byte, now int64) {
	b.msgs[ip] = &bufferedMessage{pkt: pkt, timeSent: now}
}

func (b *bufferStore) full() bool {
	return len(b.msgs) >= b.max
}

func (b *bufferStore) count() int {
	return len(b.msgs)
}

// expire drops every entry whose age has reached lifetime and returns
// how many were dropped.
func (b *bufferStore) expire(now, lifetime int64) int {
	dropped := 0
	for ip, bm := range b.msgs {
		if now-bm.timeSent >= lifetime {
			delete(b.msgs, ip)
			dropped++
		}
	}
	return dropped
}
