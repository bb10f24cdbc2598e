package cryptoauth

import "math/bits"

// replayWindowSize is how many nonces behind the highest accepted
// nonce a packet may trail before it is rejected outright.
const replayWindowSize = 64

// Stats are the per-session anti-replay counters surfaced to the
// admin view.
type Stats struct {
	// Duplicates counts packets whose nonce was already accepted.
	Duplicates uint32

	// LostPackets counts nonces that left the replay window without
	// ever being seen.
	LostPackets uint32

	// ReceivedOutOfRange counts packets trailing too far behind the
	// window to be judged.
	ReceivedOutOfRange uint32
}

// replayProtector is a sliding bitmap over the last replayWindowSize
// nonces. Bit i of bitmap records whether nonce highest-i was seen.
type replayProtector struct {
	highest uint32
	first   uint32
	bitmap  uint64
	started bool

	stats Stats
}

// check records nonce and reports whether the packet should be
// accepted. Call only after the packet authenticated, so attackers
// cannot poison the window.
func (r *replayProtector) check(nonce uint32) bool {
	if !r.started {
		r.started = true
		r.highest = nonce
		r.first = nonce
		r.bitmap = 1
		return true
	}
	if nonce > r.highest {
		r.slide(nonce)
		return true
	}
	offset := r.highest - nonce
	if offset >= replayWindowSize {
		r.stats.ReceivedOutOfRange++
		return false
	}
	mask := uint64(1) << offset
	if r.bitmap&mask != 0 {
		r.stats.Duplicates++
		return false
	}
	r.bitmap |= mask
	return true
}

// slide advances the window to a new highest nonce, charging every
// slot that leaves the window unseen to LostPackets. Slots below the
// first nonce ever seen are not real packets and are not charged.
func (r *replayProtector) slide(nonce uint32) {
	old, first := int64(r.highest), int64(r.first)
	delta := uint32(int64(nonce) - old)

	var seen int
	if delta >= replayWindowSize {
		seen = bits.OnesCount64(r.bitmap)
		r.bitmap = 1
	} else {
		dropped := r.bitmap >> (replayWindowSize - delta)
		seen = bits.OnesCount64(dropped)
		r.bitmap = r.bitmap<<delta | 1
	}

	// Nonces newly pushed out of the window: [old-63 .. new-64],
	// clipped to the first real nonce.
	lo := old - (replayWindowSize - 1)
	if lo < first {
		lo = first
	}
	hi := int64(nonce) - replayWindowSize
	if hi >= lo {
		expired := uint32(hi - lo + 1)
		r.stats.LostPackets += expired - uint32(seen)
	}
	r.highest = nonce
}

func (r *replayProtector) reset() {
	r.highest = 0
	r.first = 0
	r.bitmap = 0
	r.started = false
}
