package session

// Path metrics. Lower is better. The session layer itself only ever
// assigns the baseline values below; anything lower comes from a
// pathfinder which actually measured the path.
const (
	// MetricDeadLink marks a path known to be broken.
	MetricDeadLink uint32 = 0xFFFFFFFF

	// MetricSMIncoming is the baseline for a path learned from an
	// incoming packet's return label.
	MetricSMIncoming uint32 = 0xFFFF0200

	// MetricSMSend is the baseline for a path supplied by the sender
	// of an outbound packet.
	MetricSMSend uint32 = 0xFFFF0100
)
