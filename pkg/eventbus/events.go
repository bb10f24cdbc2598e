// Package eventbus carries the control-plane protocol between the
// core (session layer, switch) and one or more pathfinders.
//
// Every frame is {event u32 BE, target u32 BE, payload}. The target
// word names a single pathfinder by id or Broadcast; on frames
// travelling from a pathfinder into the core it instead carries the
// source pathfinder id, which core components echo back to address a
// reply ("please respond" correlation).
package eventbus

// Broadcast addresses every registered pathfinder.
const Broadcast uint32 = 0xFFFFFFFF

// CoreEvent identifies an event emitted by the core toward
// pathfinders. The numeric range starts at 512 so core and
// pathfinder events cannot be confused on the wire.
type CoreEvent uint32

// Core events.
const (
	CoreConnect CoreEvent = 512 + iota
	CorePathfinder
	CorePathfinderGone
	CoreSwitchErr
	CoreSearchReq
	CorePeer
	CorePeerGone
	CoreSession
	CoreSessionEnded
	CoreDiscoveredPath
	CoreMsg
	CorePing
	CorePong
	CoreUnsetupSession
)

func (e CoreEvent) String() string {
	switch e {
	case CoreConnect:
		return "Core_CONNECT"
	case CorePathfinder:
		return "Core_PATHFINDER"
	case CorePathfinderGone:
		return "Core_PATHFINDER_GONE"
	case CoreSwitchErr:
		return "Core_SWITCH_ERR"
	case CoreSearchReq:
		return "Core_SEARCH_REQ"
	case CorePeer:
		return "Core_PEER"
	case CorePeerGone:
		return "Core_PEER_GONE"
	case CoreSession:
		return "Core_SESSION"
	case CoreSessionEnded:
		return "Core_SESSION_ENDED"
	case CoreDiscoveredPath:
		return "Core_DISCOVERED_PATH"
	case CoreMsg:
		return "Core_MSG"
	case CorePing:
		return "Core_PING"
	case CorePong:
		return "Core_PONG"
	case CoreUnsetupSession:
		return "Core_UNSETUP_SESSION"
	default:
		return "Core_UNKNOWN"
	}
}

// PathfinderEvent identifies an event emitted by a pathfinder toward
// the core.
type PathfinderEvent uint32

// Pathfinder events.
const (
	PathfinderConnect PathfinderEvent = 1 + iota
	PathfinderSuperiority
	PathfinderNode
	PathfinderSendMsg
	PathfinderPing
	PathfinderPong
	PathfinderSessions
)

func (e PathfinderEvent) String() string {
	switch e {
	case PathfinderConnect:
		return "Pathfinder_CONNECT"
	case PathfinderSuperiority:
		return "Pathfinder_SUPERIORITY"
	case PathfinderNode:
		return "Pathfinder_NODE"
	case PathfinderSendMsg:
		return "Pathfinder_SENDMSG"
	case PathfinderPing:
		return "Pathfinder_PING"
	case PathfinderPong:
		return "Pathfinder_PONG"
	case PathfinderSessions:
		return "Pathfinder_SESSIONS"
	default:
		return "Pathfinder_UNKNOWN"
	}
}
