package eventbus

import (
	"encoding/binary"
	"sync"

	"github.com/pion/logging"
)

// FrameHeaderSize is the size of the {event, target} frame prefix.
const FrameHeaderSize = 8

// CoreHandler consumes a pathfinder event inside the core.
// sourcePf is the id of the pathfinder the frame came from; echo it
// as the target of a reply to address that pathfinder alone.
type CoreHandler func(ev PathfinderEvent, sourcePf uint32, payload []byte)

// PathfinderSink receives core event frames on behalf of one
// registered pathfinder. The frame is fully encoded:
// {event u32 BE, target u32 BE, payload}.
type PathfinderSink func(frame []byte)

// Emitter multiplexes the event bus: core components register
// handlers for the pathfinder events they consume, pathfinders
// register sinks for the core events they want to observe. Dispatch
// is synchronous; a handler runs to completion before Emit returns.
type Emitter struct {
	log logging.LeveledLogger

	mu          sync.RWMutex
	coreHandler map[PathfinderEvent][]CoreHandler
	pathfinders []PathfinderSink
}

// Config configures an Emitter.
type Config struct {
	// LoggerFactory creates the emitter logger. If nil, the default
	// factory is used.
	LoggerFactory logging.LoggerFactory
}

// NewEmitter creates an event bus emitter.
func NewEmitter(config Config) *Emitter {
	lf := config.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return &Emitter{
		log:         lf.NewLogger("eventbus"),
		coreHandler: make(map[PathfinderEvent][]CoreHandler),
	}
}

// RegisterCore subscribes a core component to one pathfinder event.
func (e *Emitter) RegisterCore(ev PathfinderEvent, h CoreHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.coreHandler[ev] = append(e.coreHandler[ev], h)
}

// RegisterPathfinder adds a pathfinder sink and returns its id.
func (e *Emitter) RegisterPathfinder(sink PathfinderSink) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pathfinders = append(e.pathfinders, sink)
	return uint32(len(e.pathfinders) - 1)
}

// EmitCore publishes a core event. target selects one pathfinder id
// or Broadcast. The frame is delivered synchronously.
func (e *Emitter) EmitCore(ev CoreEvent, target uint32, payload []byte) {
	frame := make([]byte, FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[0:], uint32(ev))
	binary.BigEndian.PutUint32(frame[4:], target)
	copy(frame[FrameHeaderSize:], payload)

	e.mu.RLock()
	sinks := e.pathfinders
	e.mu.RUnlock()

	if target != Broadcast {
		if int(target) >= len(sinks) {
			e.log.Debugf("DROP %s for unknown pathfinder [%d]", ev, target)
			return
		}
		sinks[target](frame)
		return
	}
	for _, sink := range sinks {
		sink(frame)
	}
}

// FromPathfinder injects an event from a registered pathfinder into
// the core. Handlers registered for ev run synchronously, in
// registration order, before the call returns.
func (e *Emitter) FromPathfinder(sourcePf uint32, ev PathfinderEvent, payload []byte) error {
	e.mu.RLock()
	known := int(sourcePf) < len(e.pathfinders)
	handlers := e.coreHandler[ev]
	e.mu.RUnlock()

	if !known {
		return ErrUnknownPathfinder
	}
	if len(handlers) == 0 {
		e.log.Debugf("no core handler for %s", ev)
		return nil
	}
	for _, h := range handlers {
		h(ev, sourcePf, payload)
	}
	return nil
}

// DecodeFrame splits an encoded core frame back into its parts,
// for pathfinder-side consumption and tests.
func DecodeFrame(frame []byte) (ev uint32, target uint32, payload []byte, err error) {
	if len(frame) < FrameHeaderSize {
		return 0, 0, nil, ErrTooShort
	}
	return binary.BigEndian.Uint32(frame[0:]),
		binary.BigEndian.Uint32(frame[4:]),
		frame[FrameHeaderSize:], nil
}
