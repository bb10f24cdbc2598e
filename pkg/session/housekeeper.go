package session

import (
	"github.com/backwardn/cjdns/pkg/cryptoauth"
	"github.com/backwardn/cjdns/pkg/eventbus"
)

// Housekeep runs one timeout scan: expired sessions are removed with
// a SESSION_ENDED notice, maintained sessions overdue for a search
// get one re-triggered, maintained sessions stuck before key exchange
// are re-offered to the pathfinders, and stale parked messages are
// dropped. Start runs this periodically; tests call it directly.
func (m *Manager) Housekeep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkTimedOutSessions()
	m.checkTimedOutBuffers()
}

func (m *Manager) checkTimedOutSessions() {
	timeoutMs := m.config.SessionTimeout.Milliseconds()
	searchAfterMs := m.config.SessionSearchAfter.Milliseconds()

	// Back to front so removal does not disturb slots yet to visit.
	m.table.forEachReverse(func(s *Session) {
		now := m.nowMs()

		if now-s.timeOfKeepAliveIn > timeoutMs {
			m.log.Debugf("session [%s] ended", s.ip6)
			m.sendSessionEvent(s, s.sendSwitchLabel, eventbus.Broadcast,
				eventbus.CoreSessionEnded)
			m.table.Remove(s)
			return
		}

		if !s.maintainSession {
			// The pathfinder maintains its own sessions itself.
			return
		}
		if now-s.lastSearchTime >= searchAfterMs {
			m.log.Debugf("session [%s] triggering search", s.ip6)
			m.triggerSearch(s.ip6, s.version)
			s.lastSearchTime = now
		} else if s.ca.State() < cryptoauth.StateReceivedKey {
			m.log.Debugf("session [%s] still unsetup", s.ip6)
			m.unsetupSession(s)
		}
	})
}

func (m *Manager) checkTimedOutBuffers() {
	if n := m.bufs.expire(m.nowMs(), m.config.BufferTimeout.Milliseconds()); n > 0 {
		m.log.Debugf("DROP [%d] parked messages whose searches never completed", n)
	}
}
