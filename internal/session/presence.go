package session

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Heartbeat records liveness for a participant. Within the grace window it
// also brings a Disconnected participant back to Connected without minting a
// new identity. Heartbeats are accepted while a session is Paused (presence
// is not a content change) but not once it is terminal.
func (m *Manager) Heartbeat(sessionID, token string) (Participant, error) {
	ls, err := m.live(sessionID)
	if err != nil {
		return Participant{}, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	switch ls.info.State {
	case StateEnded:
		return Participant{}, ErrSessionClosed
	case StateExpired:
		return Participant{}, ErrSessionExpired
	}

	p := ls.participantsByToken[token]
	if p == nil || p.ConnectionState == ConnOffline {
		// Past the grace window the seat is gone; the client must rejoin.
		return Participant{}, ErrParticipantNotFound
	}

	now := time.Now().UTC()
	p.LastSeenAt = now
	ls.touchLocked(now)

	rejoined := p.departed
	if p.ConnectionState == ConnDisconnected {
		p.ConnectionState = ConnConnected
	}
	if rejoined {
		p.departed = false
		ls.appendEventLocked(EventParticipantJoined, ParticipantPayload{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
		})
	}
	return *p, nil
}

// sweepPresence ages out silent participants. Detection is deliberately
// approximate: a participant is Disconnected within one sweep interval of
// missing its window, not at the exact instant.
func (m *Manager) sweepPresence(ls *liveSession, now time.Time) {
	missed := m.cfg.MissedWindow()
	offline := m.cfg.OfflineWindow()

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.info.State.Terminal() {
		return
	}

	for _, p := range ls.participantsByID {
		silent := now.Sub(p.LastSeenAt)
		switch p.ConnectionState {
		case ConnConnected:
			if silent > missed {
				p.ConnectionState = ConnDisconnected
				log.Debug().Str("sessionId", ls.info.ID).Str("participantId", p.ID).Msg("participant disconnected")
			}
		case ConnDisconnected:
			if silent > offline {
				p.ConnectionState = ConnOffline
				log.Info().Str("sessionId", ls.info.ID).Str("participantId", p.ID).Msg("participant offline")
				if !p.departed {
					ls.appendEventLocked(EventParticipantLeft, ParticipantPayload{
						ParticipantID: p.ID,
						DisplayName:   p.DisplayName,
					})
				}
			}
		}
	}
}
