package session

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxDisplayNameLen = 64

// Join admits a participant by join code. The returned token is the
// participant's access handle: it authenticates every later call and is what
// makes an identity survive reconnects. Only Active sessions accept joins;
// a paused session means the facilitator is not taking changes right now.
func (m *Manager) Join(code, displayName string) (Participant, string, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || utf8.RuneCountInString(displayName) > maxDisplayNameLen {
		return Participant{}, "", fmt.Errorf("%w: display name must be 1-%d characters", ErrValidation, maxDisplayNameLen)
	}

	info, err := m.ResolveByCode(code)
	if err != nil {
		return Participant{}, "", err
	}
	m.mu.RLock()
	ls := m.sessions[info.ID]
	m.mu.RUnlock()
	if ls == nil {
		return Participant{}, "", ErrNotFound
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if err := ls.mutableStateLocked(); err != nil {
		return Participant{}, "", err
	}
	if ls.liveParticipantCountLocked() >= m.cfg.MaxParticipants {
		return Participant{}, "", ErrSessionFull
	}

	now := time.Now().UTC()
	p := &Participant{
		ID:              uuid.NewString(),
		SessionID:       ls.info.ID,
		DisplayName:     displayName,
		JoinedAt:        now,
		LastSeenAt:      now,
		ConnectionState: ConnConnected,
	}
	token := uuid.NewString()
	ls.participantsByToken[token] = p
	ls.participantsByID[p.ID] = p
	ls.touchLocked(now)
	ls.appendEventLocked(EventParticipantJoined, ParticipantPayload{
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
	})
	return *p, token, nil
}

// Leave is an explicit departure: the participant is marked Disconnected
// right away instead of waiting out the heartbeat window. Identity and
// submission history are retained; rejoining with the same token within the
// grace window restores the seat.
func (m *Manager) Leave(sessionID, token string) error {
	ls, err := m.live(sessionID)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	p := ls.participantsByToken[token]
	if p == nil || p.ConnectionState == ConnOffline {
		return ErrParticipantNotFound
	}
	if p.departed {
		return nil
	}
	now := time.Now().UTC()
	p.ConnectionState = ConnDisconnected
	p.LastSeenAt = now
	p.departed = true
	ls.touchLocked(now)
	ls.appendEventLocked(EventParticipantLeft, ParticipantPayload{
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
	})
	return nil
}

// Participant resolves an access token to its participant record.
func (m *Manager) Participant(sessionID, token string) (Participant, error) {
	ls, err := m.live(sessionID)
	if err != nil {
		return Participant{}, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	p := ls.participantsByToken[token]
	if p == nil {
		return Participant{}, ErrParticipantNotFound
	}
	return *p, nil
}

// liveParticipantCountLocked counts the seats charged against the capacity
// cap. Offline participants have given their slot back; Disconnected ones
// are still "recently present" and keep theirs. Caller holds ls.mu.
func (ls *liveSession) liveParticipantCountLocked() int {
	count := 0
	for _, p := range ls.participantsByID {
		if p.ConnectionState != ConnOffline {
			count++
		}
	}
	return count
}
