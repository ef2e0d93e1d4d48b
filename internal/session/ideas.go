package session

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxIdeaContentLen = 2000

// SubmitIdea accepts an idea from a participant, assigns it the session's
// next sequence number and hands it to the external archive. The submission
// is broadcast as Pending first so every device shows it immediately; the
// archive's verdict follows as an IdeaUpdated event flipping the sync status.
func (m *Manager) SubmitIdea(ctx context.Context, sessionID, token, content string) (Idea, error) {
	content, err := validIdeaContent(content)
	if err != nil {
		return Idea{}, err
	}
	ls, err := m.live(sessionID)
	if err != nil {
		return Idea{}, err
	}

	ls.mu.Lock()
	if err := ls.mutableStateLocked(); err != nil {
		ls.mu.Unlock()
		return Idea{}, err
	}
	p := ls.participantsByToken[token]
	if p == nil || p.ConnectionState == ConnOffline {
		ls.mu.Unlock()
		return Idea{}, ErrParticipantNotFound
	}

	now := time.Now().UTC()
	idea := &Idea{
		ID:            uuid.NewString(),
		SessionID:     ls.info.ID,
		ParticipantID: p.ID,
		Content:       content,
		CreatedAt:     now,
		SyncStatus:    SyncPending,
		// The idea shares its sequence number with the event announcing it;
		// one counter orders both.
		SequenceNumber: ls.lastSeq + 1,
	}
	ls.appendEventLocked(EventIdeaCreated, IdeaPayload{
		IdeaID:         idea.ID,
		ParticipantID:  idea.ParticipantID,
		Content:        idea.Content,
		SequenceNumber: idea.SequenceNumber,
		SyncStatus:     idea.SyncStatus,
	})
	ls.ideas = append(ls.ideas, idea)
	ls.ideasByID[idea.ID] = idea
	ls.touchLocked(now)
	projectID := ls.info.ProjectID
	ls.mu.Unlock()

	status := SyncConfirmed
	if _, err := m.archive.CreateIdea(ctx, projectID, content); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Str("ideaId", idea.ID).Msg("idea archive rejected submission")
		status = SyncRejected
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	idea.SyncStatus = status
	if ls.info.State.Terminal() {
		// The session closed while the archive call was in flight; the log
		// is sealed, so the verdict only lands in the snapshot projection.
		return *idea, nil
	}
	if _, ok := ls.ideasByID[idea.ID]; !ok {
		// Deleted while the archive call was in flight; the log already
		// ends this idea's story with IdeaDeleted.
		return *idea, nil
	}
	ls.appendEventLocked(EventIdeaUpdated, IdeaPayload{
		IdeaID:         idea.ID,
		ParticipantID:  idea.ParticipantID,
		SequenceNumber: idea.SequenceNumber,
		SyncStatus:     status,
	})
	return *idea, nil
}

// UpdateIdea replaces an idea's content. Only the author or the facilitator
// may do so, and only while the session is Active.
func (m *Manager) UpdateIdea(sessionID, token, ideaID, content string) (Idea, error) {
	content, err := validIdeaContent(content)
	if err != nil {
		return Idea{}, err
	}
	ls, err := m.live(sessionID)
	if err != nil {
		return Idea{}, err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if err := ls.mutableStateLocked(); err != nil {
		return Idea{}, err
	}
	idea, err := ls.authorizedIdeaLocked(token, ideaID)
	if err != nil {
		return Idea{}, err
	}
	now := time.Now().UTC()
	idea.Content = content
	ls.touchLocked(now)
	ls.appendEventLocked(EventIdeaUpdated, IdeaPayload{
		IdeaID:         idea.ID,
		ParticipantID:  idea.ParticipantID,
		Content:        idea.Content,
		SequenceNumber: idea.SequenceNumber,
		SyncStatus:     idea.SyncStatus,
	})
	return *idea, nil
}

// DeleteIdea removes an idea from the session projection. The archived copy,
// if any, is governed by the external service's own retention.
func (m *Manager) DeleteIdea(sessionID, token, ideaID string) error {
	ls, err := m.live(sessionID)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if err := ls.mutableStateLocked(); err != nil {
		return err
	}
	idea, err := ls.authorizedIdeaLocked(token, ideaID)
	if err != nil {
		return err
	}
	delete(ls.ideasByID, idea.ID)
	for i, candidate := range ls.ideas {
		if candidate.ID == idea.ID {
			ls.ideas = append(ls.ideas[:i], ls.ideas[i+1:]...)
			break
		}
	}
	ls.touchLocked(time.Now().UTC())
	ls.appendEventLocked(EventIdeaDeleted, IdeaPayload{
		IdeaID:         idea.ID,
		ParticipantID:  idea.ParticipantID,
		SequenceNumber: idea.SequenceNumber,
	})
	return nil
}

// authorizedIdeaLocked resolves an idea and checks the caller may mutate it:
// the author's access token or the facilitator's. Caller holds ls.mu.
func (ls *liveSession) authorizedIdeaLocked(token, ideaID string) (*Idea, error) {
	idea := ls.ideasByID[ideaID]
	if idea == nil {
		return nil, ErrIdeaNotFound
	}
	if token == ls.facilitatorToken {
		return idea, nil
	}
	p := ls.participantsByToken[token]
	if p == nil {
		return nil, ErrParticipantNotFound
	}
	if p.ID != idea.ParticipantID {
		return nil, ErrUnauthorized
	}
	return idea, nil
}

func validIdeaContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > maxIdeaContentLen {
		return "", fmt.Errorf("%w: idea content must be 1-%d characters", ErrValidation, maxIdeaContentLen)
	}
	return content, nil
}
