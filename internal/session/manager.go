package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ideastormhq/ideastorm/internal/config"
	"github.com/rs/zerolog/log"
)

// Manager owns every live session. All state shared between components (the
// session records, the code index, the per-session event logs) lives behind
// it and is mutated only through its operations.
//
// Locking: the registry maps are guarded by mu; each session carries its own
// mutex serializing every mutation of that session. Lock order is always
// registry before session.
type Manager struct {
	cfg      *config.Config
	projects ProjectDirectory
	archive  IdeaArchive
	codes    codeGenerator

	mu          sync.RWMutex
	sessions    map[string]*liveSession // session id -> record
	byCode      map[string]string       // code -> latest owning session id
	byScanToken map[string]string       // scan token -> latest owning session id
	liveCodes   map[string]string       // codes held by non-terminal sessions
}

// liveSession is the mutable record behind one session. Everything below mu
// is guarded by it.
type liveSession struct {
	facilitatorToken string

	mu   sync.Mutex
	info Session

	participantsByToken map[string]*Participant
	participantsByID    map[string]*Participant

	ideas     []*Idea
	ideasByID map[string]*Idea

	lastSeq uint64
	logTail []Event
	retain  int
	subs    map[string]*subscriber
}

func NewManager(cfg *config.Config, projects ProjectDirectory, archive IdeaArchive) *Manager {
	return &Manager{
		cfg:      cfg,
		projects: projects,
		archive:  archive,
		codes: codeGenerator{
			length:      cfg.CodeLength,
			maxAttempts: cfg.CodeMaxAttempts,
		},
		sessions:    make(map[string]*liveSession),
		byCode:      make(map[string]string),
		byScanToken: make(map[string]string),
		liveCodes:   make(map[string]string),
	}
}

// Start launches the janitor that expires sessions and ages out silent
// participants. It returns immediately; the loop stops when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.sweep(now.UTC())
			}
		}
	}()
}

// CreateSession opens a session for a facilitator. The returned token is the
// facilitator's ephemeral credential for control actions; it is never part of
// any broadcast payload.
func (m *Manager) CreateSession(ctx context.Context, projectID, facilitatorID string, ttl time.Duration) (Session, string, error) {
	projectID = strings.TrimSpace(projectID)
	facilitatorID = strings.TrimSpace(facilitatorID)
	if projectID == "" || facilitatorID == "" {
		return Session{}, "", fmt.Errorf("%w: project and facilitator ids are required", ErrValidation)
	}
	exists, err := m.projects.ProjectExists(ctx, projectID)
	if err != nil {
		return Session{}, "", fmt.Errorf("checking project: %w", err)
	}
	if !exists {
		return Session{}, "", ErrInvalidProject
	}
	if ttl <= 0 {
		ttl = m.cfg.SessionTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	code, scanToken, err := m.codes.next(func(candidate string) bool {
		_, held := m.liveCodes[candidate]
		return held
	})
	if err != nil {
		return Session{}, "", err
	}

	now := time.Now().UTC()
	ls := &liveSession{
		facilitatorToken: uuid.NewString(),
		info: Session{
			ID:             uuid.NewString(),
			ProjectID:      projectID,
			FacilitatorID:  facilitatorID,
			Code:           code,
			ScanToken:      scanToken,
			State:          StateActive,
			CreatedAt:      now,
			ExpiresAt:      now.Add(ttl),
			LastActivityAt: now,
		},
		participantsByToken: make(map[string]*Participant),
		participantsByID:    make(map[string]*Participant),
		ideasByID:           make(map[string]*Idea),
		retain:              m.cfg.EventRetention,
		subs:                make(map[string]*subscriber),
	}

	m.sessions[ls.info.ID] = ls
	m.byCode[code] = ls.info.ID
	m.byScanToken[scanToken] = ls.info.ID
	m.liveCodes[code] = ls.info.ID
	return ls.info, ls.facilitatorToken, nil
}

// PauseSession stops the session from accepting joins and submissions.
// Pausing an already-paused session is an explicit error so client bugs
// surface instead of hiding behind a silent success.
func (m *Manager) PauseSession(sessionID, actorToken string) error {
	return m.setPause(sessionID, actorToken, StatePaused)
}

// ResumeSession returns a paused session to Active.
func (m *Manager) ResumeSession(sessionID, actorToken string) error {
	return m.setPause(sessionID, actorToken, StateActive)
}

func (m *Manager) setPause(sessionID, actorToken string, target State) error {
	ls, err := m.live(sessionID)
	if err != nil {
		return err
	}
	if ls.facilitatorToken != actorToken {
		return ErrUnauthorized
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	switch ls.info.State {
	case StateEnded:
		return ErrSessionClosed
	case StateExpired:
		return ErrSessionExpired
	case target:
		if target == StatePaused {
			return ErrAlreadyPaused
		}
		return ErrNotPaused
	}
	ls.info.State = target
	ls.touchLocked(time.Now().UTC())
	ls.appendEventLocked(EventSessionStateChanged, StatePayload{State: target})
	return nil
}

// EndSession deliberately closes a session. Repeated calls succeed without
// side effect; ending an expired session reports the expiry instead.
func (m *Manager) EndSession(sessionID, actorToken string) error {
	ls, err := m.live(sessionID)
	if err != nil {
		return err
	}
	if ls.facilitatorToken != actorToken {
		return ErrUnauthorized
	}
	return m.terminate(ls, StateEnded)
}

// terminate moves a session into a terminal state, releases its join code
// for reuse and closes all subscriber streams after the final event.
func (m *Manager) terminate(ls *liveSession, target State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls.mu.Lock()
	defer ls.mu.Unlock()

	switch ls.info.State {
	case StateEnded:
		if target == StateEnded {
			return nil
		}
		return ErrSessionClosed
	case StateExpired:
		if target == StateExpired {
			return nil
		}
		return ErrSessionExpired
	}

	ls.info.State = target
	ls.info.LastActivityAt = time.Now().UTC()
	delete(m.liveCodes, ls.info.Code)
	ls.appendEventLocked(EventSessionStateChanged, StatePayload{State: target})
	ls.closeSubscribersLocked()
	return nil
}

// ResolveByCode maps a (case-insensitively normalized) join code to its
// session. Terminal sessions resolve with an error naming why they are gone,
// so joiners can tell "no such code" from "too late".
func (m *Manager) ResolveByCode(code string) (Session, error) {
	m.mu.RLock()
	id := m.byCode[NormalizeCode(code)]
	m.mu.RUnlock()
	return m.resolve(id)
}

// ResolveByScanToken maps a scan token to its session.
func (m *Manager) ResolveByScanToken(token string) (Session, error) {
	m.mu.RLock()
	id := m.byScanToken[strings.TrimSpace(token)]
	m.mu.RUnlock()
	return m.resolve(id)
}

func (m *Manager) resolve(sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, ErrNotFound
	}
	ls, err := m.live(sessionID)
	if err != nil {
		return Session{}, err
	}
	info := ls.infoCopy()
	switch info.State {
	case StateEnded:
		return info, ErrSessionClosed
	case StateExpired:
		return info, ErrSessionExpired
	}
	return info, nil
}

// Snapshot returns the full current-state projection of a session. Works for
// terminal sessions too; they are retained read-only.
func (m *Manager) Snapshot(sessionID string) (Snapshot, error) {
	ls, err := m.live(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.snapshotLocked(), nil
}

// live looks up a session and applies lazy expiry so a session never appears
// Active past its TTL, even between janitor runs.
func (m *Manager) live(sessionID string) (*liveSession, error) {
	m.mu.RLock()
	ls := m.sessions[sessionID]
	m.mu.RUnlock()
	if ls == nil {
		return nil, ErrNotFound
	}
	m.expireIfDue(ls, time.Now().UTC())
	return ls, nil
}

func (m *Manager) expireIfDue(ls *liveSession, now time.Time) {
	ls.mu.Lock()
	due := !ls.info.State.Terminal() &&
		(now.After(ls.info.ExpiresAt) || now.Sub(ls.info.LastActivityAt) > m.cfg.InactivityTimeout)
	id := ls.info.ID
	code := ls.info.Code
	ls.mu.Unlock()
	if !due {
		return
	}
	if err := m.terminate(ls, StateExpired); err == nil {
		log.Info().Str("sessionId", id).Str("code", code).Msg("session expired")
	}
}

func (m *Manager) sweep(now time.Time) {
	m.mu.RLock()
	all := make([]*liveSession, 0, len(m.sessions))
	for _, ls := range m.sessions {
		all = append(all, ls)
	}
	m.mu.RUnlock()
	for _, ls := range all {
		m.expireIfDue(ls, now)
		m.sweepPresence(ls, now)
	}
}

func (ls *liveSession) infoCopy() Session {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.info
}

// touchLocked records activity for the inactivity expiry. Caller holds ls.mu.
func (ls *liveSession) touchLocked(now time.Time) {
	ls.info.LastActivityAt = now
}

// mutableStateLocked rejects any mutation of a session that is not accepting
// changes. Caller holds ls.mu.
func (ls *liveSession) mutableStateLocked() error {
	switch ls.info.State {
	case StateEnded:
		return ErrSessionClosed
	case StateExpired:
		return ErrSessionExpired
	case StatePaused:
		return ErrSessionPaused
	}
	return nil
}
