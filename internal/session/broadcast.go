package session

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type subscriber struct {
	id string
	ch chan Event
}

// Subscription is one client's ordered view of a session's event stream.
// Events delivers in strict sequence order until the subscription is closed,
// either by the client, by session termination, or because the subscriber's
// queue overflowed. A closed channel means: resubscribe and resync.
type Subscription struct {
	ID       string
	Backfill Backfill
	Events   <-chan Event

	cancel func()
}

// Close detaches the subscription. Safe to call more than once; it never
// affects the session, other subscribers, or the log itself.
func (s *Subscription) Close() {
	s.cancel()
}

// Backfill is the subscribe-time reply. Mode "backlog" carries the contiguous
// events after the client's cursor; mode "snapshot" means the cursor was too
// old or unknown and the client must replace its projection wholesale.
type Backfill struct {
	Mode     string    `json:"mode"` // "backlog" | "snapshot"
	Events   []Event   `json:"events,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Cursor   uint64    `json:"cursor"`
}

const (
	BackfillBacklog  = "backlog"
	BackfillSnapshot = "snapshot"
)

// Subscribe attaches a subscriber at the given cursor (0 for a fresh join).
// Subscribing to a terminal session still works and yields its retained
// history; no further events will follow.
func (m *Manager) Subscribe(sessionID string, cursor uint64) (*Subscription, error) {
	ls, err := m.live(sessionID)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	sub := &subscriber{
		id: uuid.NewString(),
		ch: make(chan Event, m.cfg.SubscriberQueue),
	}

	backfill := ls.backfillLocked(cursor)
	if !ls.info.State.Terminal() {
		ls.subs[sub.id] = sub
	} else {
		close(sub.ch)
	}

	return &Subscription{
		ID:       sub.id,
		Backfill: backfill,
		Events:   sub.ch,
		cancel: func() {
			ls.mu.Lock()
			defer ls.mu.Unlock()
			if _, ok := ls.subs[sub.id]; ok {
				delete(ls.subs, sub.id)
				close(sub.ch)
			}
		},
	}, nil
}

// backfillLocked decides between contiguous replay and full resync. Caller
// holds ls.mu.
func (ls *liveSession) backfillLocked(cursor uint64) Backfill {
	if cursor <= ls.lastSeq && ls.contiguousFromLocked(cursor) {
		events := make([]Event, 0)
		for _, ev := range ls.logTail {
			if ev.SequenceNumber > cursor {
				events = append(events, ev)
			}
		}
		return Backfill{Mode: BackfillBacklog, Events: events, Cursor: ls.lastSeq}
	}
	snap := ls.snapshotLocked()
	return Backfill{Mode: BackfillSnapshot, Snapshot: &snap, Cursor: ls.lastSeq}
}

// contiguousFromLocked reports whether every event after cursor is still
// retained.
func (ls *liveSession) contiguousFromLocked(cursor uint64) bool {
	if len(ls.logTail) == 0 {
		return cursor == ls.lastSeq
	}
	return cursor+1 >= ls.logTail[0].SequenceNumber
}

// appendEventLocked assigns the next sequence number, records the event in
// the retained tail and fans it out. A subscriber that cannot keep up is
// dropped on the spot; delivery never blocks the session's mutation path.
// Caller holds ls.mu.
func (ls *liveSession) appendEventLocked(kind EventType, payload any) Event {
	ls.lastSeq++
	ev := Event{
		EventID:        uuid.NewString(),
		SessionID:      ls.info.ID,
		SequenceNumber: ls.lastSeq,
		Type:           kind,
		Payload:        payload,
		EmittedAt:      time.Now().UTC(),
	}

	ls.logTail = append(ls.logTail, ev)
	if retain := ls.retain; retain > 0 && len(ls.logTail) > retain {
		trimmed := make([]Event, retain)
		copy(trimmed, ls.logTail[len(ls.logTail)-retain:])
		ls.logTail = trimmed
	}

	for id, sub := range ls.subs {
		select {
		case sub.ch <- ev:
		default:
			// Slow consumer: cut it loose, it will resync via snapshot.
			delete(ls.subs, id)
			close(sub.ch)
			log.Warn().Str("sessionId", ls.info.ID).Str("subscriberId", id).Msg("subscriber queue overflow, dropping")
		}
	}
	return ev
}

func (ls *liveSession) closeSubscribersLocked() {
	for id, sub := range ls.subs {
		delete(ls.subs, id)
		close(sub.ch)
	}
}

// snapshotLocked builds the full projection plus a fresh cursor. Caller holds
// ls.mu.
func (ls *liveSession) snapshotLocked() Snapshot {
	participants := make([]Participant, 0, len(ls.participantsByID))
	for _, p := range ls.participantsByID {
		if p.ConnectionState == ConnOffline || p.departed {
			continue
		}
		participants = append(participants, *p)
	}
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].ID < participants[j].ID
		}
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})

	ideas := make([]Idea, 0, len(ls.ideas))
	for _, idea := range ls.ideas {
		ideas = append(ideas, *idea)
	}
	sort.Slice(ideas, func(i, j int) bool {
		return ideas[i].SequenceNumber < ideas[j].SequenceNumber
	})

	return Snapshot{
		Session:      ls.info,
		Participants: participants,
		Ideas:        ideas,
		Cursor:       ls.lastSeq,
	}
}
