package session

import (
	"time"
)

// State is the lifecycle state of a session. Ended and Expired are both
// terminal; Ended records deliberate closure by the facilitator, Expired
// records a TTL or inactivity timeout.
type State string

const (
	StateActive  State = "Active"
	StatePaused  State = "Paused"
	StateEnded   State = "Ended"
	StateExpired State = "Expired"
)

// Terminal reports whether no further transitions are permitted.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateExpired
}

// ConnectionState is a participant's live connectivity status.
type ConnectionState string

const (
	ConnConnected    ConnectionState = "Connected"
	ConnDisconnected ConnectionState = "Disconnected"
	ConnOffline      ConnectionState = "Offline"
)

// SyncStatus tracks whether a submitted idea has been accepted by the
// external idea archive.
type SyncStatus string

const (
	SyncPending   SyncStatus = "Pending"
	SyncConfirmed SyncStatus = "Confirmed"
	SyncRejected  SyncStatus = "Rejected"
)

// Session is the read-only projection of a session handed to callers.
// The facilitator's access token is never part of it.
type Session struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"projectId"`
	FacilitatorID  string    `json:"facilitatorId"`
	Code           string    `json:"code"`
	ScanToken      string    `json:"scanToken"`
	State          State     `json:"state"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

type Participant struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"sessionId"`
	DisplayName     string          `json:"displayName"`
	JoinedAt        time.Time       `json:"joinedAt"`
	LastSeenAt      time.Time       `json:"lastSeenAt"`
	ConnectionState ConnectionState `json:"connectionState"`

	// departed is set by an explicit leave so the presence sweep does not
	// announce the same departure twice.
	departed bool
}

type Idea struct {
	ID             string     `json:"id"`
	SessionID      string     `json:"sessionId"`
	ParticipantID  string     `json:"participantId"`
	Content        string     `json:"content"`
	SequenceNumber uint64     `json:"sequenceNumber"`
	CreatedAt      time.Time  `json:"createdAt"`
	SyncStatus     SyncStatus `json:"syncStatus"`
}

// EventType enumerates the mutations recorded in a session's event log.
type EventType string

const (
	EventIdeaCreated         EventType = "IdeaCreated"
	EventIdeaUpdated         EventType = "IdeaUpdated"
	EventIdeaDeleted         EventType = "IdeaDeleted"
	EventParticipantJoined   EventType = "ParticipantJoined"
	EventParticipantLeft     EventType = "ParticipantLeft"
	EventSessionStateChanged EventType = "SessionStateChanged"
)

// Event is one entry of a session's ordered log. EventID is globally unique
// and doubles as the idempotency key for at-least-once delivery; clients
// deduplicate by it. SequenceNumber is strictly increasing per session.
type Event struct {
	EventID        string    `json:"eventId"`
	SessionID      string    `json:"sessionId"`
	SequenceNumber uint64    `json:"sequenceNumber"`
	Type           EventType `json:"type"`
	Payload        any       `json:"payload"`
	EmittedAt      time.Time `json:"emittedAt"`
}

// ParticipantPayload accompanies ParticipantJoined and ParticipantLeft.
type ParticipantPayload struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
}

// IdeaPayload accompanies the idea event types. Content is empty on
// IdeaDeleted.
type IdeaPayload struct {
	IdeaID         string     `json:"ideaId"`
	ParticipantID  string     `json:"participantId"`
	Content        string     `json:"content,omitempty"`
	SequenceNumber uint64     `json:"sequenceNumber"`
	SyncStatus     SyncStatus `json:"syncStatus,omitempty"`
}

// StatePayload accompanies SessionStateChanged.
type StatePayload struct {
	State State `json:"state"`
}

// Snapshot is the full current-state projection served when a subscriber's
// cursor cannot be backfilled from the retained log.
type Snapshot struct {
	Session      Session       `json:"session"`
	Participants []Participant `json:"participants"`
	Ideas        []Idea        `json:"ideas"`
	Cursor       uint64        `json:"cursor"`
}
