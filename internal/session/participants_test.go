package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinAndRoster(t *testing.T) {
	m, _ := newTestManager(t)
	info, _ := mustCreate(t, m)

	alice, aliceToken, err := m.Join(info.Code, "Alice")
	require.NoError(t, err)
	require.NotEmpty(t, alice.ID)
	require.NotEmpty(t, aliceToken)
	require.Equal(t, ConnConnected, alice.ConnectionState)

	bob, bobToken, err := m.Join(info.Code, "Bob")
	require.NoError(t, err)
	require.NotEqual(t, alice.ID, bob.ID)
	require.NotEqual(t, aliceToken, bobToken)

	snap, err := m.Snapshot(info.ID)
	require.NoError(t, err)
	require.Len(t, snap.Participants, 2)
	require.Equal(t, "Alice", snap.Participants[0].DisplayName)
	require.Equal(t, "Bob", snap.Participants[1].DisplayName)
}

func TestJoinValidatesDisplayName(t *testing.T) {
	m, _ := newTestManager(t)
	info, _ := mustCreate(t, m)

	_, _, err := m.Join(info.Code, "   ")
	require.ErrorIs(t, err, ErrValidation)
}

func TestJoinPausedSessionRejectedUntilResume(t *testing.T) {
	m, _ := newTestManager(t)
	info, facToken := mustCreate(t, m)

	require.NoError(t, m.PauseSession(info.ID, facToken))
	_, _, err := m.Join(info.Code, "Alice")
	require.ErrorIs(t, err, ErrSessionPaused)

	require.NoError(t, m.ResumeSession(info.ID, facToken))
	_, _, err = m.Join(info.Code, "Alice")
	require.NoError(t, err)
}

func TestJoinEndedSessionReportsClosed(t *testing.T) {
	m, _ := newTestManager(t)
	info, facToken := mustCreate(t, m)

	require.NoError(t, m.EndSession(info.ID, facToken))
	_, _, err := m.Join(info.Code, "Alice")
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestJoinEnforcesCapacity(t *testing.T) {
	m, _ := newTestManager(t)
	info, _ := mustCreate(t, m)

	for i, name := range []string{"A", "B", "C", "D"} {
		_, _, err := m.Join(info.Code, name)
		require.NoError(t, err, "join %d", i)
	}
	_, _, err := m.Join(info.Code, "E")
	require.ErrorIs(t, err, ErrSessionFull)
}

func TestOfflineParticipantFreesCapacitySlot(t *testing.T) {
	m, _ := newTestManager(t)
	info, _ := mustCreate(t, m)

	_, token, err := m.Join(info.Code, "A")
	require.NoError(t, err)
	for _, name := range []string{"B", "C", "D"} {
		_, _, err := m.Join(info.Code, name)
		require.NoError(t, err)
	}
	_, _, err = m.Join(info.Code, "E")
	require.ErrorIs(t, err, ErrSessionFull)

	// Push participant A past the offline window by hand.
	m.mu.RLock()
	ls := m.sessions[info.ID]
	m.mu.RUnlock()
	ls.mu.Lock()
	ls.participantsByToken[token].ConnectionState = ConnOffline
	ls.mu.Unlock()

	_, _, err = m.Join(info.Code, "E")
	require.NoError(t, err)
}

func TestLeaveMarksDisconnectedImmediately(t *testing.T) {
	m, _ := newTestManager(t)
	info, _ := mustCreate(t, m)
	p, token, err := m.Join(info.Code, "Alice")
	require.NoError(t, err)

	sub, err := m.Subscribe(info.ID, 0)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, m.Leave(info.ID, token))

	got, err := m.Participant(info.ID, token)
	require.NoError(t, err)
	require.Equal(t, ConnDisconnected, got.ConnectionState)

	ev := <-sub.Events
	require.Equal(t, EventParticipantLeft, ev.Type)
	require.Equal(t, p.ID, ev.Payload.(ParticipantPayload).ParticipantID)

	// A second leave is a no-op, not a second departure event.
	require.NoError(t, m.Leave(info.ID, token))
	select {
	case extra := <-sub.Events:
		t.Fatalf("unexpected event after repeated leave: %v", extra.Type)
	default:
	}
}

func TestLeaveUnknownToken(t *testing.T) {
	m, _ := newTestManager(t)
	info, _ := mustCreate(t, m)

	require.ErrorIs(t, m.Leave(info.ID, "bogus"), ErrParticipantNotFound)
}

func TestParticipantIdentityScopedToSession(t *testing.T) {
	m, _ := newTestManager(t)
	one, _ := mustCreate(t, m)
	two, _ := mustCreate(t, m)

	_, token, err := m.Join(one.Code, "Alice")
	require.NoError(t, err)

	_, err = m.Participant(two.ID, token)
	require.ErrorIs(t, err, ErrParticipantNotFound)

	_, err = m.SubmitIdea(context.Background(), two.ID, token, "wrong door")
	require.ErrorIs(t, err, ErrParticipantNotFound)
}
