package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Window math for testConfig: missed = 3 * 10s = 30s, offline = 30s + 2m.

func TestHeartbeatKeepsParticipantConnected(t *testing.T) {
	m, _ := newTestManager(t)
	info, _ := mustCreate(t, m)
	_, token, err := m.Join(info.Code, "Alice")
	require.NoError(t, err)

	// Sweeping before the missed window never disconnects.
	m.sweep(time.Now().UTC().Add(20 * time.Second))

	got, err := m.Participant(info.ID, token)
	require.NoError(t, err)
	require.Equal(t, ConnConnected, got.ConnectionState)
}

func TestSilenceTransitionsConnectedToDisconnectedToOffline(t *testing.T) {
	m, _ := newTestManager(t)
	info, _ := mustCreate(t, m)
	p, token, err := m.Join(info.Code, "Alice")
	require.NoError(t, err)

	sub, err := m.Subscribe(info.ID, 0)
	require.NoError(t, err)
	defer sub.Close()

	m.sweep(time.Now().UTC().Add(31 * time.Second))
	got, err := m.Participant(info.ID, token)
	require.NoError(t, err)
	require.Equal(t, ConnDisconnected, got.ConnectionState)

	m.sweep(time.Now().UTC().Add(31*time.Second + 2*time.Minute + time.Second))
	got, err = m.Participant(info.ID, token)
	require.NoError(t, err)
	require.Equal(t, ConnOffline, got.ConnectionState)

	ev := <-sub.Events
	require.Equal(t, EventParticipantLeft, ev.Type)
	require.Equal(t, p.ID, ev.Payload.(ParticipantPayload).ParticipantID)
}

func TestReconnectionWithinGracePreservesIdentity(t *testing.T) {
	m, archive := newTestManager(t)
	info, _ := mustCreate(t, m)
	p, token, err := m.Join(info.Code, "Alice")
	require.NoError(t, err)

	_, err = m.SubmitIdea(context.Background(), info.ID, token, "first thought")
	require.NoError(t, err)

	// Silent past the missed window but inside the grace window.
	m.sweep(time.Now().UTC().Add(45 * time.Second))
	got, err := m.Participant(info.ID, token)
	require.NoError(t, err)
	require.Equal(t, ConnDisconnected, got.ConnectionState)

	back, err := m.Heartbeat(info.ID, token)
	require.NoError(t, err)
	require.Equal(t, p.ID, back.ID, "reconnection must not mint a new identity")
	require.Equal(t, ConnConnected, back.ConnectionState)

	snap, err := m.Snapshot(info.ID)
	require.NoError(t, err)
	require.Len(t, snap.Ideas, 1)
	require.Equal(t, p.ID, snap.Ideas[0].ParticipantID, "earlier submissions stay attributed")
	require.Len(t, archive.created, 1)
}

func TestHeartbeatAfterOfflineRequiresRejoin(t *testing.T) {
	m, _ := newTestManager(t)
	info, _ := mustCreate(t, m)
	_, token, err := m.Join(info.Code, "Alice")
	require.NoError(t, err)

	m.sweep(time.Now().UTC().Add(31 * time.Second))
	m.sweep(time.Now().UTC().Add(31*time.Second + 2*time.Minute + time.Second))

	_, err = m.Heartbeat(info.ID, token)
	require.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestHeartbeatAllowedWhilePaused(t *testing.T) {
	m, _ := newTestManager(t)
	info, facToken := mustCreate(t, m)
	_, token, err := m.Join(info.Code, "Alice")
	require.NoError(t, err)

	require.NoError(t, m.PauseSession(info.ID, facToken))
	_, err = m.Heartbeat(info.ID, token)
	require.NoError(t, err)
}

func TestHeartbeatRejectedOnceTerminal(t *testing.T) {
	m, _ := newTestManager(t)
	info, facToken := mustCreate(t, m)
	_, token, err := m.Join(info.Code, "Alice")
	require.NoError(t, err)

	require.NoError(t, m.EndSession(info.ID, facToken))
	_, err = m.Heartbeat(info.ID, token)
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestHeartbeatAfterExplicitLeaveRestoresSeat(t *testing.T) {
	m, _ := newTestManager(t)
	info, _ := mustCreate(t, m)
	p, token, err := m.Join(info.Code, "Alice")
	require.NoError(t, err)

	require.NoError(t, m.Leave(info.ID, token))

	sub, err := m.Subscribe(info.ID, 0)
	require.NoError(t, err)
	defer sub.Close()

	back, err := m.Heartbeat(info.ID, token)
	require.NoError(t, err)
	require.Equal(t, p.ID, back.ID)
	require.Equal(t, ConnConnected, back.ConnectionState)

	ev := <-sub.Events
	require.Equal(t, EventParticipantJoined, ev.Type)
}
