package session

import "errors"

var (
	// ErrNotFound indicates no session holds the given code, token or id.
	ErrNotFound = errors.New("session not found")
	// ErrSessionExpired indicates the session timed out.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionClosed indicates the session was ended by its facilitator.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionPaused indicates the session is not accepting changes.
	ErrSessionPaused = errors.New("session paused")
	// ErrAlreadyPaused rejects pausing a session that is already paused.
	ErrAlreadyPaused = errors.New("session already paused")
	// ErrNotPaused rejects resuming a session that is not paused.
	ErrNotPaused = errors.New("session not paused")
	// ErrSessionFull indicates the participant cap has been reached.
	ErrSessionFull = errors.New("session full")
	// ErrUnauthorized indicates a control action by a non-facilitator, or an
	// idea mutation by someone other than its author.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidProject indicates the external project-existence check failed.
	ErrInvalidProject = errors.New("project not found")
	// ErrCodeSpaceExhausted indicates the generator ran out of retry attempts.
	// Seeing it means the active session set is a capacity problem, not a
	// routine error.
	ErrCodeSpaceExhausted = errors.New("join code space exhausted")
	// ErrValidation indicates a malformed display name or idea content.
	ErrValidation = errors.New("invalid input")
	// ErrParticipantNotFound indicates an unknown or reclaimed access token.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrIdeaNotFound indicates an unknown or deleted idea.
	ErrIdeaNotFound = errors.New("idea not found")
)
