package session

import "context"

// IdeaRef identifies an idea persisted by the external archive.
type IdeaRef struct {
	ID string
}

// ProjectDirectory answers project questions on behalf of the external
// project service. Facilitator authorization for session creation is checked
// by the caller through IsProjectOwnerOrCollaborator; the manager itself only
// re-checks existence.
type ProjectDirectory interface {
	ProjectExists(ctx context.Context, projectID string) (bool, error)
	IsProjectOwnerOrCollaborator(ctx context.Context, userID, projectID string) (bool, error)
}

// IdeaArchive persists confirmed submissions outside the session's lifetime.
type IdeaArchive interface {
	CreateIdea(ctx context.Context, projectID, content string) (IdeaRef, error)
}
