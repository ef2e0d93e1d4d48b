// Package store backs the coordinator's external collaborator boundary with
// SQLite: the project directory consulted at session creation and the archive
// that keeps confirmed ideas beyond a session's lifetime.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ideastormhq/ideastorm/internal/session"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path. Use ":memory:" in tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id);

CREATE TABLE IF NOT EXISTS project_collaborators (
    project_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    PRIMARY KEY (project_id, user_id),
    FOREIGN KEY (project_id) REFERENCES projects(id)
);

CREATE TABLE IF NOT EXISTS ideas (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (project_id) REFERENCES projects(id)
);
CREATE INDEX IF NOT EXISTS idx_ideas_project ON ideas(project_id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// CreateProject registers a project with its owner.
func (s *Store) CreateProject(ctx context.Context, name, ownerID string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, owner_id, created_at) VALUES (?, ?, ?, ?)`,
		id, name, ownerID, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create project: %w", err)
	}
	return id, nil
}

// AddCollaborator grants a user collaborator access to a project.
func (s *Store) AddCollaborator(ctx context.Context, projectID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO project_collaborators (project_id, user_id) VALUES (?, ?)`,
		projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to add collaborator: %w", err)
	}
	return nil
}

// ProjectExists implements session.ProjectDirectory.
func (s *Store) ProjectExists(ctx context.Context, projectID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM projects WHERE id = ?`, projectID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check project: %w", err)
	}
	return true, nil
}

// IsProjectOwnerOrCollaborator implements session.ProjectDirectory.
func (s *Store) IsProjectOwnerOrCollaborator(ctx context.Context, userID, projectID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM projects WHERE id = ? AND owner_id = ?
		UNION
		SELECT 1 FROM project_collaborators WHERE project_id = ? AND user_id = ?`,
		projectID, userID, projectID, userID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check project access: %w", err)
	}
	return true, nil
}

// CreateIdea implements session.IdeaArchive.
func (s *Store) CreateIdea(ctx context.Context, projectID, content string) (session.IdeaRef, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ideas (id, project_id, content, created_at) VALUES (?, ?, ?, ?)`,
		id, projectID, content, time.Now().UTC(),
	)
	if err != nil {
		return session.IdeaRef{}, fmt.Errorf("failed to archive idea: %w", err)
	}
	return session.IdeaRef{ID: id}, nil
}
