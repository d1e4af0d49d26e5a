package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"steward/internal/model"
)

type SQLiteStore struct {
	db   *sql.DB
	path string
}

func Open(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = ".steward/steward.db"
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS projects (
  project_id TEXT PRIMARY KEY,
  status TEXT NOT NULL,
  state_json TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  project_id TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  from_state TEXT NOT NULL DEFAULT '',
  to_state TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_events_project ON events(project_id, id);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateProject(state model.ProjectState) error {
	stateBytes, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal project state: %w", err)
	}
	now := time.Now().Format(time.RFC3339)
	_, err = s.db.Exec(
		`INSERT INTO projects (project_id, status, state_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`,
		state.ProjectID, string(state.Status), string(stateBytes), now, now,
	)
	if err != nil {
		return fmt.Errorf("create project %s: %w", state.ProjectID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveProject(state model.ProjectState) error {
	stateBytes, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal project state: %w", err)
	}
	result, err := s.db.Exec(
		`UPDATE projects SET status=?, state_json=?, updated_at=? WHERE project_id=?`,
		string(state.Status), string(stateBytes), time.Now().Format(time.RFC3339), state.ProjectID,
	)
	if err != nil {
		return fmt.Errorf("save project %s: %w", state.ProjectID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("project %s not found", state.ProjectID)
	}
	return nil
}

func (s *SQLiteStore) GetProject(projectID string) (model.ProjectState, error) {
	var stateJSON string
	err := s.db.QueryRow(
		`SELECT state_json FROM projects WHERE project_id=?`, projectID,
	).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return model.ProjectState{}, fmt.Errorf("project %s not found", projectID)
	}
	if err != nil {
		return model.ProjectState{}, fmt.Errorf("get project %s: %w", projectID, err)
	}
	var state model.ProjectState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return model.ProjectState{}, fmt.Errorf("unmarshal project %s state: %w", projectID, err)
	}
	return state, nil
}

// ListProjectIDsByStatus returns ids ordered most recently updated first,
// which is the ordering the reply router relies on.
func (s *SQLiteStore) ListProjectIDsByStatus(status model.ProjectStatus) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT project_id FROM projects WHERE status=? ORDER BY updated_at DESC, project_id`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list projects by status %s: %w", status, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) ListProjects() ([]model.ProjectState, error) {
	rows, err := s.db.Query(`SELECT state_json FROM projects ORDER BY updated_at DESC, project_id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var states []model.ProjectState
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, err
		}
		var state model.ProjectState
		if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
			return nil, fmt.Errorf("unmarshal project state: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

func (s *SQLiteStore) AddEvent(projectID, entityType, entityID, eventType, fromState, toState, message string) error {
	_, err := s.db.Exec(
		`INSERT INTO events (project_id, entity_type, entity_id, event_type, from_state, to_state, message, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, entityType, entityID, eventType, fromState, toState, message,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("add event for %s: %w", projectID, err)
	}
	return nil
}

func (s *SQLiteStore) ListEvents(projectID string, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, project_id, entity_type, entity_id, event_type, from_state, to_state, message, created_at
FROM events WHERE project_id=? ORDER BY id DESC LIMIT ?`,
		projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", projectID, err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var event model.Event
		var createdAt string
		if err := rows.Scan(
			&event.ID, &event.ProjectID, &event.EntityType, &event.EntityID,
			&event.EventType, &event.FromState, &event.ToState, &event.Message, &createdAt,
		); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for event %d: %w", event.ID, err)
		}
		event.CreatedAt = parsed
		events = append(events, event)
	}
	return events, rows.Err()
}
