// Package store persists assistants, rubrics and knowledge documents in
// SQLite. It is the platform's system of record; orchestration itself never
// touches it directly, only through the tools and the HTTP API.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/ndaru/kirana/pkg/orchestrator"
	"github.com/ndaru/kirana/pkg/toolkit"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Assistant is a stored assistant definition, including its orchestration
// configuration.
type Assistant struct {
	ID             string                    `json:"id"`
	Name           string                    `json:"name"`
	Description    string                    `json:"description,omitempty"`
	PromptTemplate string                    `json:"prompt_template"`
	Strategy       orchestrator.StrategyName `json:"strategy"`
	Verbose        bool                      `json:"verbose"`
	FailFast       bool                      `json:"fail_fast"`
	Model          string                    `json:"model,omitempty"`
	Tools          []toolkit.InstanceConfig  `json:"tools,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// OrchestratorConfig derives the per-request orchestration config from the
// stored assistant definition.
func (a *Assistant) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		Strategy: a.Strategy,
		Verbose:  a.Verbose,
		FailFast: a.FailFast,
		Tools:    a.Tools,
	}
}

// Criterion is one row of a rubric.
type Criterion struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Points      int    `json:"points"`
}

// Rubric is a stored grading rubric.
type Rubric struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Criteria  []Criterion `json:"criteria"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Document is one knowledge-base document, kept verbatim; the knowledge
// index derives embeddings from it separately.
type Document struct {
	ID          string    `json:"id"`
	KBID        string    `json:"kb_id"`
	Path        string    `json:"path"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store wraps the SQLite database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (and if needed initializes) the database at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL for better concurrency between the API and the indexer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db, logger: logger}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("Store opened")

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for components that share the database,
// such as the knowledge index.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assistants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		prompt_template TEXT NOT NULL DEFAULT '',
		strategy TEXT NOT NULL DEFAULT 'sequential',
		verbose INTEGER NOT NULL DEFAULT 0,
		fail_fast INTEGER NOT NULL DEFAULT 0,
		model TEXT NOT NULL DEFAULT '',
		tools_json TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rubrics (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		criteria_json TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS knowledge_documents (
		id TEXT PRIMARY KEY,
		kb_id TEXT NOT NULL,
		path TEXT NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(kb_id, path)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_kb ON knowledge_documents(kb_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateAssistant inserts a new assistant and assigns its ID.
func (s *Store) CreateAssistant(ctx context.Context, a *Assistant) error {
	if a.Name == "" {
		return errors.New("assistant name is required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Strategy == "" {
		a.Strategy = orchestrator.StrategySequential
	}

	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	toolsJSON, err := json.Marshal(a.Tools)
	if err != nil {
		return fmt.Errorf("failed to marshal tools: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assistants (id, name, description, prompt_template, strategy, verbose, fail_fast, model, tools_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Description, a.PromptTemplate, string(a.Strategy), a.Verbose, a.FailFast, a.Model, string(toolsJSON), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert assistant: %w", err)
	}

	s.logger.Info().Str("assistant_id", a.ID).Str("name", a.Name).Msg("Assistant created")

	return nil
}

// GetAssistant loads one assistant by ID.
func (s *Store) GetAssistant(ctx context.Context, id string) (*Assistant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, prompt_template, strategy, verbose, fail_fast, model, tools_json, created_at, updated_at
		FROM assistants WHERE id = ?`, id)

	return scanAssistant(row)
}

// ListAssistants returns all assistants ordered by name.
func (s *Store) ListAssistants(ctx context.Context) ([]*Assistant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, prompt_template, strategy, verbose, fail_fast, model, tools_json, created_at, updated_at
		FROM assistants ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assistants: %w", err)
	}
	defer rows.Close()

	assistants := []*Assistant{}
	for rows.Next() {
		a, err := scanAssistant(rows)
		if err != nil {
			return nil, err
		}
		assistants = append(assistants, a)
	}

	return assistants, rows.Err()
}

// UpdateAssistant replaces the stored definition.
func (s *Store) UpdateAssistant(ctx context.Context, a *Assistant) error {
	if a.ID == "" {
		return errors.New("assistant ID is required")
	}

	a.UpdatedAt = time.Now().UTC()

	toolsJSON, err := json.Marshal(a.Tools)
	if err != nil {
		return fmt.Errorf("failed to marshal tools: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE assistants
		SET name = ?, description = ?, prompt_template = ?, strategy = ?, verbose = ?, fail_fast = ?, model = ?, tools_json = ?, updated_at = ?
		WHERE id = ?`,
		a.Name, a.Description, a.PromptTemplate, string(a.Strategy), a.Verbose, a.FailFast, a.Model, string(toolsJSON), a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update assistant: %w", err)
	}

	return requireRowAffected(result)
}

// DeleteAssistant removes an assistant.
func (s *Store) DeleteAssistant(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM assistants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete assistant: %w", err)
	}
	return requireRowAffected(result)
}

// CreateRubric inserts a new rubric.
func (s *Store) CreateRubric(ctx context.Context, r *Rubric) error {
	if r.Title == "" {
		return errors.New("rubric title is required")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	criteriaJSON, err := json.Marshal(r.Criteria)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rubrics (id, title, criteria_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Title, string(criteriaJSON), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rubric: %w", err)
	}

	return nil
}

// GetRubric loads one rubric by ID.
func (s *Store) GetRubric(ctx context.Context, id string) (*Rubric, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, criteria_json, created_at, updated_at FROM rubrics WHERE id = ?`, id)

	r := &Rubric{}
	var criteriaJSON string

	err := row.Scan(&r.ID, &r.Title, &criteriaJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rubric: %w", err)
	}

	if err := json.Unmarshal([]byte(criteriaJSON), &r.Criteria); err != nil {
		return nil, fmt.Errorf("malformed criteria for rubric %s: %w", r.ID, err)
	}

	return r, nil
}

// ListRubrics returns all rubrics ordered by title.
func (s *Store) ListRubrics(ctx context.Context) ([]*Rubric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, criteria_json, created_at, updated_at FROM rubrics ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rubrics: %w", err)
	}
	defer rows.Close()

	rubrics := []*Rubric{}
	for rows.Next() {
		r := &Rubric{}
		var criteriaJSON string
		if err := rows.Scan(&r.ID, &r.Title, &criteriaJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rubric: %w", err)
		}
		if err := json.Unmarshal([]byte(criteriaJSON), &r.Criteria); err != nil {
			return nil, fmt.Errorf("malformed criteria for rubric %s: %w", r.ID, err)
		}
		rubrics = append(rubrics, r)
	}

	return rubrics, rows.Err()
}

// UpdateRubric replaces a stored rubric.
func (s *Store) UpdateRubric(ctx context.Context, r *Rubric) error {
	if r.ID == "" {
		return errors.New("rubric ID is required")
	}

	r.UpdatedAt = time.Now().UTC()

	criteriaJSON, err := json.Marshal(r.Criteria)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE rubrics SET title = ?, criteria_json = ?, updated_at = ? WHERE id = ?`,
		r.Title, string(criteriaJSON), r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update rubric: %w", err)
	}

	return requireRowAffected(result)
}

// DeleteRubric removes a rubric.
func (s *Store) DeleteRubric(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rubrics WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rubric: %w", err)
	}
	return requireRowAffected(result)
}

// UpsertDocument inserts or replaces a knowledge document keyed by
// (kb_id, path).
func (s *Store) UpsertDocument(ctx context.Context, d *Document) error {
	if d.KBID == "" || d.Path == "" {
		return errors.New("document kb_id and path are required")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	d.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_documents (id, kb_id, path, content, content_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(kb_id, path) DO UPDATE SET content = excluded.content, content_hash = excluded.content_hash, updated_at = excluded.updated_at`,
		d.ID, d.KBID, d.Path, d.Content, d.ContentHash, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	return nil
}

// ListDocuments returns all documents of one knowledge base.
func (s *Store) ListDocuments(ctx context.Context, kbID string) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kb_id, path, content, content_hash, updated_at
		FROM knowledge_documents WHERE kb_id = ? ORDER BY path`, kbID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		d := &Document{}
		if err := rows.Scan(&d.ID, &d.KBID, &d.Path, &d.Content, &d.ContentHash, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}

	return docs, rows.Err()
}

// ListKnowledgeBases returns the distinct knowledge base IDs that have at
// least one document.
func (s *Store) ListKnowledgeBases(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT kb_id FROM knowledge_documents ORDER BY kb_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge bases: %w", err)
	}
	defer rows.Close()

	kbs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		kbs = append(kbs, id)
	}

	return kbs, rows.Err()
}

// DeleteDocument removes a document by ID.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return requireRowAffected(result)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAssistant(row rowScanner) (*Assistant, error) {
	a := &Assistant{}
	var strategy, toolsJSON string

	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.PromptTemplate, &strategy, &a.Verbose, &a.FailFast, &a.Model, &toolsJSON, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan assistant: %w", err)
	}

	a.Strategy = orchestrator.StrategyName(strategy)
	if err := json.Unmarshal([]byte(toolsJSON), &a.Tools); err != nil {
		return nil, fmt.Errorf("malformed tools for assistant %s: %w", a.ID, err)
	}

	return a, nil
}

func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
