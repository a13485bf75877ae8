// Package knowledge maintains the searchable index behind the knowledge
// retrieval tool: sqlite-vec embeddings plus an FTS5 keyword table over the
// stored documents, merged with weighted hybrid scoring.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/rs/zerolog"

	"github.com/ndaru/kirana/internal/store"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// Result is one retrieved passage with its relevance score.
type Result struct {
	DocID   string  `json:"doc_id"`
	Path    string  `json:"path"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Searcher is the retrieval interface the knowledge tool consumes.
type Searcher interface {
	Search(ctx context.Context, kbID, query string, topK int) ([]Result, error)
}

// DocumentSource feeds documents into the index.
type DocumentSource interface {
	ListDocuments(ctx context.Context, kbID string) ([]*store.Document, error)
	ListKnowledgeBases(ctx context.Context) ([]string, error)
}

const (
	maxChunkSize  = 1200
	vectorWeight  = 0.7
	keywordWeight = 0.3
	candidateCap  = 100
)

// Index is the hybrid search index. It shares the store's database.
type Index struct {
	db       *sql.DB
	source   DocumentSource
	embedder EmbeddingProvider
	logger   zerolog.Logger

	mu    sync.Mutex
	dirty bool
}

// NewIndex creates the index tables and returns an index ready to sync.
func NewIndex(db *sql.DB, source DocumentSource, embedder EmbeddingProvider, logger zerolog.Logger) (*Index, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if embedder == nil {
		return nil, errors.New("embedding provider is required")
	}

	idx := &Index{
		db:       db,
		source:   source,
		embedder: embedder,
		logger:   logger,
		dirty:    true, // trigger initial sync
	}

	if err := idx.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}

	return idx, nil
}

func (idx *Index) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kb_chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		kb_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		content TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_kb_chunks_doc ON kb_chunks(doc_id);
	CREATE INDEX IF NOT EXISTS idx_kb_chunks_kb ON kb_chunks(kb_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS kb_chunks_fts USING fts5(
		chunk_id UNINDEXED,
		kb_id UNINDEXED,
		content,
		tokenize='porter unicode61'
	);

	CREATE TABLE IF NOT EXISTS kb_indexed_documents (
		doc_id TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL
	);
	`

	if _, err := idx.db.Exec(schema); err != nil {
		return err
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS kb_embeddings USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, idx.embedder.Dimension())

	if _, err := idx.db.Exec(vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	return nil
}

// MarkDirty flags the index for re-sync; called by the document watcher and
// by the API when documents change.
func (idx *Index) MarkDirty() {
	idx.mu.Lock()
	idx.dirty = true
	idx.mu.Unlock()
}

// Dirty reports whether a sync is pending.
func (idx *Index) Dirty() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.dirty
}

// SyncAll re-indexes every knowledge base whose documents changed.
func (idx *Index) SyncAll(ctx context.Context) error {
	kbs, err := idx.source.ListKnowledgeBases(ctx)
	if err != nil {
		return fmt.Errorf("failed to list knowledge bases: %w", err)
	}

	for _, kbID := range kbs {
		if err := idx.SyncKB(ctx, kbID); err != nil {
			return err
		}
	}

	idx.mu.Lock()
	idx.dirty = false
	idx.mu.Unlock()

	return nil
}

// SyncKB re-indexes one knowledge base. Documents whose content hash is
// unchanged are skipped.
func (idx *Index) SyncKB(ctx context.Context, kbID string) error {
	docs, err := idx.source.ListDocuments(ctx, kbID)
	if err != nil {
		return fmt.Errorf("failed to list documents for %s: %w", kbID, err)
	}

	indexed := 0
	for _, doc := range docs {
		var existing string
		err := idx.db.QueryRowContext(ctx, `SELECT content_hash FROM kb_indexed_documents WHERE doc_id = ?`, doc.ID).Scan(&existing)
		if err == nil && existing == doc.ContentHash {
			continue
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check indexed document: %w", err)
		}

		if err := idx.reindexDocument(ctx, doc); err != nil {
			return err
		}
		indexed++
	}

	if indexed > 0 {
		idx.logger.Info().
			Str("kb_id", kbID).
			Int("documents", indexed).
			Msg("Knowledge base synced")
	}

	return nil
}

func (idx *Index) reindexDocument(ctx context.Context, doc *store.Document) error {
	if err := idx.removeDocument(ctx, doc.ID); err != nil {
		return err
	}

	chunks := chunkText(doc.Content)
	if len(chunks) == 0 {
		_, err := idx.db.ExecContext(ctx, `
			INSERT INTO kb_indexed_documents (doc_id, content_hash) VALUES (?, ?)
			ON CONFLICT(doc_id) DO UPDATE SET content_hash = excluded.content_hash`,
			doc.ID, doc.ContentHash)
		return err
	}

	embeddings, err := idx.embedder.GenerateEmbeddings(ctx, chunks)
	if err != nil {
		return fmt.Errorf("failed to embed document %s: %w", doc.Path, err)
	}

	for seq, content := range chunks {
		chunkID := fmt.Sprintf("%s:%d", doc.ID, seq)

		if _, err := idx.db.ExecContext(ctx, `
			INSERT INTO kb_chunks (id, doc_id, kb_id, seq, content) VALUES (?, ?, ?, ?, ?)`,
			chunkID, doc.ID, doc.KBID, seq, content); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}

		if _, err := idx.db.ExecContext(ctx, `
			INSERT INTO kb_chunks_fts (chunk_id, kb_id, content) VALUES (?, ?, ?)`,
			chunkID, doc.KBID, content); err != nil {
			return fmt.Errorf("failed to insert chunk into FTS: %w", err)
		}

		embeddingJSON, err := json.Marshal(embeddings[seq])
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		if _, err := idx.db.ExecContext(ctx, `
			INSERT INTO kb_embeddings (chunk_id, embedding) VALUES (?, ?)`,
			chunkID, string(embeddingJSON)); err != nil {
			return fmt.Errorf("failed to insert embedding: %w", err)
		}
	}

	_, err = idx.db.ExecContext(ctx, `
		INSERT INTO kb_indexed_documents (doc_id, content_hash) VALUES (?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET content_hash = excluded.content_hash`,
		doc.ID, doc.ContentHash)

	return err
}

func (idx *Index) removeDocument(ctx context.Context, docID string) error {
	rows, err := idx.db.QueryContext(ctx, `SELECT id FROM kb_chunks WHERE doc_id = ?`, docID)
	if err != nil {
		return err
	}
	defer rows.Close()

	chunkIDs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		chunkIDs = append(chunkIDs, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range chunkIDs {
		if _, err := idx.db.ExecContext(ctx, `DELETE FROM kb_chunks_fts WHERE chunk_id = ?`, id); err != nil {
			return err
		}
		if _, err := idx.db.ExecContext(ctx, `DELETE FROM kb_embeddings WHERE chunk_id = ?`, id); err != nil {
			return err
		}
	}

	_, err = idx.db.ExecContext(ctx, `DELETE FROM kb_chunks WHERE doc_id = ?`, docID)
	return err
}

// Search performs hybrid retrieval over one knowledge base. A pending sync
// is applied first so results reflect the current documents.
func (idx *Index) Search(ctx context.Context, kbID, query string, topK int) ([]Result, error) {
	if query == "" {
		return []Result{}, nil
	}
	if topK <= 0 {
		topK = 5
	}

	if idx.Dirty() {
		if err := idx.SyncAll(ctx); err != nil {
			idx.logger.Warn().Err(err).Msg("Sync failed before search")
		}
	}

	vectorScores, vectorErr := idx.vectorSearch(ctx, kbID, query)
	keywordScores, keywordErr := idx.keywordSearch(ctx, kbID, query)

	if vectorErr != nil {
		idx.logger.Warn().Err(vectorErr).Msg("Vector search failed, using keyword only")
	}
	if keywordErr != nil {
		idx.logger.Warn().Err(keywordErr).Msg("Keyword search failed, using vector only")
	}
	if vectorErr != nil && keywordErr != nil {
		return nil, fmt.Errorf("both search methods failed: %v; %v", vectorErr, keywordErr)
	}

	merged := mergeScores(vectorScores, keywordScores)
	if len(merged) > topK {
		merged = merged[:topK]
	}

	return idx.loadResults(ctx, merged)
}

func (idx *Index) vectorSearch(ctx context.Context, kbID, query string) (map[string]float64, error) {
	embedding, err := idx.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT e.chunk_id, vec_distance_cosine(e.embedding, ?) AS distance
		FROM kb_embeddings e
		JOIN kb_chunks c ON c.id = e.chunk_id
		WHERE c.kb_id = ?
		ORDER BY distance ASC
		LIMIT ?`, string(embeddingJSON), kbID, candidateCap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := make(map[string]float64)
	for rows.Next() {
		var chunkID string
		var distance float64
		if err := rows.Scan(&chunkID, &distance); err != nil {
			return nil, err
		}
		// Cosine distance to similarity in [0, 1].
		scores[chunkID] = 1 - distance/2
	}

	return scores, rows.Err()
}

func (idx *Index) keywordSearch(ctx context.Context, kbID, query string) (map[string]float64, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT chunk_id, bm25(kb_chunks_fts) AS score
		FROM kb_chunks_fts
		WHERE kb_chunks_fts MATCH ? AND kb_id = ?
		ORDER BY score
		LIMIT ?`, ftsQuery(query), kbID, candidateCap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := make(map[string]float64)
	for rows.Next() {
		var chunkID string
		var score float64
		if err := rows.Scan(&chunkID, &score); err != nil {
			return nil, err
		}
		// BM25 scores are negative; flip to positive.
		scores[chunkID] = -score
	}

	return scores, rows.Err()
}

type scoredChunk struct {
	chunkID string
	score   float64
}

// mergeScores combines normalized vector and keyword scores with fixed
// weights, ordered best-first with chunk ID as tiebreaker so results are
// deterministic.
func mergeScores(vector, keyword map[string]float64) []scoredChunk {
	var maxKeyword float64
	for _, s := range keyword {
		if s > maxKeyword {
			maxKeyword = s
		}
	}

	ids := make(map[string]bool, len(vector)+len(keyword))
	for id := range vector {
		ids[id] = true
	}
	for id := range keyword {
		ids[id] = true
	}

	scored := make([]scoredChunk, 0, len(ids))
	for id := range ids {
		var combined float64
		if s, ok := vector[id]; ok {
			combined += s * vectorWeight
		}
		if s, ok := keyword[id]; ok && maxKeyword > 0 {
			combined += s / maxKeyword * keywordWeight
		}
		scored = append(scored, scoredChunk{chunkID: id, score: combined})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].chunkID < scored[j].chunkID
	})

	return scored
}

func (idx *Index) loadResults(ctx context.Context, scored []scoredChunk) ([]Result, error) {
	results := make([]Result, 0, len(scored))

	for _, sc := range scored {
		var r Result
		var docID string
		err := idx.db.QueryRowContext(ctx, `
			SELECT c.doc_id, d.path, c.content
			FROM kb_chunks c
			JOIN knowledge_documents d ON d.id = c.doc_id
			WHERE c.id = ?`, sc.chunkID).Scan(&docID, &r.Path, &r.Content)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load chunk %s: %w", sc.chunkID, err)
		}

		r.DocID = docID
		r.Score = sc.score
		results = append(results, r)
	}

	return results, nil
}

// chunkText splits content on blank lines, packing paragraphs into chunks of
// at most maxChunkSize characters.
func chunkText(content string) []string {
	paragraphs := strings.Split(content, "\n\n")

	chunks := []string{}
	var current strings.Builder

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			chunks = append(chunks, text)
		}
		current.Reset()
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+len(p) > maxChunkSize {
			flush()
		}

		// A single oversized paragraph is split hard.
		for len(p) > maxChunkSize {
			chunks = append(chunks, strings.TrimSpace(p[:maxChunkSize]))
			p = p[maxChunkSize:]
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()

	return chunks
}

// ftsQuery quotes each term so user input with FTS5 operators cannot break
// the MATCH expression.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
