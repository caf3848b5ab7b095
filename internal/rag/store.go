package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the durable persistence layer for Documents and Chunks. It owns
// both tables exclusively; all mutation that must be atomic runs in a
// transaction.
type Store interface {
	InsertDocument(ctx context.Context, doc *Document) error
	BulkInsertChunks(ctx context.Context, documentID string, chunks []Chunk) error
	ReplaceChunks(ctx context.Context, documentID string, chunks []Chunk) error
	DeleteDocument(ctx context.Context, documentID string) error
	GetDocument(ctx context.Context, documentID string) (*Document, error)
	ListDocumentsWithStats(ctx context.Context) ([]DocumentStats, error)
	GetAllChunksWithEmbeddings(ctx context.Context, fn func(Chunk) error) error
	Close()
}

// DocumentStats is a Document joined with its chunk-level readiness, used
// by both the Ingestor's ReprocessAllDocuments and the Knowledge-Base Stats
// component.
type DocumentStats struct {
	Document
	ChunkCount    int
	HasEmbeddings bool
}

// PostgresStore is the default Store backed by Postgres. Embeddings are
// stored as a JSON array column rather than a pgvector column: the corpus
// size this service targets favors the simpler schema and an in-process
// cosine scan over the operational cost of a pgvector extension.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, NewStoreError("parse database dsn", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		GlobalLogger.Error("failed to connect to database", "host", parseDSNHost(dsn), "error", err)
		return nil, NewStoreError("connect to database", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT '',
	tag_id TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	page_count INT NOT NULL DEFAULT 0,
	word_count INT NOT NULL DEFAULT 0,
	metadata JSONB NOT NULL DEFAULT '{}',
	uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS document_chunks (
	id UUID PRIMARY KEY,
	document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INT NOT NULL,
	content TEXT NOT NULL,
	token_count INT NOT NULL,
	embedding JSONB,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS document_chunks_document_idx ON document_chunks (document_id);
`

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return NewStoreError("ensure schema", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// InsertDocument inserts a new Document row. An empty ID is replaced with a
// new UUID, and a zero UploadedAt with the current time, both written back
// to doc.
func (s *PostgresStore) InsertDocument(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}

	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return NewInternal("marshal document metadata", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (id, title, author, tag_id, content, page_count, word_count, metadata, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, doc.Title, doc.Author, doc.TagID, doc.Content, doc.PageCount, doc.WordCount, metaJSON, doc.UploadedAt,
	)
	if err != nil {
		return NewStoreError("insert document", err)
	}
	return nil
}

// BulkInsertChunks inserts chunks for documentID inside a single
// transaction: either all chunks become visible, or none do.
func (s *PostgresStore) BulkInsertChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return NewStoreError("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range chunks {
		if err := insertChunk(ctx, tx, documentID, c); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return NewStoreError("commit chunk insert", err)
	}
	return nil
}

// ReplaceChunks atomically swaps out documentID's chunk set: the old set
// remains visible or the new set does, never a partial mix.
func (s *PostgresStore) ReplaceChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return NewStoreError("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	// Serialize delete-then-insert per document: two concurrent reprocess
	// calls for the same document must not interleave their chunk sets.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, documentID); err != nil {
		return NewStoreError("acquire document lock", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return NewStoreError("delete existing chunks", err)
	}

	for _, c := range chunks {
		if err := insertChunk(ctx, tx, documentID, c); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return NewStoreError("commit chunk replace", err)
	}
	return nil
}

func insertChunk(ctx context.Context, tx pgx.Tx, documentID string, c Chunk) error {
	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	metaJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return NewInternal("marshal chunk metadata", err)
	}

	var embJSON []byte
	if c.Embedding != nil {
		embJSON, err = json.Marshal(c.Embedding)
		if err != nil {
			return NewInternal("marshal chunk embedding", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO document_chunks (id, document_id, chunk_index, content, token_count, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, documentID, c.Index, c.Text, c.TokenCount, embJSON, metaJSON, createdAt,
	)
	if err != nil {
		return NewStoreError("insert chunk", err)
	}
	return nil
}

// DeleteDocument removes documentID and, by the ON DELETE CASCADE
// constraint, every chunk referencing it.
func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, documentID)
	if err != nil {
		return NewStoreError("delete document", err)
	}
	if tag.RowsAffected() == 0 {
		return NewNotFound(fmt.Sprintf("document %s not found", documentID))
	}
	return nil
}

// GetDocument loads a single Document by id.
func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	var doc Document
	var metaJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, title, author, tag_id, content, page_count, word_count, metadata, uploaded_at
		FROM documents WHERE id = $1`, documentID,
	).Scan(&doc.ID, &doc.Title, &doc.Author, &doc.TagID, &doc.Content, &doc.PageCount, &doc.WordCount, &metaJSON, &doc.UploadedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, NewNotFound(fmt.Sprintf("document %s not found", documentID))
		}
		return nil, NewStoreError("get document", err)
	}
	if err := json.Unmarshal(metaJSON, &doc.Metadata); err != nil {
		return nil, NewInternal("unmarshal document metadata", err)
	}
	return &doc, nil
}

// ListDocumentsWithStats returns every Document alongside its chunk count
// and embedding readiness, used by Knowledge-Base Stats and by
// reprocessAllDocuments.
func (s *PostgresStore) ListDocumentsWithStats(ctx context.Context) ([]DocumentStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.id, d.title, d.author, d.tag_id, d.content, d.page_count, d.word_count, d.metadata, d.uploaded_at,
			COUNT(c.id) AS chunk_count,
			COUNT(c.embedding) AS embedded_count
		FROM documents d
		LEFT JOIN document_chunks c ON c.document_id = d.id
		GROUP BY d.id
		ORDER BY d.uploaded_at DESC`,
	)
	if err != nil {
		return nil, NewStoreError("list documents with stats", err)
	}
	defer rows.Close()

	var out []DocumentStats
	for rows.Next() {
		var ds DocumentStats
		var metaJSON []byte
		var embeddedCount int
		if err := rows.Scan(&ds.ID, &ds.Title, &ds.Author, &ds.TagID, &ds.Content, &ds.PageCount, &ds.WordCount, &metaJSON, &ds.UploadedAt, &ds.ChunkCount, &embeddedCount); err != nil {
			return nil, NewStoreError("scan document stats", err)
		}
		if err := json.Unmarshal(metaJSON, &ds.Metadata); err != nil {
			return nil, NewInternal("unmarshal document metadata", err)
		}
		ds.HasEmbeddings = embeddedCount > 0
		out = append(out, ds)
	}
	return out, rows.Err()
}

// GetAllChunksWithEmbeddings streams every chunk that has a non-null
// embedding, invoking fn once per chunk, so the Retriever never has to
// materialize the full corpus in memory. Each chunk carries its document's
// denormalized title/type so no second round-trip is needed.
func (s *PostgresStore) GetAllChunksWithEmbeddings(ctx context.Context, fn func(Chunk) error) error {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.token_count, c.embedding, c.metadata, c.created_at
		FROM document_chunks c
		WHERE c.embedding IS NOT NULL
		ORDER BY c.document_id ASC, c.chunk_index ASC`,
	)
	if err != nil {
		return NewStoreError("scan chunks with embeddings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Chunk
		var embJSON, metaJSON []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Text, &c.TokenCount, &embJSON, &metaJSON, &c.CreatedAt); err != nil {
			return NewStoreError("scan chunk row", err)
		}
		if len(embJSON) > 0 {
			if err := json.Unmarshal(embJSON, &c.Embedding); err != nil {
				return NewInternal("unmarshal chunk embedding", err)
			}
		}
		if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
			return NewInternal("unmarshal chunk metadata", err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

// parseDSNHost returns the host portion of a Postgres DSN for log lines,
// so connection errors never leak credentials into the logger.
func parseDSNHost(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at == -1 {
		return "unknown"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash != -1 {
		return rest[:slash]
	}
	return rest
}
