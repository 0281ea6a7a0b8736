package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
)

type documentStore struct {
	pool *pgxpool.Pool
}

var (
	_ driven.DocumentStore = (*documentStore)(nil)
	_ driven.ChunkSearcher = (*documentStore)(nil)
)

const documentColumns = `id, trip_id, title, source_type, uri, raw_text, status, failure_reason,
	created_by, created_at, updated_at, deleted_at`

// SaveDocument stores or updates a document.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			trip_id = EXCLUDED.trip_id,
			title = EXCLUDED.title,
			source_type = EXCLUDED.source_type,
			uri = EXCLUDED.uri,
			raw_text = EXCLUDED.raw_text,
			status = EXCLUDED.status,
			failure_reason = EXCLUDED.failure_reason,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`, doc.ID, doc.TripID, doc.Title, string(doc.SourceType), doc.URI, doc.RawText,
		string(doc.Status), doc.FailureReason, doc.CreatedBy, doc.CreatedAt, doc.UpdatedAt, doc.DeletedAt)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// UpdateStatus moves a document to a new ingestion status.
func (s *documentStore) UpdateStatus(
	ctx context.Context, id string, status domain.DocumentStatus, reason string, at time.Time,
) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE documents SET status = $1, failure_reason = $2, updated_at = $3 WHERE id = $4",
		string(status), reason, at, id)
	if err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveChunks writes a batch of chunks in one round trip.
func (s *documentStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO chunks (id, document_id, position, text, token_count, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				position = EXCLUDED.position,
				text = EXCLUDED.text,
				token_count = EXCLUDED.token_count,
				embedding = EXCLUDED.embedding
		`, c.ID, c.DocumentID, c.Position, c.Text, c.TokenCount, toVector(c.Embedding))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	br := tx.SendBatch(ctx, batch)
	for i := range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("saving chunk %d: %w", i, mapError(err))
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("saving chunks: %w", mapError(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = $1", id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, mapError(err)
	}
	return doc, nil
}

// GetChunks retrieves a document's chunks in position order.
func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, position, text, token_count, embedding
		FROM chunks WHERE document_id = $1
		ORDER BY position, id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var (
			c   domain.Chunk
			vec *pgvector.Vector
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Position, &c.Text, &c.TokenCount, &vec); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Embedding = fromVector(vec)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ListDocuments returns a trip's documents, newest first.
func (s *documentStore) ListDocuments(
	ctx context.Context, tripID string, filter domain.DocumentFilter,
) ([]domain.Document, error) {
	query := "SELECT " + documentColumns + " FROM documents WHERE trip_id = $1"
	args := []any{tripID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !filter.IncludeDeleted {
		query += " AND deleted_at IS NULL"
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// SoftDeleteDocument hides a document from retrieval.
func (s *documentStore) SoftDeleteDocument(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE documents SET deleted_at = $1, updated_at = $1 WHERE id = $2", at, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// PurgeFailed hard-deletes failed documents last updated before cutoff.
func (s *documentStore) PurgeFailed(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM documents WHERE status = $1 AND updated_at < $2",
		string(domain.DocumentFailed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging failed documents: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// SearchTripChunks calls match_trip_chunks, whose first statement rejects
// callers without an active membership.
func (s *documentStore) SearchTripChunks(ctx context.Context, q driven.ChunkQuery) ([]driven.ChunkCandidate, error) {
	if q.TripID == "" || q.CallerID == "" {
		return nil, domain.ErrAccessDenied
	}

	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}

	rows, err := s.pool.Query(ctx,
		"SELECT * FROM match_trip_chunks($1, $2, $3, $4)",
		q.TripID, q.CallerID, pgvector.NewVector(q.Embedding), limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []driven.ChunkCandidate
	for rows.Next() {
		var (
			c          domain.Chunk
			d          domain.Document
			vec        *pgvector.Vector
			sourceType string
			status     string
			similarity float64
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Position, &c.Text, &c.TokenCount, &vec,
			&d.TripID, &d.Title, &sourceType, &d.URI, &status, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
			&similarity); err != nil {
			return nil, fmt.Errorf("scanning trip chunk: %w", err)
		}
		c.Embedding = fromVector(vec)
		d.ID = c.DocumentID
		d.SourceType = domain.SourceType(sourceType)
		d.Status = domain.DocumentStatus(status)
		out = append(out, driven.ChunkCandidate{Chunk: c, Document: d, Similarity: similarity})
	}
	// The guard's exception arrives with the first row read, not with Query.
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var (
		doc        domain.Document
		sourceType string
		status     string
	)
	if err := row.Scan(&doc.ID, &doc.TripID, &doc.Title, &sourceType, &doc.URI, &doc.RawText,
		&status, &doc.FailureReason, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt, &doc.DeletedAt); err != nil {
		return nil, err
	}
	doc.SourceType = domain.SourceType(sourceType)
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func toVector(v []float32) *pgvector.Vector {
	if len(v) == 0 {
		return nil
	}
	vec := pgvector.NewVector(v)
	return &vec
}

func fromVector(v *pgvector.Vector) []float32 {
	if v == nil {
		return nil
	}
	return v.Slice()
}
