package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/vecmath"
)

// documentStore implements driven.DocumentStore and driven.ChunkSearcher.
type documentStore struct {
	store *Store
}

var (
	_ driven.DocumentStore = (*documentStore)(nil)
	_ driven.ChunkSearcher = (*documentStore)(nil)
)

const documentColumns = `id, trip_id, title, source_type, uri, raw_text, status, failure_reason,
	created_by, created_at, updated_at, deleted_at`

// SaveDocument stores or updates a document.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			trip_id = excluded.trip_id,
			title = excluded.title,
			source_type = excluded.source_type,
			uri = excluded.uri,
			raw_text = excluded.raw_text,
			status = excluded.status,
			failure_reason = excluded.failure_reason,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at
	`, doc.ID, doc.TripID, doc.Title, string(doc.SourceType), doc.URI, doc.RawText,
		string(doc.Status), doc.FailureReason, doc.CreatedBy,
		doc.CreatedAt.UTC(), doc.UpdatedAt.UTC(), nullTime(doc.DeletedAt))
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// UpdateStatus moves a document to a new ingestion status.
func (s *documentStore) UpdateStatus(
	ctx context.Context, id string, status domain.DocumentStatus, reason string, at time.Time,
) error {
	res, err := s.store.db.ExecContext(ctx,
		"UPDATE documents SET status = ?, failure_reason = ?, updated_at = ? WHERE id = ?",
		string(status), reason, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}
	return requireAffected(res)
}

// SaveChunks stores a batch of chunks in one transaction.
func (s *documentStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	seen := make(map[string]bool)
	for _, c := range chunks {
		if seen[c.DocumentID] {
			continue
		}
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", c.DocumentID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking document: %w", err)
		}
		seen[c.DocumentID] = true
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, position, text, token_count, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			position = excluded.position,
			text = excluded.text,
			token_count = excluded.token_count,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Position, c.Text,
			c.TokenCount, float32SliceToBytes(c.Embedding)); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return doc, err
}

// GetChunks retrieves all chunks for a document in position order.
func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, position, text, token_count, embedding
		FROM chunks WHERE document_id = ?
		ORDER BY position, id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var c domain.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Position, &c.Text, &c.TokenCount, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Embedding = bytesToFloat32Slice(blob)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// ListDocuments returns a trip's documents, newest first.
func (s *documentStore) ListDocuments(
	ctx context.Context, tripID string, filter domain.DocumentFilter,
) ([]domain.Document, error) {
	query := "SELECT " + documentColumns + " FROM documents WHERE trip_id = ?"
	args := []any{tripID}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if !filter.IncludeDeleted {
		query += " AND deleted_at IS NULL"
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// SoftDeleteDocument hides a document from retrieval.
func (s *documentStore) SoftDeleteDocument(ctx context.Context, id string, at time.Time) error {
	res, err := s.store.db.ExecContext(ctx,
		"UPDATE documents SET deleted_at = ?, updated_at = ? WHERE id = ?", at.UTC(), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return requireAffected(res)
}

// PurgeFailed hard-deletes failed documents last updated before cutoff.
// Chunks go with them through the foreign key cascade.
func (s *documentStore) PurgeFailed(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.store.db.ExecContext(ctx,
		"DELETE FROM documents WHERE status = ? AND updated_at < ?",
		string(domain.DocumentFailed), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purging failed documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging failed documents: %w", err)
	}
	return int(n), nil
}

// SearchTripChunks joins ready chunks to their documents for one trip and
// scores them against q.Embedding. It reads across documents without
// per-row checks, so the membership check below must stay its first statement.
func (s *documentStore) SearchTripChunks(ctx context.Context, q driven.ChunkQuery) ([]driven.ChunkCandidate, error) {
	if err := s.store.activeMember(ctx, q.TripID, q.CallerID); err != nil {
		return nil, err
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.position, c.text, c.token_count, c.embedding,
		       d.trip_id, d.title, d.source_type, d.uri, d.status, d.created_by, d.created_at, d.updated_at
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.trip_id = ? AND d.status = ? AND d.deleted_at IS NULL
	`, q.TripID, string(domain.DocumentReady))
	if err != nil {
		return nil, fmt.Errorf("querying trip chunks: %w", err)
	}
	defer rows.Close()

	var out []driven.ChunkCandidate
	for rows.Next() {
		var (
			c          domain.Chunk
			d          domain.Document
			blob       []byte
			sourceType string
			status     string
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Position, &c.Text, &c.TokenCount, &blob,
			&d.TripID, &d.Title, &sourceType, &d.URI, &status, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning trip chunk: %w", err)
		}
		c.Embedding = bytesToFloat32Slice(blob)
		d.ID = c.DocumentID
		d.SourceType = domain.SourceType(sourceType)
		d.Status = domain.DocumentStatus(status)
		out = append(out, driven.ChunkCandidate{
			Chunk:      c,
			Document:   d,
			Similarity: vecmath.Cosine(q.Embedding, c.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trip chunks: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc        domain.Document
		sourceType string
		status     string
		deletedAt  sql.NullTime
	)
	if err := row.Scan(&doc.ID, &doc.TripID, &doc.Title, &sourceType, &doc.URI, &doc.RawText,
		&status, &doc.FailureReason, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt, &deletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.SourceType = domain.SourceType(sourceType)
	doc.Status = domain.DocumentStatus(status)
	if deletedAt.Valid {
		t := deletedAt.Time
		doc.DeletedAt = &t
	}
	return &doc, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
