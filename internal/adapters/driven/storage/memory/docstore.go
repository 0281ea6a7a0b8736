package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/vecmath"
)

// Ensure DocumentStore implements the interfaces.
var (
	_ driven.DocumentStore = (*DocumentStore)(nil)
	_ driven.ChunkSearcher = (*DocumentStore)(nil)
)

// DocumentStore is an in-memory implementation of driven.DocumentStore and
// driven.ChunkSearcher.
type DocumentStore struct {
	mu        sync.RWMutex
	members   driven.MembershipOracle
	documents map[string]domain.Document
	chunks    map[string][]domain.Chunk
}

// NewDocumentStore creates a new in-memory document store. members guards
// SearchTripChunks.
func NewDocumentStore(members driven.MembershipOracle) *DocumentStore {
	return &DocumentStore{
		members:   members,
		documents: make(map[string]domain.Document),
		chunks:    make(map[string][]domain.Chunk),
	}
}

// SaveDocument stores or updates a document.
func (s *DocumentStore) SaveDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = *doc
	return nil
}

// UpdateStatus moves a document to a new ingestion status.
func (s *DocumentStore) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.Status = status
	doc.FailureReason = reason
	doc.UpdatedAt = at
	s.documents[id] = doc
	return nil
}

// SaveChunks appends a batch of chunks. Batches may span several calls.
func (s *DocumentStore) SaveChunks(_ context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if _, ok := s.documents[c.DocumentID]; !ok {
			return domain.ErrNotFound
		}
	}
	for _, c := range chunks {
		s.chunks[c.DocumentID] = append(s.chunks[c.DocumentID], c)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// GetChunks retrieves all chunks for a document ordered by position.
func (s *DocumentStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := append([]domain.Chunk(nil), s.chunks[documentID]...)
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Position < chunks[j].Position })
	return chunks, nil
}

// ListDocuments returns a trip's documents, newest first.
func (s *DocumentStore) ListDocuments(
	_ context.Context, tripID string, filter domain.DocumentFilter,
) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []domain.Document
	for _, doc := range s.documents {
		if doc.TripID != tripID {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if doc.DeletedAt != nil && !filter.IncludeDeleted {
			continue
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return newerFirst(docs[i], docs[j]) })
	return docs, nil
}

// SoftDeleteDocument hides a document from retrieval.
func (s *DocumentStore) SoftDeleteDocument(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.DeletedAt = &at
	doc.UpdatedAt = at
	s.documents[id] = doc
	return nil
}

// PurgeFailed hard-deletes failed documents updated before cutoff and their chunks.
func (s *DocumentStore) PurgeFailed(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, doc := range s.documents {
		if doc.Status == domain.DocumentFailed && doc.UpdatedAt.Before(cutoff) {
			delete(s.documents, id)
			delete(s.chunks, id)
			n++
		}
	}
	return n, nil
}

// SearchTripChunks returns ready chunks of q.TripID with their similarity to
// q.Embedding. The membership guard runs before any chunk is read.
func (s *DocumentStore) SearchTripChunks(ctx context.Context, q driven.ChunkQuery) ([]driven.ChunkCandidate, error) {
	if err := guardMembership(ctx, s.members, q.TripID, q.CallerID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []driven.ChunkCandidate
	for id, doc := range s.documents {
		if doc.TripID != q.TripID || !doc.IsRetrievable() {
			continue
		}
		for _, c := range s.chunks[id] {
			out = append(out, driven.ChunkCandidate{
				Chunk:      c,
				Document:   doc,
				Similarity: vecmath.Cosine(q.Embedding, c.Embedding),
			})
		}
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

func newerFirst(a, b domain.Document) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// guardMembership denies unless callerID is an active member of tripID.
func guardMembership(ctx context.Context, members driven.MembershipOracle, tripID, callerID string) error {
	if members == nil || tripID == "" || callerID == "" {
		return domain.ErrAccessDenied
	}
	m, err := members.GetMembership(ctx, tripID, callerID)
	if err != nil || !m.IsActive() {
		return domain.ErrAccessDenied
	}
	return nil
}
