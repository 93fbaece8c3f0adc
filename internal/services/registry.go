package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/portailagence/knowledgeflow/internal/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// blobRemover is the slice of MediaStore the registry needs for its
// best-effort delete cascade.
type blobRemover interface {
	Remove(ctx context.Context, fileURL string) error
}

// IngestionRegistry is the persisted catalog of knowledge sources, the single
// source of truth for what has been, is being, or failed to be indexed.
type IngestionRegistry struct {
	client     *firestore.Client
	collection string
	blobs      blobRemover
}

// NewIngestionRegistry creates a registry over the given Firestore collection.
// blobs may be nil when the caller never deletes records (e.g. the workflow
// callback).
func NewIngestionRegistry(client *firestore.Client, collection string, blobs blobRemover) *IngestionRegistry {
	return &IngestionRegistry{client: client, collection: collection, blobs: blobs}
}

func decodeSource(doc *firestore.DocumentSnapshot) (*models.KnowledgeSource, error) {
	var src models.KnowledgeSource
	if err := doc.DataTo(&src); err != nil {
		return nil, fmt.Errorf("failed to decode knowledge source %s: %w", doc.Ref.ID, err)
	}
	src.ID = doc.Ref.ID
	return &src, nil
}

// Create persists a new knowledge source with status "pending". The caller
// must have confirmed the blob store write first; a registry record never
// references a blob that was not stored.
func (r *IngestionRegistry) Create(ctx context.Context, src models.KnowledgeSource) (*models.KnowledgeSource, error) {
	src.ID = ""
	src.Status = models.StatusPending
	src.ErrorDetails = ""
	src.DispatchedAt = time.Time{}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now()
	}

	docRef, _, err := r.client.Collection(r.collection).Add(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("failed to create knowledge source: %w", err)
	}
	src.ID = docRef.ID
	slog.Info("Created knowledge source.", "source", &src)
	return &src, nil
}

// Get returns one record by id.
func (r *IngestionRegistry) Get(ctx context.Context, id string) (*models.KnowledgeSource, error) {
	doc, err := r.client.Collection(r.collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge source %s: %w", id, err)
	}
	return decodeSource(doc)
}

// List returns all records, newest first.
func (r *IngestionRegistry) List(ctx context.Context) ([]*models.KnowledgeSource, error) {
	docs, err := r.client.Collection(r.collection).
		OrderBy("createdAt", firestore.Desc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge sources: %w", err)
	}

	sources := make([]*models.KnowledgeSource, 0, len(docs))
	for _, doc := range docs {
		src, err := decodeSource(doc)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// FindByFileURL returns the record referencing a stored blob, or nil when no
// record does.
func (r *IngestionRegistry) FindByFileURL(ctx context.Context, fileURL string) (*models.KnowledgeSource, error) {
	docs, err := r.client.Collection(r.collection).
		Where("fileUrl", "==", fileURL).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query by fileUrl: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return decodeSource(docs[0])
}

// SetStatus applies a lifecycle transition. An illegal transition is a logged
// no-op, not an error: the record keeps its current status. Writing the
// status a record already has is treated as an idempotent retry.
func (r *IngestionRegistry) SetStatus(ctx context.Context, id string, to models.Status, errDetails string) error {
	if !to.IsValid() {
		return fmt.Errorf("invalid status %q", to)
	}

	docRef := r.client.Collection(r.collection).Doc(id)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
		}
		if err != nil {
			return err
		}
		src, err := decodeSource(doc)
		if err != nil {
			return err
		}

		if src.Status == to {
			return nil
		}
		if !models.CanTransition(src.Status, to) {
			slog.Warn("Ignoring illegal status transition.",
				"source", src, "from", string(src.Status), "to", string(to))
			return nil
		}

		updates := []firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "errorDetails", Value: errDetails},
		}
		return tx.Update(docRef, updates)
	})
	if err != nil {
		return fmt.Errorf("failed to update status of %s: %w", id, err)
	}
	return nil
}

// ClaimDispatch transactionally moves a pending source to "processing" and
// records the dispatch time. It is the single-flight guard: a source with an
// outstanding job cannot be claimed again, and a processed or failed source
// must be explicitly Reset before re-dispatch.
func (r *IngestionRegistry) ClaimDispatch(ctx context.Context, id string) (*models.KnowledgeSource, error) {
	docRef := r.client.Collection(r.collection).Doc(id)
	var claimed *models.KnowledgeSource

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
		}
		if err != nil {
			return err
		}
		src, err := decodeSource(doc)
		if err != nil {
			return err
		}

		if src.Status == models.StatusProcessing {
			return fmt.Errorf("%w: %s dispatched at %s", ErrDispatchInFlight, id, src.DispatchedAt.Format(time.RFC3339))
		}
		if src.Status != models.StatusPending {
			return fmt.Errorf("cannot dispatch source %s in status %q, reset it first", id, src.Status)
		}

		now := time.Now()
		if err := tx.Update(docRef, []firestore.Update{
			{Path: "status", Value: string(models.StatusProcessing)},
			{Path: "dispatchedAt", Value: now},
		}); err != nil {
			return err
		}

		src.Status = models.StatusProcessing
		src.DispatchedAt = now
		claimed = src
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Reset is the explicit administrator action that returns a source to
// "pending" for a retry. It is the only path back to pending.
func (r *IngestionRegistry) Reset(ctx context.Context, id string) (*models.KnowledgeSource, error) {
	docRef := r.client.Collection(r.collection).Doc(id)
	var reset *models.KnowledgeSource

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
		}
		if err != nil {
			return err
		}
		src, err := decodeSource(doc)
		if err != nil {
			return err
		}

		if src.Status != models.StatusPending {
			if err := tx.Update(docRef, []firestore.Update{
				{Path: "status", Value: string(models.StatusPending)},
				{Path: "errorDetails", Value: ""},
				{Path: "dispatchedAt", Value: firestore.Delete},
			}); err != nil {
				return err
			}
		}

		src.Status = models.StatusPending
		src.ErrorDetails = ""
		src.DispatchedAt = time.Time{}
		reset = src
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reset %s: %w", id, err)
	}
	slog.Info("Reset knowledge source for retry.", "source", reset)
	return reset, nil
}

// Delete removes the registry record. Blob removal is best-effort: its
// failure is logged and never blocks registry deletion.
func (r *IngestionRegistry) Delete(ctx context.Context, id string) error {
	src, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := r.client.Collection(r.collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete knowledge source %s: %w", id, err)
	}

	if r.blobs != nil && src.FileURL != "" {
		if err := r.blobs.Remove(ctx, src.FileURL); err != nil {
			slog.Warn("Blob cleanup failed after registry delete.", "source", src, "error", err)
		}
	}
	slog.Info("Deleted knowledge source.", "source", src)
	return nil
}
