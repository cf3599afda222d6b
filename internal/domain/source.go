package domain

import "context"

// Source pulls entities out of the application's relational store.
// The store itself is an external collaborator; bulk reindex jobs only need
// batched reads, not the full persistence API.
type Source interface {
	// FetchBatch returns up to limit entities of the given document type with
	// IDs strictly greater than afterID, in ascending ID order. An empty
	// slice means the scan is complete.
	FetchBatch(ctx context.Context, docType string, afterID int64, limit int) ([]Entity, error)

	// FetchByID returns the entity, or ErrEntityNotFound if the row is gone.
	// A row deleted while a sync job was queued is not a failure.
	FetchByID(ctx context.Context, docType string, id int64) (Entity, error)
}
