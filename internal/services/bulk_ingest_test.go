package services

import (
	"context"
	"testing"

	"github.com/portailagence/knowledgeflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBulkIngest(registry bulkCatalog, trigger dispatcher) *BulkIngestFunction {
	return &BulkIngestFunction{
		registry:      registry,
		trigger:       trigger,
		publicBaseURL: "https://storage.googleapis.com",
	}
}

func TestBulkIngest_Process(t *testing.T) {
	t.Run("registers and dispatches a dropped file", func(t *testing.T) {
		registry := newFakeCatalog()
		trigger := newFakeDispatcher(registry)
		f := newTestBulkIngest(registry, trigger)

		err := f.Process(context.Background(), GCSEvent{Bucket: "docs-bucket", Name: "imports/rapport.pdf"})
		require.NoError(t, err)

		require.Len(t, registry.created, 1)
		src := registry.created[0]
		assert.Equal(t, "rapport.pdf", src.Filename)
		assert.Equal(t, "pdf", src.FileType)
		assert.Equal(t, "docs-bucket/imports/rapport.pdf", src.FilePath)
		assert.Equal(t, "https://storage.googleapis.com/docs-bucket/imports/rapport.pdf", src.FileURL)
		assert.Equal(t, []string{src.ID}, trigger.dispatched)
	})

	t.Run("redelivered event does not duplicate the source", func(t *testing.T) {
		registry := newFakeCatalog()
		trigger := newFakeDispatcher(registry)
		f := newTestBulkIngest(registry, trigger)

		event := GCSEvent{Bucket: "docs-bucket", Name: "imports/rapport.pdf"}
		require.NoError(t, f.Process(context.Background(), event))
		require.NoError(t, f.Process(context.Background(), event))

		assert.Len(t, registry.created, 1)
		assert.Len(t, trigger.dispatched, 1)
	})

	t.Run("folder placeholders are skipped", func(t *testing.T) {
		registry := newFakeCatalog()
		f := newTestBulkIngest(registry, newFakeDispatcher(registry))

		require.NoError(t, f.Process(context.Background(), GCSEvent{Bucket: "docs-bucket", Name: "imports/"}))
		assert.Empty(t, registry.created)
	})

	t.Run("dispatch failure is terminal for the event", func(t *testing.T) {
		registry := newFakeCatalog()
		trigger := newFakeDispatcher(registry)
		trigger.failIDs["src-1"] = true
		f := newTestBulkIngest(registry, trigger)

		// No error: the record exists in "error" status and a redelivery
		// would be skipped by the fileUrl check anyway.
		err := f.Process(context.Background(), GCSEvent{Bucket: "docs-bucket", Name: "imports/rapport.pdf"})
		require.NoError(t, err)
		assert.Equal(t, models.StatusError, registry.statusOf("src-1"))
	})
}
