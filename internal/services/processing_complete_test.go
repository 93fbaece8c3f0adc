package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/portailagence/knowledgeflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notFoundStatusWriter struct{}

func (notFoundStatusWriter) SetStatus(ctx context.Context, id string, to models.Status, errDetails string) error {
	return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
}

func postCompletion(f *ProcessingCompleteFunction, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/processing-complete", strings.NewReader(body))
	f.HandleCompletion(rec, req)
	return rec
}

func TestHandleCompletion(t *testing.T) {
	t.Run("processed verdict is applied", func(t *testing.T) {
		registry := newFakeCatalog()
		seedSources(t, registry, "guide.pdf")
		_, err := registry.ClaimDispatch(context.Background(), "src-1")
		require.NoError(t, err)

		f := &ProcessingCompleteFunction{registry: registry}
		rec := postCompletion(f, `{"id":"src-1","status":"processed"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, models.StatusProcessed, registry.statusOf("src-1"))
	})

	t.Run("error verdict carries details", func(t *testing.T) {
		registry := newFakeCatalog()
		seedSources(t, registry, "guide.pdf")
		_, err := registry.ClaimDispatch(context.Background(), "src-1")
		require.NoError(t, err)

		f := &ProcessingCompleteFunction{registry: registry}
		rec := postCompletion(f, `{"id":"src-1","status":"error","errorDetails":"extraction failed"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, models.StatusError, registry.statusOf("src-1"))
	})

	t.Run("non-terminal verdicts are rejected", func(t *testing.T) {
		f := &ProcessingCompleteFunction{registry: newFakeCatalog()}
		for _, status := range []string{"pending", "processing", "done", ""} {
			rec := postCompletion(f, fmt.Sprintf(`{"id":"src-1","status":"%s"}`, status))
			assert.Equal(t, http.StatusBadRequest, rec.Code, "status %q", status)
		}
	})

	t.Run("missing id is rejected", func(t *testing.T) {
		f := &ProcessingCompleteFunction{registry: newFakeCatalog()}
		rec := postCompletion(f, `{"status":"processed"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown source is a 404", func(t *testing.T) {
		f := &ProcessingCompleteFunction{registry: notFoundStatusWriter{}}
		rec := postCompletion(f, `{"id":"ghost","status":"processed"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
