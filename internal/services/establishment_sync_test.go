package services

import (
	"context"
	"testing"

	"github.com/portailagence/knowledgeflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSync(blobs blobStore, registry sourceCatalog, trigger dispatcher) *EstablishmentSyncFunction {
	return &EstablishmentSyncFunction{
		blobs:    blobs,
		registry: registry,
		trigger:  trigger,
		config:   EstablishmentSyncConfig{Category: "etablissements"},
	}
}

func sampleDirectory() []*models.Etablissement {
	return []*models.Etablissement{
		{ID: "e1", Nom: "Université de Nouakchott", Type: "Université", Ville: "Nouakchott",
			Formations: []string{"Droit", "Médecine"}},
		{ID: "e2", Nom: "Institut Supérieur de Comptabilité", Type: "Institut", Ville: "Nouadhibou",
			Email: "contact@isc.mr", Description: "Formation en comptabilité et gestion."},
	}
}

func TestEstablishmentSync(t *testing.T) {
	t.Run("one source per directory record", func(t *testing.T) {
		blobs := newFakeBlobStore()
		registry := newFakeCatalog()
		trigger := newFakeDispatcher(registry)
		f := newTestSync(blobs, registry, trigger)

		count := f.syncAll(context.Background(), sampleDirectory())

		assert.Equal(t, 2, count)
		require.Len(t, registry.created, 2)
		assert.Equal(t, "etablissement-universit-de-nouakchott.txt", registry.created[0].Filename)
		assert.Equal(t, "txt", registry.created[0].FileType)
		assert.Len(t, trigger.dispatched, 2)
	})

	t.Run("re-running re-creates sources without diffing", func(t *testing.T) {
		// Known gap, kept on purpose: each run is a full re-index, the
		// registry grows by one source per record per run.
		blobs := newFakeBlobStore()
		registry := newFakeCatalog()
		f := newTestSync(blobs, registry, newFakeDispatcher(registry))

		assert.Equal(t, 2, f.syncAll(context.Background(), sampleDirectory()))
		assert.Equal(t, 2, f.syncAll(context.Background(), sampleDirectory()))
		assert.Len(t, registry.created, 4)
	})

	t.Run("a failing record does not abort the run", func(t *testing.T) {
		blobs := newFakeBlobStore()
		blobs.failPut["etablissement-universit-de-nouakchott.txt"] = true
		registry := newFakeCatalog()
		f := newTestSync(blobs, registry, newFakeDispatcher(registry))

		count := f.syncAll(context.Background(), sampleDirectory())

		assert.Equal(t, 1, count)
		require.Len(t, registry.created, 1)
		assert.Equal(t, "etablissement-institut-sup-rieur-de-comptabilit.txt", registry.created[0].Filename)
	})

	t.Run("dispatch failure still counts the record as synced", func(t *testing.T) {
		blobs := newFakeBlobStore()
		registry := newFakeCatalog()
		trigger := newFakeDispatcher(registry)
		trigger.failIDs["src-1"] = true
		f := newTestSync(blobs, registry, trigger)

		count := f.syncAll(context.Background(), sampleDirectory()[:1])

		assert.Equal(t, 1, count)
		assert.Equal(t, models.StatusError, registry.statusOf("src-1"))
	})
}

func TestRenderEtablissement(t *testing.T) {
	e := sampleDirectory()[0]

	t.Run("same record renders the same text", func(t *testing.T) {
		assert.Equal(t, RenderEtablissement(e), RenderEtablissement(e))
	})

	t.Run("populated fields appear, empty ones do not", func(t *testing.T) {
		text := RenderEtablissement(e)
		assert.Contains(t, text, "Établissement : Université de Nouakchott")
		assert.Contains(t, text, "Ville : Nouakchott")
		assert.Contains(t, text, "Formations proposées : Droit, Médecine")
		assert.NotContains(t, text, "Email")
		assert.NotContains(t, text, "Téléphone")
	})
}

func TestEtablissementFilename(t *testing.T) {
	assert.Equal(t, "etablissement-universit-de-nouakchott.txt", etablissementFilename(sampleDirectory()[0]))
	assert.Equal(t, "etablissement-e9.txt", etablissementFilename(&models.Etablissement{ID: "e9", Nom: "???"}))
}
