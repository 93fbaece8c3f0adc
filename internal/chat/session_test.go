package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/portailagence/knowledgeflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu        sync.Mutex
	calls     []string
	answer    *models.ChatResponse
	err       error
	started   chan struct{} // when non-nil, closed once the first Ask begins
	startOnce sync.Once
	release   chan struct{} // when non-nil, Ask blocks until closed
}

func (f *fakeGateway) Ask(ctx context.Context, query string) (*models.ChatResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	release := f.release
	f.mu.Unlock()
	if f.started != nil {
		f.startOnce.Do(func() { close(f.started) })
	}
	if release != nil {
		<-release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSession_Submit(t *testing.T) {
	t.Run("a question gets exactly one answer with sources", func(t *testing.T) {
		gateway := &fakeGateway{answer: &models.ChatResponse{
			Answer: "Les bourses sont attribuées sur dossier.",
			Sources: []models.Citation{
				{Content: "extrait 1", Locator: "guide-bourses.pdf"},
				{Content: "extrait 2", Locator: "faq.txt"},
			},
		}}
		s := NewSession(gateway)

		require.NoError(t, s.Submit(context.Background(), "Comment obtenir une bourse ?"))

		transcript := s.Transcript()
		require.Len(t, transcript, 2)
		assert.Equal(t, models.RoleUser, transcript[0].Role)
		assert.Equal(t, "Comment obtenir une bourse ?", transcript[0].Content)
		assert.Equal(t, models.RoleBot, transcript[1].Role)
		assert.Equal(t, "Les bourses sont attribuées sur dossier.", transcript[1].Content)
		require.Len(t, transcript[1].Sources, 2)
		assert.Equal(t, "guide-bourses.pdf", transcript[1].Sources[0].Locator, "citation order is preserved")
		assert.False(t, s.Pending(), "input re-enabled after the response")
	})

	t.Run("gateway failure appends exactly one fallback message", func(t *testing.T) {
		gateway := &fakeGateway{err: fmt.Errorf("%w: gateway returned status 502", ErrQuery)}
		s := NewSession(gateway)

		require.NoError(t, s.Submit(context.Background(), "question"), "failures are not surfaced as errors")

		transcript := s.Transcript()
		require.Len(t, transcript, 2)
		assert.Equal(t, models.RoleBot, transcript[1].Role)
		assert.Equal(t, FallbackMessage, transcript[1].Content)
		assert.Empty(t, transcript[1].Sources)
		assert.False(t, s.Pending(), "input re-enabled after a failure")
	})

	t.Run("whitespace-only input is a no-op without a network call", func(t *testing.T) {
		gateway := &fakeGateway{}
		s := NewSession(gateway)

		require.NoError(t, s.Submit(context.Background(), "   \n\t"))
		require.NoError(t, s.Submit(context.Background(), ""))

		assert.Empty(t, s.Transcript())
		assert.Zero(t, gateway.callCount())
	})

	t.Run("a second submit while pending is rejected", func(t *testing.T) {
		release := make(chan struct{})
		started := make(chan struct{})
		gateway := &fakeGateway{answer: &models.ChatResponse{Answer: "ok"}, release: release, started: started}
		s := NewSession(gateway)

		done := make(chan error, 1)
		go func() { done <- s.Submit(context.Background(), "première question") }()

		// Wait for the first request to be in flight.
		<-started
		assert.True(t, s.Pending())
		assert.ErrorIs(t, s.Submit(context.Background(), "deuxième question"), ErrRequestInFlight)

		close(release)
		require.NoError(t, <-done)

		transcript := s.Transcript()
		require.Len(t, transcript, 2, "the rejected submit left no trace")
		assert.Equal(t, "première question", transcript[0].Content)
	})

	t.Run("transcript order equals send and receive order", func(t *testing.T) {
		gateway := &fakeGateway{answer: &models.ChatResponse{Answer: "réponse"}}
		s := NewSession(gateway)

		require.NoError(t, s.Submit(context.Background(), "q1"))
		require.NoError(t, s.Submit(context.Background(), "q2"))

		transcript := s.Transcript()
		require.Len(t, transcript, 4)
		assert.Equal(t, []string{"q1", "réponse", "q2", "réponse"},
			[]string{transcript[0].Content, transcript[1].Content, transcript[2].Content, transcript[3].Content})
	})
}

func TestSession_OpenClose(t *testing.T) {
	s := NewSession(&fakeGateway{})
	assert.False(t, s.IsOpen(), "a new session starts closed")

	s.Open()
	assert.True(t, s.IsOpen())

	require.NoError(t, s.Submit(context.Background(), ""))
	s.Close()
	assert.False(t, s.IsOpen())
	assert.Empty(t, s.Transcript(), "closing keeps the transcript, reopening shows it")
}
