package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusIsValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusProcessing, StatusProcessed, StatusError} {
		assert.True(t, s.IsValid(), "status %q", s)
	}
	assert.False(t, Status("").IsValid())
	assert.False(t, Status("done").IsValid())
	assert.False(t, Status("PENDING").IsValid(), "persisted values are lowercase literals")
}

func TestCanTransition(t *testing.T) {
	t.Run("forward transitions are allowed", func(t *testing.T) {
		assert.True(t, CanTransition(StatusPending, StatusProcessing))
		assert.True(t, CanTransition(StatusProcessing, StatusProcessed))
		assert.True(t, CanTransition(StatusPending, StatusError))
		assert.True(t, CanTransition(StatusProcessing, StatusError))
	})

	t.Run("nothing ever moves back to pending", func(t *testing.T) {
		for _, from := range []Status{StatusProcessing, StatusProcessed, StatusError} {
			assert.False(t, CanTransition(from, StatusPending), "from %q", from)
		}
	})

	t.Run("terminal states stay put", func(t *testing.T) {
		for _, to := range []Status{StatusPending, StatusProcessing, StatusProcessed, StatusError} {
			assert.False(t, CanTransition(StatusProcessed, to), "processed -> %q", to)
			assert.False(t, CanTransition(StatusError, to), "error -> %q", to)
		}
	})

	t.Run("pending cannot skip to processed", func(t *testing.T) {
		assert.False(t, CanTransition(StatusPending, StatusProcessed))
	})
}
