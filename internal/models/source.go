package models

import (
	"log/slog"
	"time"
)

// Status is the ingestion lifecycle state of a knowledge source. The
// persisted values are the literal lowercase strings.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusError      Status = "error"
)

// IsValid reports whether s is one of the four known lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProcessed, StatusError:
		return true
	}
	return false
}

// CanTransition reports whether the forward-only lifecycle allows moving
// from one status to another. A source never goes back to pending through
// this path; that only happens via an explicit administrator reset, which
// is modeled as its own registry operation.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusError
	case StatusProcessing:
		return to == StatusProcessed || to == StatusError
	default:
		return false
	}
}

// KnowledgeSource is the registry record for one ingested document, pasted
// text, or structured-record snapshot destined for indexing.
type KnowledgeSource struct {
	ID           string    `firestore:"-" json:"id"`
	Filename     string    `firestore:"filename" json:"filename"`
	FileURL      string    `firestore:"fileUrl" json:"fileUrl"`
	FilePath     string    `firestore:"filePath" json:"filePath"`
	FileType     string    `firestore:"fileType" json:"fileType"`
	Status       Status    `firestore:"status" json:"status"`
	ErrorDetails string    `firestore:"errorDetails,omitempty" json:"errorDetails,omitempty"`
	DispatchedAt time.Time `firestore:"dispatchedAt,omitempty" json:"dispatchedAt,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt" json:"createdAt"`
}

// LogValue keeps source records compact in structured logs.
func (s *KnowledgeSource) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", s.ID),
		slog.String("filename", s.Filename),
		slog.String("status", string(s.Status)),
	)
}
