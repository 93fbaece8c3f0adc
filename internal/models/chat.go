package models

import "time"

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Citation is a fragment of indexed content returned alongside an answer to
// show provenance.
type Citation struct {
	Content string `firestore:"content" json:"content"`
	Locator string `firestore:"locator,omitempty" json:"locator,omitempty"`
}

// ChatMessage is one entry of a chat transcript. Sources is ordered and may
// be empty; it is only ever populated on bot messages.
type ChatMessage struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Sources   []Citation `json:"sources,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// KnowledgeChunk is one indexed fragment written by the processing workflow.
// The chat gateway reads these back when grounding an answer.
type KnowledgeChunk struct {
	ID       string `firestore:"-" json:"id"`
	SourceID string `firestore:"sourceId" json:"sourceId"`
	Filename string `firestore:"filename" json:"filename"`
	Content  string `firestore:"content" json:"content"`
	Locator  string `firestore:"locator,omitempty" json:"locator,omitempty"`
}
