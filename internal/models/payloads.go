package models

// These structs define the JSON payloads exchanged between the portal UI,
// the Cloud Functions, and the processing workflow.

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Query string `json:"query"`
}

// ChatResponse is the body of a successful /chat reply.
type ChatResponse struct {
	Answer  string     `json:"answer"`
	Sources []Citation `json:"sources"`
}

// ProcessRequest is the body of POST /process-document-background. It carries
// the full registry record plus its underlying storage path so the workflow
// never has to read the registry to locate the blob.
type ProcessRequest struct {
	Record KnowledgeSource `json:"record"`
}

// ProcessResponse acknowledges a dispatch. The trigger only looks at the HTTP
// status code; the body exists for humans reading logs.
type ProcessResponse struct {
	Status      string `json:"status"`
	ExecutionID string `json:"executionId,omitempty"`
	PageCount   int    `json:"pageCount,omitempty"`
}

// CompletionRequest is the body of POST /processing-complete, sent by the
// workflow when indexing for one source finishes or fails.
type CompletionRequest struct {
	ID           string `json:"id"`
	Status       Status `json:"status"`
	ErrorDetails string `json:"errorDetails,omitempty"`
}

// PasteRequest is the JSON body of an admin "paste text" ingestion.
type PasteRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// IngestResult is the per-item outcome of an ingestion batch. Results are
// returned in submission order.
type IngestResult struct {
	Filename string `json:"filename"`
	SourceID string `json:"sourceId,omitempty"`
	Status   Status `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

// IngestResponse is the body of a POST /ingest reply.
type IngestResponse struct {
	Results []IngestResult `json:"results"`
}

// SyncResponse is the body of a POST /sync-establishments reply.
type SyncResponse struct {
	Count int `json:"count"`
}

// AdminActionRequest is the JSON body of administrator actions on a single
// registry record (currently only "reset").
type AdminActionRequest struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}
