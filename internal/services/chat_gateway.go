package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"unicode"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/vertexai/genai"
	"github.com/portailagence/knowledgeflow/internal/gcp"
	"github.com/portailagence/knowledgeflow/internal/models"
)

// ChatGatewayConfig holds configuration for the chat gateway.
type ChatGatewayConfig struct {
	ProjectID        string
	VertexAIRegion   string
	ChunksCollection string
	MaxContextChunks int
	FetchLimit       int
}

// ChatGatewayFunction answers one natural-language question per request,
// grounded on the chunks the indexing workflow wrote to Firestore. It is
// stateless: nothing survives a request beyond logs.
type ChatGatewayFunction struct {
	firestoreClient *firestore.Client
	vertexClient    *gcp.VertexClient
	config          ChatGatewayConfig
}

// NewChatGateway creates the gateway.
func NewChatGateway(ctx context.Context) (*ChatGatewayFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := ChatGatewayConfig{
		ProjectID:        projectID,
		VertexAIRegion:   gcp.GetEnv("VERTEX_AI_REGION", "europe-west1"),
		ChunksCollection: gcp.GetEnv("CHUNKS_COLLECTION", "knowledge_chunks"),
		MaxContextChunks: 6,
		FetchLimit:       200,
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	slog.Info("Chat gateway logic initialized.", "chunksCollection", config.ChunksCollection)
	return &ChatGatewayFunction{
		firestoreClient: firestoreClient,
		vertexClient:    vertexClient,
		config:          config,
	}, nil
}

// HandleChat implements POST /chat.
func (f *ChatGatewayFunction) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		http.Error(w, "Bad Request: query is required", http.StatusBadRequest)
		return
	}

	resp, err := f.answer(r.Context(), query)
	if err != nil {
		slog.Error("Failed to answer chat query", "error", err)
		http.Error(w, "Internal Server Error: answering failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}

func (f *ChatGatewayFunction) answer(ctx context.Context, query string) (*models.ChatResponse, error) {
	chunks, err := f.retrieveChunks(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return &models.ChatResponse{
			Answer:  gcp.NoInformationSentinel,
			Sources: []models.Citation{},
		}, nil
	}

	prompt := buildAnswerPrompt(query, chunks)
	geminiResp, err := f.vertexClient.AnswerModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer from gemini: %w", err)
	}

	answer := extractAnswer(geminiResp)
	if answer == "" {
		slog.Warn("Model returned no text. Falling back to the no-information answer.", "query", query)
		answer = gcp.NoInformationSentinel
	}

	return &models.ChatResponse{
		Answer:  answer,
		Sources: citationsFor(chunks),
	}, nil
}

// retrieveChunks pulls a bounded window of indexed chunks and keeps the ones
// sharing terms with the question. Semantic ranking belongs to the indexing
// service; this is a coarse pre-filter over its output.
func (f *ChatGatewayFunction) retrieveChunks(ctx context.Context, query string) ([]*models.KnowledgeChunk, error) {
	docs, err := f.firestoreClient.Collection(f.config.ChunksCollection).
		Limit(f.config.FetchLimit).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge chunks: %w", err)
	}

	chunks := make([]*models.KnowledgeChunk, 0, len(docs))
	for _, doc := range docs {
		var c models.KnowledgeChunk
		if err := doc.DataTo(&c); err != nil {
			return nil, fmt.Errorf("failed to decode chunk %s: %w", doc.Ref.ID, err)
		}
		c.ID = doc.Ref.ID
		chunks = append(chunks, &c)
	}

	return rankChunks(query, chunks, f.config.MaxContextChunks), nil
}

// rankChunks keeps the top k chunks by shared-term count with the query.
// Chunks sharing no terms are dropped; ties keep their original order.
func rankChunks(query string, chunks []*models.KnowledgeChunk, k int) []*models.KnowledgeChunk {
	queryTerms := termSet(query)
	if len(queryTerms) == 0 {
		return nil
	}

	type scored struct {
		chunk *models.KnowledgeChunk
		score int
	}
	var matches []scored
	for _, c := range chunks {
		var score int
		for term := range termSet(c.Content) {
			if queryTerms[term] {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{chunk: c, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > k {
		matches = matches[:k]
	}

	result := make([]*models.KnowledgeChunk, len(matches))
	for i, m := range matches {
		result[i] = m.chunk
	}
	return result
}

// frequent short words carrying no retrieval signal, French first.
var stopWords = map[string]bool{
	"les": true, "des": true, "une": true, "est": true, "pour": true,
	"que": true, "qui": true, "quoi": true, "dans": true, "sur": true,
	"avec": true, "pas": true, "par": true, "comment": true, "quel": true,
	"quelle": true, "quels": true, "quelles": true, "sont": true,
	"the": true, "and": true, "for": true, "how": true, "what": true,
}

func termSet(s string) map[string]bool {
	terms := map[string]bool{}
	for _, word := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len([]rune(word)) < 3 || stopWords[word] {
			continue
		}
		terms[word] = true
	}
	return terms
}

func buildAnswerPrompt(query string, chunks []*models.KnowledgeChunk) string {
	var b strings.Builder
	b.WriteString("Extraits de la base de connaissances :\n\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] (source : %s)\n%s\n\n", i+1, c.Filename, c.Content)
	}
	fmt.Fprintf(&b, "Question : %s\n", query)
	return b.String()
}

const citationMaxRunes = 300

func citationsFor(chunks []*models.KnowledgeChunk) []models.Citation {
	citations := make([]models.Citation, 0, len(chunks))
	for _, c := range chunks {
		content := c.Content
		if runes := []rune(content); len(runes) > citationMaxRunes {
			content = string(runes[:citationMaxRunes]) + "…"
		}
		locator := c.Locator
		if locator == "" {
			locator = c.Filename
		}
		citations = append(citations, models.Citation{Content: content, Locator: locator})
	}
	return citations
}

// extractAnswer robustly pulls the text out of a model response.
func extractAnswer(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var answer strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			answer.WriteString(string(txt))
		}
	}

	out := strings.TrimSpace(answer.String())
	out = strings.TrimPrefix(out, "```markdown")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out)
}
