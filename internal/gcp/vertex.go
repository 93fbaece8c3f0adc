package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Answer Model Prompts ---
const AnswerSystemPrompt = "You are the virtual assistant of a public agency's information portal. You answer questions from citizens using ONLY the knowledge base excerpts provided with each question. Answer in the language of the question (usually French). Be factual, concise, and polite. If the provided excerpts do not contain the information needed to answer, say exactly: \"" + NoInformationSentinel + "\". Never invent establishments, dates, amounts, or procedures."

// NoInformationSentinel is the fixed answer returned when the knowledge base
// holds nothing relevant to the question. The widget treats it as a normal
// answer, not an error.
const NoInformationSentinel = "Je n'ai pas trouvé d'informations à ce sujet dans la base de connaissances."

// VertexClient holds the pre-configured generative model used by the chat
// gateway.
type VertexClient struct {
	AnswerModel *genai.GenerativeModel
	baseClient  *genai.Client
}

// NewVertexClient creates a new client holding the grounded answer model.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	answerModel := baseClient.GenerativeModel("gemini-1.5-pro")
	answerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(AnswerSystemPrompt)},
	}
	answerModel.GenerationConfig = genai.GenerationConfig{
		// Low temperature: answers must stick to the retrieved excerpts.
		Temperature: genai.Ptr[float32](0.2),
	}

	return &VertexClient{
		AnswerModel: answerModel,
		baseClient:  baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
