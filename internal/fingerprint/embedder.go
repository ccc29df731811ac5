package fingerprint

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"newsmarket/internal/config"
)

// Embedder turns free text into a Fingerprint.
type Embedder interface {
	Fingerprint(ctx context.Context, text string) (Fingerprint, error)
}

type embeddingAPI interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder computes embedding vectors through the OpenAI embeddings
// endpoint and keywords through the local tokenizer.
type OpenAIEmbedder struct {
	api   embeddingAPI
	model openai.EmbeddingModel
}

func NewOpenAIEmbedder(cfg config.OpenAIConfig) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		api:   openai.NewClientWithConfig(clientCfg),
		model: openai.EmbeddingModel(cfg.EmbeddingModel),
	}
}

func (e *OpenAIEmbedder) Fingerprint(ctx context.Context, text string) (Fingerprint, error) {
	resp, err := e.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return Fingerprint{}, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return Fingerprint{}, fmt.Errorf("create embedding: empty response")
	}
	return Fingerprint{
		Vector:   resp.Data[0].Embedding,
		Keywords: Tokenize(text),
	}, nil
}
