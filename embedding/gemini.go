package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
)

const defaultGeminiModel = "text-embedding-004"

type GeminiProvider struct {
	client *genai.Client
	model  *genai.EmbeddingModel
	name   string
}

func NewGeminiProvider(ctx context.Context, cfg config.EmbeddingConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini embedding: api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding: create client: %w", err)
	}
	name := cfg.Model
	if name == "" {
		name = defaultGeminiModel
	}
	return &GeminiProvider{client: client, model: client.EmbeddingModel(name), name: name}, nil
}

func (p *GeminiProvider) GetProviderType() string { return PROVIDER_TYPE_GEMINI }

func (p *GeminiProvider) GetEmbedding(ctx context.Context, queryString string) ([]float32, error) {
	res, err := p.model.EmbedContent(ctx, genai.Text(queryString))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding: %w", err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("gemini embedding: empty response")
	}
	return res.Embedding.Values, nil
}

// Close releases the underlying gRPC connection.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
