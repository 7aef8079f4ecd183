package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
)

const (
	defaultOpenAIModel     = "text-embedding-3-small"
	defaultOpenAIMaxTokens = 8191
)

type OpenAIProvider struct {
	client     openai.Client
	model      string
	dimensions int
	maxTokens  int

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

func NewOpenAIProvider(cfg config.EmbeddingConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai embedding: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultOpenAIMaxTokens
	}
	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		model:      model,
		dimensions: cfg.Dimensions,
		maxTokens:  maxTokens,
	}, nil
}

func (p *OpenAIProvider) GetProviderType() string { return PROVIDER_TYPE_OPENAI }

func (p *OpenAIProvider) GetEmbedding(ctx context.Context, queryString string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(p.truncate(queryString))},
		Model: openai.EmbeddingModel(p.model),
	}
	if p.dimensions > 0 {
		params.Dimensions = openai.Int(int64(p.dimensions))
	}
	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embedding: empty response")
	}
	src := resp.Data[0].Embedding
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out, nil
}

// truncate caps s at maxTokens. BPE never yields more tokens than bytes,
// so short inputs skip the tokenizer entirely.
func (p *OpenAIProvider) truncate(s string) string {
	if len(s) <= p.maxTokens {
		return s
	}
	p.encOnce.Do(func() {
		enc, err := tiktoken.EncodingForModel(p.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err != nil {
			logger.Warnf("openai embedding: tokenizer unavailable for %s: %v", p.model, err)
			return
		}
		p.enc = enc
	})
	if p.enc == nil {
		return s
	}
	toks := p.enc.Encode(s, nil, nil)
	if len(toks) <= p.maxTokens {
		return s
	}
	return p.enc.Decode(toks[:p.maxTokens])
}
