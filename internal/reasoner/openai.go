package reasoner

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/ljramones/trope-miner/internal/minererrors"
)

// OpenAIReasoner is an alternate backend for sites that proxy an
// OpenAI-compatible completion endpoint instead of Ollama.
type OpenAIReasoner struct {
	client *openai.Client
	model  string
}

func NewOpenAIReasoner(apiKey, baseURL, model string) *OpenAIReasoner {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIReasoner{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAIReasoner) Model() string { return o.model }

func (o *OpenAIReasoner) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(temperature),
	})
	if err != nil {
		return "", minererrors.NewReasonerError(minererrors.ReasonerTransport, o.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", minererrors.NewReasonerError(minererrors.ReasonerParse, o.model, nil)
	}
	return resp.Choices[0].Message.Content, nil
}

var _ Reasoner = (*OpenAIReasoner)(nil)
