package reasoner

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ljramones/trope-miner/internal/minererrors"
)

// BedrockReasoner is an alternate backend for sites running entirely on
// AWS. It targets Anthropic Claude models via the Messages API shape
// Bedrock expects.
type BedrockReasoner struct {
	client *bedrockruntime.Client
	model  string
}

func NewBedrockReasoner(ctx context.Context, model string) (*BedrockReasoner, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, minererrors.NewReasonerError(minererrors.ReasonerTransport, model, err)
	}
	return &BedrockReasoner{client: bedrockruntime.NewFromConfig(cfg), model: model}, nil
}

func (b *BedrockReasoner) Model() string { return b.model }

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Temperature      float64          `json:"temperature"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (b *BedrockReasoner) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        2048,
		Temperature:      temperature,
		Messages:         []bedrockMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", minererrors.NewReasonerError(minererrors.ReasonerParse, b.model, err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model),
		Body:        body,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", minererrors.NewReasonerError(minererrors.ReasonerTransport, b.model, err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", minererrors.NewReasonerError(minererrors.ReasonerParse, b.model, err)
	}
	if len(resp.Content) == 0 {
		return "", minererrors.NewReasonerError(minererrors.ReasonerParse, b.model, nil)
	}
	return resp.Content[0].Text, nil
}

var _ Reasoner = (*BedrockReasoner)(nil)
