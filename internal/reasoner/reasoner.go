// Package reasoner wraps the LLM used for scene-level judging and
// candidate reranking behind a single interface, with three interchangeable
// backends: Ollama (default), OpenAI, and Bedrock.
package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ljramones/trope-miner/internal/minererrors"
)

// Reasoner completes a single prompt at a fixed temperature. Judging and
// reranking only ever need single-turn completion, not chat history, so
// the interface stays narrow.
type Reasoner interface {
	Complete(ctx context.Context, prompt string, temperature float64) (string, error)
	Model() string
}

// --- Ollama ---

// OllamaReasoner calls /api/generate with stream disabled:
// {model, prompt, stream:false, options:{temperature}} -> {response}.
type OllamaReasoner struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOllamaReasoner(baseURL, model string, timeout time.Duration) *OllamaReasoner {
	return &OllamaReasoner{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (o *OllamaReasoner) Model() string { return o.model }

type ollamaGenerateReq struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResp struct {
	Response string `json:"response"`
}

func (o *OllamaReasoner) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	body := ollamaGenerateReq{
		Model:  o.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": temperature,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", minererrors.NewReasonerError(minererrors.ReasonerParse, o.model, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", minererrors.NewReasonerError(minererrors.ReasonerTransport, o.model, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", minererrors.NewReasonerError(minererrors.ReasonerTransport, o.model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", minererrors.NewReasonerError(minererrors.ReasonerTransport, o.model,
			fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)))
	}

	var out ollamaGenerateResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", minererrors.NewReasonerError(minererrors.ReasonerParse, o.model, err)
	}
	return out.Response, nil
}

var _ Reasoner = (*OllamaReasoner)(nil)
