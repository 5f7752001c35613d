// Package embedclient turns chunk and trope text into vectors. The Ollama
// backend tolerates several request/response shapes, since Ollama
// deployments vary in which one they speak.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ljramones/trope-miner/internal/minererrors"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// OllamaEmbedder calls /api/embeddings, trying the {model,prompt} request
// shape first and falling back to {model,input} when that request fails
// for any reason (transport error, non-200 status, undecodable or empty
// embedding).
// Responses are read tolerantly: {embedding}, {data:[{embedding}]}, or
// {embeddings:[...]}.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

type OllamaEmbedderOption func(*OllamaEmbedder)

func WithBaseURL(url string) OllamaEmbedderOption {
	return func(o *OllamaEmbedder) { o.baseURL = url }
}

func WithHTTPClient(c *http.Client) OllamaEmbedderOption {
	return func(o *OllamaEmbedder) { o.httpClient = c }
}

func WithLogger(l *slog.Logger) OllamaEmbedderOption {
	return func(o *OllamaEmbedder) { o.logger = l }
}

func NewOllamaEmbedder(baseURL, model string, timeout time.Duration, opts ...OllamaEmbedderOption) *OllamaEmbedder {
	o := &OllamaEmbedder{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *OllamaEmbedder) Model() string { return o.model }

type ollamaEmbedPromptReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedInputReq struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResp struct {
	Embedding  []float64   `json:"embedding"`
	Embeddings [][]float64 `json:"embeddings"`
	Data       []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, minererrors.NewEmbedError(minererrors.EmbedEmpty, o.model, nil)
	}

	vec, err := o.request(ctx, ollamaEmbedPromptReq{Model: o.model, Prompt: text})
	if err != nil {
		o.logger.Debug("embed prompt-shape failed, retrying input-shape", "err", err)
		vec, err = o.request(ctx, ollamaEmbedInputReq{Model: o.model, Input: text})
		if err != nil {
			return nil, err
		}
	}
	if len(vec) == 0 {
		return nil, minererrors.NewEmbedError(minererrors.EmbedEmpty, o.model, nil)
	}
	return vec, nil
}

func (o *OllamaEmbedder) request(ctx context.Context, body any) ([]float32, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, minererrors.NewEmbedError(minererrors.EmbedDecode, o.model, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, minererrors.NewEmbedError(minererrors.EmbedTransport, o.model, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, minererrors.NewEmbedError(minererrors.EmbedTransport, o.model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, minererrors.NewEmbedError(minererrors.EmbedTransport, o.model,
			fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)))
	}

	var out ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, minererrors.NewEmbedError(minererrors.EmbedDecode, o.model, err)
	}

	switch {
	case len(out.Embedding) > 0:
		return toFloat32(out.Embedding), nil
	case len(out.Data) > 0 && len(out.Data[0].Embedding) > 0:
		return toFloat32(out.Data[0].Embedding), nil
	case len(out.Embeddings) > 0 && len(out.Embeddings[0]) > 0:
		return toFloat32(out.Embeddings[0]), nil
	default:
		return nil, minererrors.NewEmbedError(minererrors.EmbedEmpty, o.model, nil)
	}
}

func (o *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := o.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

var _ Embedder = (*OllamaEmbedder)(nil)
