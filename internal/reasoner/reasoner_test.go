package reasoner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ljramones/trope-miner/internal/minererrors"
)

func TestNewOllamaReasoner(t *testing.T) {
	r := NewOllamaReasoner("http://127.0.0.1:11434", "llama3.1:8b", 30*time.Second)
	assert.Equal(t, "llama3.1:8b", r.Model())
}

func TestOllamaReasonerComplete(t *testing.T) {
	t.Run("sends the canonical request contract", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "POST", r.Method)
			assert.Equal(t, "/api/generate", r.URL.Path)

			var req ollamaGenerateReq
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "llama3.1:8b", req.Model)
			assert.Equal(t, "judge this scene", req.Prompt)
			assert.False(t, req.Stream)
			assert.Equal(t, 0.2, req.Options["temperature"])

			json.NewEncoder(w).Encode(ollamaGenerateResp{Response: `[{"trope_id": "t1"}]`})
		}))
		defer server.Close()

		r := NewOllamaReasoner(server.URL, "llama3.1:8b", 5*time.Second)
		out, err := r.Complete(context.Background(), "judge this scene", 0.2)
		require.NoError(t, err)
		assert.Equal(t, `[{"trope_id": "t1"}]`, out)
	})

	t.Run("wraps transport errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		r := NewOllamaReasoner(server.URL, "llama3.1:8b", 5*time.Second)
		_, err := r.Complete(context.Background(), "prompt", 0.2)
		var reasonerErr *minererrors.ReasonerError
		require.ErrorAs(t, err, &reasonerErr)
		assert.Equal(t, minererrors.ReasonerTransport, reasonerErr.Kind)
	})

	t.Run("wraps decode errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer server.Close()

		r := NewOllamaReasoner(server.URL, "llama3.1:8b", 5*time.Second)
		_, err := r.Complete(context.Background(), "prompt", 0.2)
		var reasonerErr *minererrors.ReasonerError
		require.ErrorAs(t, err, &reasonerErr)
		assert.Equal(t, minererrors.ReasonerParse, reasonerErr.Kind)
	})
}

func TestReasonerInterfaceCompliance(t *testing.T) {
	var _ Reasoner = (*OllamaReasoner)(nil)
}
