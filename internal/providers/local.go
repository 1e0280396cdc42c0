package providers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/mindnote/mindroute/internal/models"
)

const localDefaultBaseURL = "http://localhost:11434"

// LocalAdapter speaks the Ollama-style HTTP API of a local model server.
// No credential is required.
type LocalAdapter struct {
	*BaseAdapter
}

// NewLocalAdapter creates an adapter for a local model server.
func NewLocalAdapter(config Config, logger *zap.Logger) *LocalAdapter {
	if config.BaseURL == "" {
		config.BaseURL = localDefaultBaseURL
	}
	if config.Name == "" {
		config.Name = "local"
	}
	return &LocalAdapter{BaseAdapter: newBaseAdapter(config, logger)}
}

func (a *LocalAdapter) Name() string {
	return a.config.Name
}

// GenerateText executes a non-streaming generate call.
func (a *LocalAdapter) GenerateText(ctx context.Context, desc models.ServiceDescriptor, req models.Request) (*models.Response, error) {
	return a.generate(ctx, desc, req, func(ctx context.Context) (*models.Response, error) {
		payload := localGenerateRequest{
			Model:  desc.Model,
			Prompt: fullPrompt(req),
			Stream: false,
		}
		if req.Temperature > 0 {
			payload.Options.Temperature = req.Temperature
		}
		if req.MaxTokens > 0 {
			payload.Options.NumPredict = req.MaxTokens
		}
		if req.TopP > 0 {
			payload.Options.TopP = req.TopP
		}

		status, body, err := a.do(ctx, http.MethodPost, a.config.BaseURL+"/api/generate", nil, payload)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, backendError(desc.Key(), status, localErrorMessage(body))
		}

		var parsed localGenerateResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, models.NewBackendError(desc.Key(), "malformed generate response", status, false, err)
		}

		finish := ""
		if parsed.Done {
			finish = models.FinishStop
		}
		return &models.Response{
			Content: parsed.Response,
			Usage: models.Usage{
				PromptTokens:     parsed.PromptEvalCount,
				CompletionTokens: parsed.EvalCount,
				TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
			},
			FinishReason: finish,
		}, nil
	})
}

// GenerateEmbedding returns one vector per input text.
func (a *LocalAdapter) GenerateEmbedding(ctx context.Context, texts []string) ([][]float64, error) {
	model := a.config.DefaultModel
	if model == "" {
		model = "nomic-embed-text"
	}

	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		payload := map[string]interface{}{"model": model, "prompt": text}

		status, body, err := a.do(ctx, http.MethodPost, a.config.BaseURL+"/api/embeddings", nil, payload)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, backendError(a.Name(), status, localErrorMessage(body))
		}

		var parsed struct {
			Embedding []float64 `json:"embedding"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, models.NewBackendError(a.Name(), "malformed embeddings response", status, false, err)
		}
		out = append(out, parsed.Embedding)
	}
	return out, nil
}

// ModerateContent is not offered by this family.
func (a *LocalAdapter) ModerateContent(ctx context.Context, texts []string) ([]bool, error) {
	return nil, models.NewNotSupported(a.Name(), "content moderation")
}

// HealthCheck lists installed models as a cheap idempotent probe.
func (a *LocalAdapter) HealthCheck(ctx context.Context) error {
	status, body, err := a.do(ctx, http.MethodGet, a.config.BaseURL+"/api/tags", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return backendError(a.Name(), status, localErrorMessage(body))
	}
	return nil
}

func localErrorMessage(body []byte) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return parsed.Error
}

type localGenerateRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Options struct {
		Temperature float64 `json:"temperature,omitempty"`
		NumPredict  int     `json:"num_predict,omitempty"`
		TopP        float64 `json:"top_p,omitempty"`
	} `json:"options,omitempty"`
}

type localGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}
