package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/mindnote/mindroute/internal/models"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIAdapter speaks the OpenAI-style chat completions API. It is the
// only family exposing embeddings and moderation.
type OpenAIAdapter struct {
	*BaseAdapter
}

// NewOpenAIAdapter creates an adapter for OpenAI-style backends.
func NewOpenAIAdapter(config Config, logger *zap.Logger) *OpenAIAdapter {
	if config.BaseURL == "" {
		config.BaseURL = openAIDefaultBaseURL
	}
	if config.Name == "" {
		config.Name = "openai"
	}
	return &OpenAIAdapter{BaseAdapter: newBaseAdapter(config, logger)}
}

func (a *OpenAIAdapter) Name() string {
	return a.config.Name
}

// GenerateText executes a chat completion call.
func (a *OpenAIAdapter) GenerateText(ctx context.Context, desc models.ServiceDescriptor, req models.Request) (*models.Response, error) {
	return a.generate(ctx, desc, req, func(ctx context.Context) (*models.Response, error) {
		payload := openAIChatRequest{
			Model:    desc.Model,
			Messages: make([]openAIMessage, 0, len(req.Context)+1),
			Stream:   false,
		}
		for _, m := range messagesFor(req) {
			payload.Messages = append(payload.Messages, openAIMessage{Role: m.Role, Content: m.Content})
		}
		if req.Temperature > 0 {
			payload.Temperature = &req.Temperature
		}
		if req.MaxTokens > 0 {
			payload.MaxTokens = &req.MaxTokens
		}
		if req.TopP > 0 {
			payload.TopP = &req.TopP
		}
		if req.UserID != "" {
			payload.User = req.UserID
		}

		status, body, err := a.do(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", a.headers(), payload)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, backendError(desc.Key(), status, openAIErrorMessage(body))
		}

		var parsed openAIChatResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, models.NewBackendError(desc.Key(), "malformed completion response", status, false, err)
		}
		if len(parsed.Choices) == 0 {
			return nil, models.NewBackendError(desc.Key(), "completion response has no choices", status, false, nil)
		}

		choice := parsed.Choices[0]
		return &models.Response{
			Content: choice.Message.Content,
			Usage: models.Usage{
				PromptTokens:     parsed.Usage.PromptTokens,
				CompletionTokens: parsed.Usage.CompletionTokens,
				TotalTokens:      parsed.Usage.TotalTokens,
			},
			FinishReason: normalizeOpenAIFinish(choice.FinishReason),
		}, nil
	})
}

// GenerateEmbedding returns one vector per input text.
func (a *OpenAIAdapter) GenerateEmbedding(ctx context.Context, texts []string) ([][]float64, error) {
	model := a.config.DefaultModel
	if model == "" {
		model = "text-embedding-3-small"
	}
	payload := map[string]interface{}{"model": model, "input": texts}

	status, body, err := a.do(ctx, http.MethodPost, a.config.BaseURL+"/embeddings", a.headers(), payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, backendError(a.Name(), status, openAIErrorMessage(body))
	}

	var parsed struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, models.NewBackendError(a.Name(), "malformed embeddings response", status, false, err)
	}

	out := make([][]float64, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

// ModerateContent returns one flagged verdict per input text.
func (a *OpenAIAdapter) ModerateContent(ctx context.Context, texts []string) ([]bool, error) {
	payload := map[string]interface{}{"input": texts}

	status, body, err := a.do(ctx, http.MethodPost, a.config.BaseURL+"/moderations", a.headers(), payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, backendError(a.Name(), status, openAIErrorMessage(body))
	}

	var parsed struct {
		Results []struct {
			Flagged bool `json:"flagged"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, models.NewBackendError(a.Name(), "malformed moderation response", status, false, err)
	}

	out := make([]bool, len(parsed.Results))
	for i, r := range parsed.Results {
		out[i] = r.Flagged
	}
	return out, nil
}

// HealthCheck lists models as a cheap idempotent probe.
func (a *OpenAIAdapter) HealthCheck(ctx context.Context) error {
	status, body, err := a.do(ctx, http.MethodGet, a.config.BaseURL+"/models", a.headers(), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return backendError(a.Name(), status, openAIErrorMessage(body))
	}
	return nil
}

func (a *OpenAIAdapter) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + a.config.APIKey,
	}
}

func normalizeOpenAIFinish(reason string) string {
	switch reason {
	case "stop":
		return models.FinishStop
	case "length":
		return models.FinishLength
	case "content_filter":
		return models.FinishContentFilter
	case "":
		return ""
	default:
		return models.FinishStop
	}
}

func openAIErrorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error.Message == "" {
		return ""
	}
	if parsed.Error.Type != "" {
		return fmt.Sprintf("%s: %s", parsed.Error.Type, parsed.Error.Message)
	}
	return parsed.Error.Message
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stream      bool            `json:"stream"`
	User        string          `json:"user,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
