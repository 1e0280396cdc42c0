package providers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/mindnote/mindroute/internal/models"
)

const qwenDefaultBaseURL = "https://dashscope.aliyuncs.com/api/v1"

// QwenAdapter speaks the DashScope-style text generation API used by Qwen
// models.
type QwenAdapter struct {
	*BaseAdapter
}

// NewQwenAdapter creates an adapter for Qwen-style backends.
func NewQwenAdapter(config Config, logger *zap.Logger) *QwenAdapter {
	if config.BaseURL == "" {
		config.BaseURL = qwenDefaultBaseURL
	}
	if config.Name == "" {
		config.Name = "qwen"
	}
	return &QwenAdapter{BaseAdapter: newBaseAdapter(config, logger)}
}

func (a *QwenAdapter) Name() string {
	return a.config.Name
}

// GenerateText executes a text generation call.
func (a *QwenAdapter) GenerateText(ctx context.Context, desc models.ServiceDescriptor, req models.Request) (*models.Response, error) {
	return a.generate(ctx, desc, req, func(ctx context.Context) (*models.Response, error) {
		payload := qwenRequest{Model: desc.Model}
		for _, m := range messagesFor(req) {
			payload.Input.Messages = append(payload.Input.Messages, qwenMessage{Role: m.Role, Content: m.Content})
		}
		payload.Parameters.ResultFormat = "message"
		if req.Temperature > 0 {
			payload.Parameters.Temperature = req.Temperature
		}
		if req.MaxTokens > 0 {
			payload.Parameters.MaxTokens = req.MaxTokens
		}
		if req.TopP > 0 {
			payload.Parameters.TopP = req.TopP
		}

		url := a.config.BaseURL + "/services/aigc/text-generation/generation"
		status, body, err := a.do(ctx, http.MethodPost, url, a.headers(), payload)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, backendError(desc.Key(), status, qwenErrorMessage(body))
		}

		var parsed qwenResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, models.NewBackendError(desc.Key(), "malformed generation response", status, false, err)
		}
		if len(parsed.Output.Choices) == 0 {
			return nil, models.NewBackendError(desc.Key(), "generation response has no choices", status, false, nil)
		}

		choice := parsed.Output.Choices[0]
		total := parsed.Usage.InputTokens + parsed.Usage.OutputTokens
		return &models.Response{
			Content: choice.Message.Content,
			Usage: models.Usage{
				PromptTokens:     parsed.Usage.InputTokens,
				CompletionTokens: parsed.Usage.OutputTokens,
				TotalTokens:      total,
			},
			FinishReason: normalizeQwenFinish(choice.FinishReason),
		}, nil
	})
}

// GenerateEmbedding is not offered by this family.
func (a *QwenAdapter) GenerateEmbedding(ctx context.Context, texts []string) ([][]float64, error) {
	return nil, models.NewNotSupported(a.Name(), "embedding generation")
}

// ModerateContent is not offered by this family.
func (a *QwenAdapter) ModerateContent(ctx context.Context, texts []string) ([]bool, error) {
	return nil, models.NewNotSupported(a.Name(), "content moderation")
}

// HealthCheck issues a minimal one-token generation as the probe; the
// DashScope API has no model-listing endpoint.
func (a *QwenAdapter) HealthCheck(ctx context.Context) error {
	model := a.config.DefaultModel
	if model == "" {
		model = "qwen-turbo"
	}

	payload := qwenRequest{Model: model}
	payload.Input.Messages = []qwenMessage{{Role: "user", Content: "ping"}}
	payload.Parameters.ResultFormat = "message"
	payload.Parameters.MaxTokens = 1

	url := a.config.BaseURL + "/services/aigc/text-generation/generation"
	status, body, err := a.do(ctx, http.MethodPost, url, a.headers(), payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return backendError(a.Name(), status, qwenErrorMessage(body))
	}
	return nil
}

func (a *QwenAdapter) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + a.config.APIKey,
	}
}

func normalizeQwenFinish(reason string) string {
	switch reason {
	case "stop":
		return models.FinishStop
	case "length":
		return models.FinishLength
	case "":
		return ""
	default:
		return models.FinishStop
	}
}

func qwenErrorMessage(body []byte) string {
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return parsed.Message
}

type qwenRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []qwenMessage `json:"messages"`
	} `json:"input"`
	Parameters struct {
		ResultFormat string  `json:"result_format,omitempty"`
		Temperature  float64 `json:"temperature,omitempty"`
		MaxTokens    int     `json:"max_tokens,omitempty"`
		TopP         float64 `json:"top_p,omitempty"`
	} `json:"parameters,omitempty"`
}

type qwenMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type qwenResponse struct {
	RequestID string `json:"request_id"`
	Output    struct {
		Choices []struct {
			Message      qwenMessage `json:"message"`
			FinishReason string      `json:"finish_reason"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
