package providers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/mindnote/mindroute/internal/models"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicAPIVersion     = "2023-06-01"
)

// AnthropicAdapter speaks the Anthropic messages API. Embeddings and
// moderation are not part of this family.
type AnthropicAdapter struct {
	*BaseAdapter
}

// NewAnthropicAdapter creates an adapter for Anthropic-style backends.
func NewAnthropicAdapter(config Config, logger *zap.Logger) *AnthropicAdapter {
	if config.BaseURL == "" {
		config.BaseURL = anthropicDefaultBaseURL
	}
	if config.Name == "" {
		config.Name = "anthropic"
	}
	return &AnthropicAdapter{BaseAdapter: newBaseAdapter(config, logger)}
}

func (a *AnthropicAdapter) Name() string {
	return a.config.Name
}

// GenerateText executes a messages call.
func (a *AnthropicAdapter) GenerateText(ctx context.Context, desc models.ServiceDescriptor, req models.Request) (*models.Response, error) {
	return a.generate(ctx, desc, req, func(ctx context.Context) (*models.Response, error) {
		maxTokens := req.MaxTokens
		if maxTokens <= 0 {
			maxTokens = defaultMaxTokens
		}

		payload := anthropicRequest{
			Model:     desc.Model,
			MaxTokens: maxTokens,
		}
		for _, m := range messagesFor(req) {
			// The messages API has no system role inside messages;
			// fold system turns into the system field.
			if m.Role == "system" {
				if payload.System != "" {
					payload.System += "\n"
				}
				payload.System += m.Content
				continue
			}
			payload.Messages = append(payload.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
		}
		if req.Temperature > 0 {
			payload.Temperature = &req.Temperature
		}
		if req.TopP > 0 {
			payload.TopP = &req.TopP
		}

		status, body, err := a.do(ctx, http.MethodPost, a.config.BaseURL+"/v1/messages", a.headers(), payload)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, backendError(desc.Key(), status, anthropicErrorMessage(body))
		}

		var parsed anthropicResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, models.NewBackendError(desc.Key(), "malformed messages response", status, false, err)
		}

		var content string
		for _, block := range parsed.Content {
			if block.Type == "text" {
				content += block.Text
			}
		}

		total := parsed.Usage.InputTokens + parsed.Usage.OutputTokens
		return &models.Response{
			Content: content,
			Usage: models.Usage{
				PromptTokens:     parsed.Usage.InputTokens,
				CompletionTokens: parsed.Usage.OutputTokens,
				TotalTokens:      total,
			},
			FinishReason: normalizeAnthropicFinish(parsed.StopReason),
		}, nil
	})
}

// GenerateEmbedding is not offered by this family.
func (a *AnthropicAdapter) GenerateEmbedding(ctx context.Context, texts []string) ([][]float64, error) {
	return nil, models.NewNotSupported(a.Name(), "embedding generation")
}

// ModerateContent is not offered by this family.
func (a *AnthropicAdapter) ModerateContent(ctx context.Context, texts []string) ([]bool, error) {
	return nil, models.NewNotSupported(a.Name(), "content moderation")
}

// HealthCheck lists models as a cheap idempotent probe.
func (a *AnthropicAdapter) HealthCheck(ctx context.Context) error {
	status, body, err := a.do(ctx, http.MethodGet, a.config.BaseURL+"/v1/models", a.headers(), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return backendError(a.Name(), status, anthropicErrorMessage(body))
	}
	return nil
}

func (a *AnthropicAdapter) headers() map[string]string {
	return map[string]string{
		"x-api-key":         a.config.APIKey,
		"anthropic-version": anthropicAPIVersion,
	}
}

func normalizeAnthropicFinish(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return models.FinishStop
	case "max_tokens":
		return models.FinishLength
	case "":
		return ""
	default:
		return models.FinishStop
	}
}

func anthropicErrorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return parsed.Error.Message
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
