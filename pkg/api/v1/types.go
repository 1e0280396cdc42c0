// Package v1 defines the public request and response shapes of the HTTP
// API.
package v1

import (
	"time"
)

// GenerateRequest is a content-generation request from a client.
type GenerateRequest struct {
	Prompt      string       `json:"prompt"`
	Context     []Message    `json:"context,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	TopP        float64      `json:"top_p,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`
	Constraints *Constraints `json:"constraints,omitempty"`
	UserID      string       `json:"user_id,omitempty"`
	RequestID   string       `json:"request_id,omitempty"`
}

// Message is a single turn of conversation context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Preferences bias backend ranking for a request.
type Preferences struct {
	Cost    string `json:"cost,omitempty"`
	Speed   string `json:"speed,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// Constraints are hard filters on backend candidates.
type Constraints struct {
	MaxResponseTimeMs float64  `json:"max_response_time_ms,omitempty"`
	MaxCostPerToken   float64  `json:"max_cost_per_token,omitempty"`
	AllowedBackends   []string `json:"allowed_backends,omitempty"`
}

// Usage holds token accounting for one generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateResponse is a normalized generation reply.
type GenerateResponse struct {
	RequestID        string   `json:"request_id"`
	Provider         string   `json:"provider"`
	Model            string   `json:"model"`
	Content          string   `json:"content"`
	Usage            Usage    `json:"usage"`
	Cost             float64  `json:"cost"`
	LatencyMs        float64  `json:"latency_ms"`
	FinishReason     string   `json:"finish_reason,omitempty"`
	Success          bool     `json:"success"`
	Error            string   `json:"error,omitempty"`
	FallbackUsed     bool     `json:"fallback_used"`
	FallbackChain    []string `json:"fallback_chain,omitempty"`
	Cached           bool     `json:"cached"`
	EstimatedQuality int      `json:"estimated_quality,omitempty"`
}

// EmbeddingsRequest asks for one embedding vector per input text.
type EmbeddingsRequest struct {
	Input []string `json:"input"`
}

// EmbeddingsResponse carries one vector per input text, in input order.
type EmbeddingsResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// ModerationRequest asks for one flagged/clean verdict per input text.
type ModerationRequest struct {
	Input []string `json:"input"`
}

// ModerationResponse carries one verdict per input text, in input order.
type ModerationResponse struct {
	Flagged []bool `json:"flagged"`
}

// ErrorResponse is the error envelope for failed API calls.
type ErrorResponse struct {
	Error     ErrorDetails `json:"error"`
	RequestID string       `json:"request_id,omitempty"`
}

// ErrorDetails provides detailed error information.
type ErrorDetails struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	Backend    string `json:"backend,omitempty"`
	Retryable  bool   `json:"retryable"`
}

// BackendHealth is the latest observed health for one backend.
type BackendHealth struct {
	Available      bool      `json:"available"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	ErrorRate      float64   `json:"error_rate"`
	LastChecked    time.Time `json:"last_checked"`
	LastError      string    `json:"last_error,omitempty"`
}

// HealthResponse reports service and per-backend health.
type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Backends  map[string]BackendHealth `json:"backends"`
}

// PerformanceSummary is the latency window summary for one backend.
type PerformanceSummary struct {
	Samples   int     `json:"samples"`
	AverageMs float64 `json:"average_ms"`
	LatestMs  float64 `json:"latest_ms"`
}

// PerformanceResponse reports per-backend latency statistics.
type PerformanceResponse struct {
	Backends  map[string]PerformanceSummary `json:"backends"`
	Timestamp time.Time                     `json:"timestamp"`
}

// CostsResponse reports cumulative spend per backend.
type CostsResponse struct {
	Backends  map[string]float64 `json:"backends"`
	Total     float64            `json:"total"`
	Budget    float64            `json:"budget,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// BackendInfo describes one registered backend.
type BackendInfo struct {
	Key               string  `json:"key"`
	Provider          string  `json:"provider"`
	Model             string  `json:"model"`
	Enabled           bool    `json:"enabled"`
	Priority          int     `json:"priority"`
	CostPerToken      float64 `json:"cost_per_token"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	QualityScore      int     `json:"quality_score"`
}

// BackendsResponse lists the registered backends in registration order.
type BackendsResponse struct {
	Backends []BackendInfo `json:"backends"`
	Total    int           `json:"total"`
}

// StatusMessage is a simple acknowledgement for admin actions.
type StatusMessage struct {
	Message string `json:"message"`
}
