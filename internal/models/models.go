package models

import (
	"time"
)

// ServiceDescriptor is the static configuration record for one backend+model
// pair. Descriptors are created at registry initialization and mutated only
// by configuration reload or enable/disable.
type ServiceDescriptor struct {
	Provider          string  `json:"provider" mapstructure:"provider"`
	Model             string  `json:"model" mapstructure:"model"`
	Enabled           bool    `json:"enabled" mapstructure:"enabled"`
	Priority          int     `json:"priority" mapstructure:"priority"`
	CostPerToken      float64 `json:"cost_per_token" mapstructure:"cost_per_token"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms" mapstructure:"avg_response_time_ms"`
	QualityScore      int     `json:"quality_score" mapstructure:"quality_score"`
}

// Key returns the unique registry key for this descriptor.
func (d ServiceDescriptor) Key() string {
	return d.Provider + "/" + d.Model
}

// ServiceHealth is the latest observed health for one backend. Entries are
// overwritten on every probe or call outcome. A backend with Available=false
// is excluded from candidate selection.
type ServiceHealth struct {
	Available      bool      `json:"available"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	ErrorRate      float64   `json:"error_rate"`
	LastChecked    time.Time `json:"last_checked"`
	LastError      string    `json:"last_error,omitempty"`
}

// Message is a single turn of conversation context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Preference values. A "high" cost preference deliberately treats price as a
// quality signal and rewards more expensive backends.
const (
	CostPreferenceLow  = "low"
	CostPreferenceHigh = "high"

	SpeedPreferenceFast = "fast"

	QualityPreferenceExcellent = "excellent"
)

// Preferences bias the tie-break ranking of candidates that share a priority.
type Preferences struct {
	Cost    string `json:"cost,omitempty"`
	Speed   string `json:"speed,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// Constraints are hard filters applied during candidate selection. Zero
// values mean "no constraint".
type Constraints struct {
	MaxResponseTimeMs float64  `json:"max_response_time_ms,omitempty"`
	MaxCostPerToken   float64  `json:"max_cost_per_token,omitempty"`
	AllowedBackends   []string `json:"allowed_backends,omitempty"`
}

// Request is the generic content-generation request handed to the
// orchestrator by the application layer.
type Request struct {
	RequestID   string       `json:"request_id,omitempty"`
	UserID      string       `json:"user_id,omitempty"`
	Prompt      string       `json:"prompt"`
	Context     []Message    `json:"context,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	TopP        float64      `json:"top_p,omitempty"`
	Preferences Preferences  `json:"preferences,omitempty"`
	Constraints *Constraints `json:"constraints,omitempty"`
}

// Usage holds token accounting for one backend call. Vendors that do not
// report usage yield zeros, never an error.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Normalized finish reasons across vendors.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
	FinishError         = "error"
)

// ResponseMetadata carries routing provenance for one request.
type ResponseMetadata struct {
	FallbackUsed     bool     `json:"fallback_used"`
	FallbackChain    []string `json:"fallback_chain"`
	Cached           bool     `json:"cached"`
	EstimatedQuality int      `json:"estimated_quality,omitempty"`
}

// Response is the generic normalized reply returned to the application
// layer. Failures are reported as Success=false with Error populated, never
// as a bare error escaping the orchestration boundary.
type Response struct {
	RequestID    string           `json:"request_id"`
	Provider     string           `json:"provider"`
	Model        string           `json:"model"`
	Content      string           `json:"content"`
	Usage        Usage            `json:"usage"`
	Cost         float64          `json:"cost"`
	Latency      time.Duration    `json:"latency"`
	FinishReason string           `json:"finish_reason,omitempty"`
	Success      bool             `json:"success"`
	Error        string           `json:"error,omitempty"`
	Metadata     ResponseMetadata `json:"metadata"`
}
