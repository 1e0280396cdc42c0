// Package providers contains one adapter per backend family. An adapter
// translates the generic request into a backend-specific call, applies
// timeout, retry with backoff and jitter, optional response caching and
// admission control, and normalizes the reply into the generic shape.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mindnote/mindroute/internal/cache"
	"github.com/mindnote/mindroute/internal/models"
	"github.com/mindnote/mindroute/internal/ratelimit"
)

// Adapter is the capability set every backend family implements. Families
// without embedding or moderation support return a not-supported error
// rather than failing at wiring time.
type Adapter interface {
	// Name returns the provider family name (registry descriptor Provider).
	Name() string

	// GenerateText executes one completion call for the given descriptor
	// and returns the normalized response.
	GenerateText(ctx context.Context, desc models.ServiceDescriptor, req models.Request) (*models.Response, error)

	// GenerateEmbedding returns one embedding vector per input text.
	GenerateEmbedding(ctx context.Context, texts []string) ([][]float64, error)

	// ModerateContent returns one flagged/clean verdict per input text.
	ModerateContent(ctx context.Context, texts []string) ([]bool, error)

	// HealthCheck issues a cheap idempotent probe with the caller's
	// deadline.
	HealthCheck(ctx context.Context) error

	// Close releases transport resources.
	Close() error
}

// Config holds common per-provider configuration. All knobs are optional;
// zero values fall back to the documented defaults.
type Config struct {
	Name                 string        `mapstructure:"name"`
	APIKey               string        `mapstructure:"api_key"`
	BaseURL              string        `mapstructure:"base_url"`
	DefaultModel         string        `mapstructure:"default_model"`
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxRetries           int           `mapstructure:"max_retries"`
	RetryDelay           time.Duration `mapstructure:"retry_delay"`
	CacheTTL             time.Duration `mapstructure:"cache_ttl"`
	CacheSize            int           `mapstructure:"cache_size"`
	MaxRequestsPerMinute int           `mapstructure:"max_requests_per_minute"`
	MaxTokensPerMinute   int           `mapstructure:"max_tokens_per_minute"`
	Enabled              bool          `mapstructure:"enabled"`
}

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 2
	defaultRetryDelay = 500 * time.Millisecond
	defaultMaxTokens  = 256
)

// BaseAdapter provides the shared call pipeline: cache lookup, admission
// control, per-call deadline, retry with exponential backoff plus jitter,
// and response normalization.
type BaseAdapter struct {
	config  Config
	client  *http.Client
	cache   *cache.ResponseCache
	limiter *ratelimit.Window
	logger  *zap.Logger
}

func newBaseAdapter(config Config, logger *zap.Logger) *BaseAdapter {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = defaultMaxRetries
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaultRetryDelay
	}

	b := &BaseAdapter{
		config: config,
		client: &http.Client{},
		logger: logger,
	}
	if config.CacheTTL > 0 {
		b.cache = cache.New(config.CacheTTL, config.CacheSize)
	}
	if config.MaxRequestsPerMinute > 0 || config.MaxTokensPerMinute > 0 {
		b.limiter = ratelimit.NewWindow(config.MaxRequestsPerMinute, config.MaxTokensPerMinute)
	}
	return b
}

// Config returns the adapter configuration.
func (b *BaseAdapter) Config() Config {
	return b.config
}

// Close drops idle transport connections.
func (b *BaseAdapter) Close() error {
	if b.client != nil {
		b.client.CloseIdleConnections()
	}
	return nil
}

// generate runs the shared pipeline around a vendor call. call receives a
// context already bounded by the per-call timeout; it is invoked once per
// retry attempt.
func (b *BaseAdapter) generate(ctx context.Context, desc models.ServiceDescriptor, req models.Request,
	call func(ctx context.Context) (*models.Response, error)) (*models.Response, error) {

	key := cache.Key(fullPrompt(req), desc.Model, req.Temperature, req.MaxTokens, req.TopP)
	if b.cache != nil {
		if cached, ok := b.cache.Get(key); ok {
			cached.RequestID = req.RequestID
			cached.Metadata.Cached = true
			cached.Latency = 0
			return &cached, nil
		}
	}

	estimated := estimateTokens(req)
	if b.limiter != nil {
		if err := b.limiter.Admit(estimated); err != nil {
			return nil, models.NewRateLimited(desc.Key(), err.Error())
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	backoff := retry.WithMaxRetries(uint64(b.config.MaxRetries),
		retry.WithJitter(b.config.RetryDelay/2,
			retry.NewExponential(b.config.RetryDelay)))

	start := time.Now()
	var resp *models.Response
	err := retry.Do(callCtx, backoff, func(ctx context.Context) error {
		r, callErr := call(ctx)
		if callErr != nil {
			if models.IsRetryable(callErr) {
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		resp = r
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, models.NewTimeout(desc.Key(), err)
		}
		return nil, err
	}

	resp.RequestID = req.RequestID
	resp.Provider = desc.Provider
	resp.Model = desc.Model
	resp.Latency = elapsed
	resp.Cost = float64(resp.Usage.TotalTokens) * desc.CostPerToken
	resp.Success = true

	// Housekeeping below is best-effort and independent of the caller's
	// context.
	if b.limiter != nil && resp.Usage.TotalTokens > estimated {
		b.limiter.Observe(resp.Usage.TotalTokens - estimated)
	}
	if b.cache != nil {
		b.cache.Set(key, *resp)
	}
	return resp, nil
}

// do issues one JSON HTTP call and returns the status and raw body. The
// caller decodes vendor-specific shapes.
func (b *BaseAdapter) do(ctx context.Context, method, url string, headers map[string]string, payload interface{}) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := b.client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return httpResp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return httpResp.StatusCode, raw, nil
}

// backendError classifies a non-2xx vendor status. 5xx and 429 are
// transient; authentication and bad-request classes fail fast.
func backendError(backend string, status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	retryable := status >= 500 || status == http.StatusTooManyRequests
	return models.NewBackendError(backend, message, status, retryable, nil)
}

// fullPrompt flattens the conversation context plus the prompt into the
// canonical string used for cache keys and token estimates.
func fullPrompt(req models.Request) string {
	if len(req.Context) == 0 {
		return req.Prompt
	}
	var sb strings.Builder
	for _, m := range req.Context {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	sb.WriteString(req.Prompt)
	return sb.String()
}

// estimateTokens approximates the call's token volume for admission
// control: roughly four characters per prompt token plus the completion
// budget.
func estimateTokens(req models.Request) int {
	chars := len(req.Prompt)
	for _, m := range req.Context {
		chars += len(m.Content)
	}
	completion := req.MaxTokens
	if completion <= 0 {
		completion = defaultMaxTokens
	}
	return chars/4 + completion
}

// messagesFor builds the normalized role/content sequence for chat-style
// vendors: conversation context first, then the prompt as a user turn.
func messagesFor(req models.Request) []models.Message {
	msgs := make([]models.Message, 0, len(req.Context)+1)
	msgs = append(msgs, req.Context...)
	msgs = append(msgs, models.Message{Role: "user", Content: req.Prompt})
	return msgs
}
