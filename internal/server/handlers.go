package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mindnote/mindroute/internal/models"
	v1 "github.com/mindnote/mindroute/pkg/api/v1"
)

const apiVersion = "1.0.0"

// handleServiceHealth reports overall service liveness plus per-backend
// health.
func (s *Server) handleServiceHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, v1.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   apiVersion,
		Backends:  toBackendHealth(s.orch.HealthSnapshot()),
	})
}

// handleGenerate routes one generation request through the orchestrator.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var apiReq v1.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&apiReq); err != nil {
		s.logger.Warn("failed to decode request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", "")
		return
	}
	if apiReq.Prompt == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "prompt is required", apiReq.RequestID)
		return
	}

	resp, err := s.orch.Route(r.Context(), toModelRequest(apiReq))
	if err != nil {
		status := statusForKind(models.KindOf(err))
		if s.metrics != nil {
			s.metrics.RecordRequestError(r.Method, r.URL.Path, string(models.KindOf(err)))
		}

		detail := v1.ErrorDetails{
			Type:       string(models.KindOf(err)),
			Message:    err.Error(),
			StatusCode: status,
			Retryable:  models.IsRetryable(err),
		}
		var re *models.RoutingError
		if errors.As(err, &re) {
			detail.Backend = re.Backend
		}
		requestID := ""
		if resp != nil {
			requestID = resp.RequestID
		}
		writeJSON(w, status, v1.ErrorResponse{
			Error:     detail,
			RequestID: requestID,
		})
		return
	}

	writeJSON(w, http.StatusOK, toAPIResponse(resp))
}

// handleEmbeddings proxies embedding generation to a capable backend family.
func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var apiReq v1.EmbeddingsRequest
	if err := json.NewDecoder(r.Body).Decode(&apiReq); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", "")
		return
	}
	if len(apiReq.Input) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "input is required", "")
		return
	}

	vectors, err := s.orch.Embed(r.Context(), apiReq.Input)
	if err != nil {
		writeError(w, statusForKind(models.KindOf(err)), string(models.KindOf(err)), err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, v1.EmbeddingsResponse{Embeddings: vectors})
}

// handleModerations proxies content moderation to a capable backend family.
func (s *Server) handleModerations(w http.ResponseWriter, r *http.Request) {
	var apiReq v1.ModerationRequest
	if err := json.NewDecoder(r.Body).Decode(&apiReq); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", "")
		return
	}
	if len(apiReq.Input) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "input is required", "")
		return
	}

	verdicts, err := s.orch.Moderate(r.Context(), apiReq.Input)
	if err != nil {
		writeError(w, statusForKind(models.KindOf(err)), string(models.KindOf(err)), err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, v1.ModerationResponse{Flagged: verdicts})
}

// handleBackendHealth reports the latest probe results per backend.
func (s *Server) handleBackendHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, v1.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   apiVersion,
		Backends:  toBackendHealth(s.orch.HealthSnapshot()),
	})
}

// handlePerformance reports latency window summaries per backend.
func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	snapshot := s.orch.PerformanceSnapshot()
	backends := make(map[string]v1.PerformanceSummary, len(snapshot))
	for key, summary := range snapshot {
		backends[key] = v1.PerformanceSummary{
			Samples:   summary.Samples,
			AverageMs: summary.AverageMs,
			LatestMs:  summary.LatestMs,
		}
	}
	writeJSON(w, http.StatusOK, v1.PerformanceResponse{
		Backends:  backends,
		Timestamp: time.Now(),
	})
}

// handleCosts reports cumulative spend per backend and against the budget.
func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, v1.CostsResponse{
		Backends:  s.orch.CostSnapshot(),
		Total:     s.orch.TotalCost(),
		Budget:    s.config.Routing.DailyBudget,
		Timestamp: time.Now(),
	})
}

// handleListBackends lists registered backends in registration order.
func (s *Server) handleListBackends(w http.ResponseWriter, r *http.Request) {
	descs := s.orch.Backends()
	infos := make([]v1.BackendInfo, len(descs))
	for i, d := range descs {
		infos[i] = v1.BackendInfo{
			Key:               d.Key(),
			Provider:          d.Provider,
			Model:             d.Model,
			Enabled:           d.Enabled,
			Priority:          d.Priority,
			CostPerToken:      d.CostPerToken,
			AvgResponseTimeMs: d.AvgResponseTimeMs,
			QualityScore:      d.QualityScore,
		}
	}
	writeJSON(w, http.StatusOK, v1.BackendsResponse{Backends: infos, Total: len(infos)})
}

func (s *Server) handleEnableBackend(w http.ResponseWriter, r *http.Request) {
	s.setBackendEnabled(w, r, true)
}

func (s *Server) handleDisableBackend(w http.ResponseWriter, r *http.Request) {
	s.setBackendEnabled(w, r, false)
}

func (s *Server) setBackendEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	key := chi.URLParam(r, "provider") + "/" + chi.URLParam(r, "model")

	var err error
	if enabled {
		err = s.orch.EnableBackend(key)
	} else {
		err = s.orch.DisableBackend(key)
	}
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error(), "")
		return
	}

	action := "disabled"
	if enabled {
		action = "enabled"
	}
	s.logger.Info("backend toggled", zap.String("backend", key), zap.String("action", action))
	writeJSON(w, http.StatusOK, v1.StatusMessage{
		Message: fmt.Sprintf("backend %s %s", key, action),
	})
}

// handleForceHealthCheck triggers an immediate probe pass.
func (s *Server) handleForceHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.orch.ForceHealthCheck()
	writeJSON(w, http.StatusOK, v1.StatusMessage{Message: "health check triggered"})
}

// handleResetCosts zeroes the spend ledger.
func (s *Server) handleResetCosts(w http.ResponseWriter, r *http.Request) {
	s.orch.ResetCosts()
	writeJSON(w, http.StatusOK, v1.StatusMessage{Message: "cost ledger reset"})
}

// statusForKind maps a routing failure kind to an HTTP status.
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindConfiguration:
		return http.StatusInternalServerError
	case models.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case models.KindRateLimited, models.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case models.KindTimeout:
		return http.StatusGatewayTimeout
	case models.KindBackend, models.KindAllProvidersFailed:
		return http.StatusBadGateway
	case models.KindNotSupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func toModelRequest(apiReq v1.GenerateRequest) models.Request {
	req := models.Request{
		RequestID:   apiReq.RequestID,
		UserID:      apiReq.UserID,
		Prompt:      apiReq.Prompt,
		Temperature: apiReq.Temperature,
		MaxTokens:   apiReq.MaxTokens,
		TopP:        apiReq.TopP,
	}
	for _, msg := range apiReq.Context {
		req.Context = append(req.Context, models.Message{Role: msg.Role, Content: msg.Content})
	}
	if apiReq.Preferences != nil {
		req.Preferences = models.Preferences{
			Cost:    apiReq.Preferences.Cost,
			Speed:   apiReq.Preferences.Speed,
			Quality: apiReq.Preferences.Quality,
		}
	}
	if apiReq.Constraints != nil {
		req.Constraints = &models.Constraints{
			MaxResponseTimeMs: apiReq.Constraints.MaxResponseTimeMs,
			MaxCostPerToken:   apiReq.Constraints.MaxCostPerToken,
			AllowedBackends:   apiReq.Constraints.AllowedBackends,
		}
	}
	return req
}

func toAPIResponse(resp *models.Response) v1.GenerateResponse {
	return v1.GenerateResponse{
		RequestID: resp.RequestID,
		Provider:  resp.Provider,
		Model:     resp.Model,
		Content:   resp.Content,
		Usage: v1.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Cost:             resp.Cost,
		LatencyMs:        float64(resp.Latency) / float64(time.Millisecond),
		FinishReason:     resp.FinishReason,
		Success:          resp.Success,
		Error:            resp.Error,
		FallbackUsed:     resp.Metadata.FallbackUsed,
		FallbackChain:    resp.Metadata.FallbackChain,
		Cached:           resp.Metadata.Cached,
		EstimatedQuality: resp.Metadata.EstimatedQuality,
	}
}

func toBackendHealth(snapshot map[string]models.ServiceHealth) map[string]v1.BackendHealth {
	backends := make(map[string]v1.BackendHealth, len(snapshot))
	for key, h := range snapshot {
		backends[key] = v1.BackendHealth{
			Available:      h.Available,
			ResponseTimeMs: h.ResponseTimeMs,
			ErrorRate:      h.ErrorRate,
			LastChecked:    h.LastChecked,
			LastError:      h.LastError,
		}
	}
	return backends
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, errType, message, requestID string) {
	writeJSON(w, status, v1.ErrorResponse{
		Error: v1.ErrorDetails{
			Type:       errType,
			Message:    message,
			StatusCode: status,
		},
		RequestID: requestID,
	})
}
