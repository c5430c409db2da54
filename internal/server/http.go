// Package server exposes the detection service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/inboxguard/inboxguard/internal/ato"
	"github.com/inboxguard/inboxguard/internal/core"
	"github.com/inboxguard/inboxguard/internal/service"
	"github.com/inboxguard/inboxguard/internal/threatintel"
	"github.com/inboxguard/inboxguard/internal/webhook"
)

// Signature headers on inbound feedback webhooks.
const (
	HeaderTimestamp = "X-Inboxguard-Timestamp"
	HeaderSignature = "X-Inboxguard-Signature"
)

// maxBodyBytes bounds request bodies; emails arrive parsed, not raw.
const maxBodyBytes = 2 << 20

// Server is the HTTP front of the detection service.
type Server struct {
	svc      *service.DetectionService
	clicks   *threatintel.ClickChecker
	travel   *ato.Detector
	feedback core.FeedbackStore
	signer   *webhook.Signer
	registry *prometheus.Registry
	logger   *zap.Logger
	httpSrv  *http.Server
}

// New builds a server listening on addr. The click checker, travel detector,
// feedback store and signer are optional; their endpoints answer 404 when
// absent.
func New(addr string, svc *service.DetectionService, clicks *threatintel.ClickChecker, travel *ato.Detector, feedback core.FeedbackStore, signer *webhook.Signer, registry *prometheus.Registry, logger *zap.Logger) *Server {
	s := &Server{
		svc:      svc,
		clicks:   clicks,
		travel:   travel,
		feedback: feedback,
		signer:   signer,
		registry: registry,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("POST /clickcheck", s.handleClickCheck)
	mux.HandleFunc("POST /travelcheck", s.handleTravelCheck)
	mux.HandleFunc("POST /feedback", s.handleFeedback)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	if s.logger != nil {
		s.logger.Info("HTTP server listening", zap.String("addr", s.httpSrv.Addr))
	}
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

type analyzeRequest struct {
	Email    *core.Email             `json:"email"`
	Tenant   core.TenantContext      `json:"tenant"`
	Behavior *core.EmailBehaviorData `json:"behavior,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if req.Email == nil {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if req.Email.ID == uuid.Nil {
		req.Email.ID = uuid.New()
	}

	verdict, err := s.svc.AnalyzeEmail(r.Context(), service.AnalyzeRequest{
		Email:    req.Email,
		Tenant:   req.Tenant,
		Behavior: req.Behavior,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Error("Analysis failed", zap.Error(err))
		}
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

type clickCheckRequest struct {
	URL string `json:"url"`
	// Key scopes the rate limit, typically the tenant ID.
	Key string `json:"key,omitempty"`
}

func (s *Server) handleClickCheck(w http.ResponseWriter, r *http.Request) {
	if s.clicks == nil {
		http.NotFound(w, r)
		return
	}
	var req clickCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	key := req.Key
	if key == "" {
		key = "default"
	}

	verdict, err := s.clicks.Check(r.Context(), key, req.URL)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("Click check failed", zap.Error(err))
		}
		writeError(w, http.StatusInternalServerError, "click check failed")
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

type travelCheckRequest struct {
	Previous core.LoginLocation   `json:"previous"`
	Current  core.LoginLocation   `json:"current"`
	Patterns []core.TravelPattern `json:"patterns,omitempty"`
}

func (s *Server) handleTravelCheck(w http.ResponseWriter, r *http.Request) {
	if s.travel == nil {
		http.NotFound(w, r)
		return
	}
	var req travelCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if req.Current.UserID == "" {
		writeError(w, http.StatusBadRequest, "current.user_id is required")
		return
	}

	alert, err := s.travel.Check(r.Context(), req.Previous, req.Current, req.Patterns)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("Travel check failed", zap.Error(err))
		}
		writeError(w, http.StatusInternalServerError, "travel check failed")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// handleFeedback accepts signed anomaly feedback. The body is read raw first
// because the signature covers the exact bytes sent.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil || s.signer == nil {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if err := s.signer.Verify(r.Header.Get(HeaderTimestamp), r.Header.Get(HeaderSignature), body); err != nil {
		if s.logger != nil {
			s.logger.Warn("Rejected feedback webhook", zap.Error(err))
		}
		writeError(w, http.StatusUnauthorized, "signature verification failed")
		return
	}

	var rec core.FeedbackRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid feedback payload")
		return
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.TenantID == "" || (rec.Kind != core.FeedbackFalsePositive && rec.Kind != core.FeedbackTruePositive) {
		writeError(w, http.StatusBadRequest, "tenant_id and a valid kind are required")
		return
	}

	if err := s.feedback.Append(r.Context(), rec); err != nil {
		if s.logger != nil {
			s.logger.Error("Failed to store feedback", zap.Error(err))
		}
		writeError(w, http.StatusInternalServerError, "failed to store feedback")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": rec.ID.String()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
