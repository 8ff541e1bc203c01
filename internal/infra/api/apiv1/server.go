package apiv1

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/repository"
	uc "uniai-studio/internal/domain/ports/usecase"
	"uniai-studio/internal/infra/logging"
	"uniai-studio/internal/infra/metrics"
	red "uniai-studio/internal/infra/redis"
)

const maxBodyBytes = 1 << 20

// Limiter is the submit throttle, backed by redis in production.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Server struct {
	gen       uc.GenerationUseCase
	settings  uc.SettingsUseCase
	retention uc.RetentionUseCase
	auth      *AuthManager

	limiter        Limiter
	perMinute      int
	trustForwarded bool

	log *zerolog.Logger
}

type Options struct {
	Limiter         Limiter
	SubmitPerMinute int
	// TrustForwarded keys the throttle on X-Forwarded-For / X-Real-IP. Leave
	// it off unless a proxy in front of the service overwrites those headers.
	TrustForwarded bool
}

func NewServer(gen uc.GenerationUseCase, settings uc.SettingsUseCase, retention uc.RetentionUseCase, auth *AuthManager, opts Options, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "apiv1").Logger()
	return &Server{
		gen:            gen,
		settings:       settings,
		retention:      retention,
		auth:           auth,
		limiter:        opts.Limiter,
		perMinute:      opts.SubmitPerMinute,
		trustForwarded: opts.TrustForwarded,
		log:            &l,
	}
}

// RegisterAPIV1 mounts every /api/v1 route on r.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/api/v1", func(r chi.Router) {
		submit := r.With(s.throttle)
		if s.trustForwarded {
			submit = r.With(middleware.RealIP, s.throttle)
		}
		submit.Post("/generate", s.handleGenerate)
		r.Post("/batches", s.handleNewBatch)
		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/{taskId}", s.handleGetTask)
		r.Get("/models", s.handleModels)

		r.Post("/admin/token", s.handleToken)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/admin/settings/{key}", s.handleGetSetting)
			r.Put("/admin/settings/{key}", s.handlePutSetting)
			r.Post("/admin/cleanup", s.handleCleanup)
		})
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body GenerateRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	req := body.toModel()
	ctx := r.Context()

	if body.BatchCount > 1 {
		res, err := s.gen.SubmitBatch(ctx, req, body.BatchCount)
		if err != nil {
			s.writeSubmitError(w, r, err)
			return
		}
		resp := GenerateResponse{
			Status:  string(model.TaskStatusProcessing),
			BatchID: res.BatchID,
			TaskIDs: res.TaskIDs(),
			Errors:  res.Errors,
		}
		if len(res.Tasks) > 0 {
			resp.TaskID = res.Tasks[0].ID
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	req.BatchCount = 1
	task, err := s.gen.Submit(ctx, req)
	if err != nil {
		s.writeSubmitError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateResponse{
		TaskID:  task.ID,
		Status:  string(task.Status),
		BatchID: task.BatchID,
	})
}

func (s *Server) handleNewBatch(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, BatchResponse{BatchID: s.gen.NewBatchID()})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.gen.GetTask(r.Context(), chi.URLParam(r, "taskId"))
	if err != nil {
		s.writeLookupError(w, r, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, taskFromModel(task))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.TaskFilter{
		Model:        q.Get("model"),
		ExcludeModel: q.Get("excludeModel"),
		BatchID:      q.Get("batchId"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	tasks, err := s.gen.ListTasks(r.Context(), f)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	out := TaskList{Tasks: make([]Task, 0, len(tasks))}
	for _, t := range tasks {
		out.Tasks = append(out.Tasks, taskFromModel(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	entries := s.gen.Models()
	out := ModelList{Items: make([]Model, 0, len(entries))}
	for _, e := range entries {
		out.Items = append(out.Items, Model{
			Name:            e.Name,
			Provider:        e.Provider,
			Mode:            string(e.Mode),
			MaxPromptLength: e.MaxPromptLength,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Enabled() {
		writeError(w, http.StatusForbidden, "admin api is not configured")
		return
	}
	var body TokenRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if !s.auth.CheckAPIKey(body.APIKey) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	tok, exp, err := s.auth.Mint()
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: tok, ExpiresAt: exp})
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	v, err := s.settings.Get(r.Context(), key)
	if err != nil {
		s.writeLookupError(w, r, err, "setting not found")
		return
	}
	out := Setting{Key: key, Value: v}
	if model.IsSecretSetting(key) {
		out.Value = logging.Redact(v, false)
		out.Masked = true
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var body SettingUpdate
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := s.settings.Set(r.Context(), key, body.Value); err != nil {
		if domain.IsValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeInternal(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	n, err := s.retention.Cleanup(r.Context())
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CleanupResponse{Deleted: n})
}

// throttle applies the per client fixed window. A limiter failure lets the
// request through.
func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || s.perMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ok, err := s.limiter.Allow(r.Context(), red.SubmitKey(clientIP(r)), s.perMinute, time.Minute)
		if err != nil {
			logging.With(r.Context(), s.log).Warn().Err(err).Msg("rate limiter unavailable")
		} else if !ok {
			metrics.IncSubmitRejected("rate_limited")
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "too many submissions, retry later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsClientError(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeInternal(w, r, err)
}

func (s *Server) writeLookupError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	s.writeInternal(w, r, err)
}

func (s *Server) writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is required")
		} else {
			writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		}
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}

// clientIP is the peer address. Forwarded headers only count when
// middleware.RealIP has already rewritten RemoteAddr from them.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
