package apiv1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"divination-ai/internal/domain"
	"divination-ai/internal/domain/model"
	"divination-ai/internal/infra/logging"
	"divination-ai/internal/usecase"
)

const maxBodyBytes = 64 << 10

var _ ServerInterface = (*Server)(nil)

type Server struct {
	uc  usecase.DivinationUseCase
	log *zerolog.Logger
}

func NewServer(uc usecase.DivinationUseCase, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "apiv1").Logger()
	return &Server{uc: uc, log: &l}
}

// NewRouter builds the full HTTP surface: health, metrics and the
// authenticated /api/v1 routes.
func NewRouter(srv *Server, auth *AuthManager, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID, RequestLog(srv.log), Recover(srv.log))
	if requestTimeout > 0 {
		r.Use(Timeout(requestTimeout))
	}
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		RegisterAPIV1(r, srv)
	})
	return r
}

func (s *Server) SubmitDivination(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, errors.Join(domain.ErrInvalidArgument, err))
		return
	}
	mode, err := model.ParseMode(req.Mode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cmd := usecase.SubmitCommand{
		Mode:     mode,
		Question: req.Question,
		Draw:     req.Draw,
		Provider: req.Provider,
	}
	if req.Metadata != nil {
		cmd.Metadata = *req.Metadata
	}
	job, err := s.uc.Submit(r.Context(), UserID(r.Context()), cmd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitResponse{ID: job.ID, Status: string(job.Status)})
}

func (s *Server) GetJob(w http.ResponseWriter, r *http.Request, id JobID) {
	job, err := s.uc.Status(r.Context(), UserID(r.Context()), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) CancelJob(w http.ResponseWriter, r *http.Request, id JobID) {
	job, err := s.uc.Cancel(r.Context(), UserID(r.Context()), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{ID: job.ID, Status: string(job.Status), Message: "cancelled"})
}

// statusFor maps domain errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrJobTerminal), errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrInvalidDraw),
		errors.Is(err, domain.ErrUnknownMode),
		errors.Is(err, domain.ErrUnknownSpread),
		errors.Is(err, domain.ErrUnknownCard),
		errors.Is(err, domain.ErrSelectionShort),
		errors.Is(err, domain.ErrEmptyQuestion),
		errors.Is(err, domain.ErrQuestionTooLong),
		errors.Is(err, domain.ErrMissingProvider):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
