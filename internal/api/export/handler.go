package export

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/secassist/ai-backend/internal/entity"
	"github.com/secassist/ai-backend/internal/pkg/formatter"
	"github.com/secassist/ai-backend/internal/pkg/logger"
	"github.com/secassist/ai-backend/internal/pkg/response"
	"github.com/secassist/ai-backend/internal/usecase/pipeline"
	"go.uber.org/zap"
)

// SessionProvider exposes the stored state of a session for export.
type SessionProvider interface {
	GetSession(ctx context.Context, sessionID string) (*pipeline.SessionView, error)
}

// Handler turns session transcripts and evaluation data into downloadable
// files.
type Handler struct {
	provider SessionProvider
	factory  *formatter.Factory
}

func NewHandler(provider SessionProvider) *Handler {
	return &Handler{
		provider: provider,
		factory:  formatter.NewFactory(),
	}
}

// ExportChat handles GET /export/chat/{format}/{id}.
func (h *Handler) ExportChat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	ctx := logger.AddFields(r.Context(),
		zap.String("session_id", sessionID),
		zap.String("action", "ExportChat"),
	)

	fmtr, ok := h.formatter(ctx, w, r)
	if !ok {
		return
	}

	view, ok := h.session(ctx, w, sessionID)
	if !ok {
		return
	}

	if len(view.History) == 0 {
		h.noData(w, fmt.Sprintf("There is no history data tied with session '%s'", sessionID))
		return
	}

	data, err := fmtr.FormatHistory(view.History)
	if err != nil {
		ctxzap.Error(ctx, "history export failed", zap.Error(err))
		response.InternalServerError(w)
		return
	}

	response.File(w, fmtr.ContentType(), fmt.Sprintf("history-%s%s", sessionID, fmtr.FileExtension()), data)
}

// ExportEval handles GET /export/eval/{format}/{id}.
func (h *Handler) ExportEval(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	ctx := logger.AddFields(r.Context(),
		zap.String("session_id", sessionID),
		zap.String("action", "ExportEval"),
	)

	fmtr, ok := h.formatter(ctx, w, r)
	if !ok {
		return
	}

	view, ok := h.session(ctx, w, sessionID)
	if !ok {
		return
	}

	if view.Data == nil || emptyEvaluation(view.Data) {
		h.noData(w, fmt.Sprintf("There is no evaluation data tied with session '%s'", sessionID))
		return
	}

	data, err := fmtr.FormatEvaluation(view.Data)
	if err != nil {
		ctxzap.Error(ctx, "evaluation export failed", zap.Error(err))
		response.InternalServerError(w)
		return
	}

	response.File(w, fmtr.ContentType(), fmt.Sprintf("eval-%s%s", sessionID, fmtr.FileExtension()), data)
}

func (h *Handler) formatter(ctx context.Context, w http.ResponseWriter, r *http.Request) (formatter.Formatter, bool) {
	format, err := entity.ParseExportFormat(chi.URLParam(r, "format"))
	if err != nil {
		response.BadRequest(w, err.Error())
		return nil, false
	}

	fmtr, err := h.factory.Create(format)
	if err != nil {
		ctxzap.Error(ctx, "formatter creation failed", zap.Error(err))
		response.InternalServerError(w)
		return nil, false
	}

	return fmtr, true
}

func (h *Handler) session(ctx context.Context, w http.ResponseWriter, sessionID string) (*pipeline.SessionView, bool) {
	view, err := h.provider.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, entity.ErrSessionNotFound) {
			response.NotFound(w, err.Error())
			return nil, false
		}

		ctxzap.Error(ctx, "session lookup failed", zap.Error(err))
		response.InternalServerError(w)
		return nil, false
	}

	return view, true
}

func (h *Handler) noData(w http.ResponseWriter, message string) {
	response.JSON(w, http.StatusNotFound, response.Envelope{
		Name:    "No data",
		Message: message,
	})
}

func emptyEvaluation(data *entity.EvaluationData) bool {
	return data.Scenario == "" && len(data.Criteria) == 0 && len(data.Answers) == 0
}
