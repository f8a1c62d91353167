package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/secassist/ai-backend/internal/entity"
	"github.com/secassist/ai-backend/internal/pkg/logger"
	"github.com/secassist/ai-backend/internal/pkg/response"
	"github.com/secassist/ai-backend/internal/pkg/validator"
	"go.uber.org/zap"
)

type Handler struct {
	orchestrator Orchestrator
	validator    *validator.Validator
}

func NewHandler(orchestrator Orchestrator, validator *validator.Validator) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		validator:    validator,
	}
}

// GetSession handles GET /session/{id} - session configuration plus history
// or evaluation data.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	ctx := logger.AddFields(r.Context(),
		zap.String("session_id", sessionID),
		zap.String("action", "GetSession"),
	)

	view, err := h.orchestrator.GetSession(ctx, sessionID)
	if err != nil {
		h.handlePipelineError(ctx, w, err)
		return
	}

	response.OK(w, "Retrieved session configuration", map[string]any{
		"session": toSessionDTO(view),
	})
}

// UseSession handles POST /session/{id} - activate a session.
func (h *Handler) UseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	ctx := logger.AddFields(r.Context(),
		zap.String("session_id", sessionID),
		zap.String("action", "UseSession"),
	)

	if err := h.orchestrator.UseSession(ctx, sessionID); err != nil {
		h.handlePipelineError(ctx, w, err)
		return
	}

	response.OK(w, fmt.Sprintf("Now using session %s", sessionID), nil)
}

// DeleteSession handles DELETE /session/{id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	ctx := logger.AddFields(r.Context(),
		zap.String("session_id", sessionID),
		zap.String("action", "DeleteSession"),
	)

	if err := h.orchestrator.DeleteSession(ctx, sessionID); err != nil {
		h.handlePipelineError(ctx, w, err)
		return
	}

	response.OK(w, fmt.Sprintf("Deleted session %s", sessionID), nil)
}

// GetSessions handles GET /sessions - every stored session.
func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "GetSessions")

	views, err := h.orchestrator.GetSessions(ctx)
	if err != nil {
		h.handlePipelineError(ctx, w, err)
		return
	}

	response.OK(w, "Retrieved sessions", map[string]any{
		"sessions": toSessionsDTO(views),
	})
}

// UseLLM handles POST /llm/{name} - swap the active session's model.
func (h *Handler) UseLLM(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctx := logger.AddFields(r.Context(),
		zap.String("llm", name),
		zap.String("action", "UseLLM"),
	)

	if err := h.orchestrator.UseLLM(ctx, name); err != nil {
		h.handlePipelineError(ctx, w, err)
		return
	}

	response.OK(w, fmt.Sprintf("Using %s", name), nil)
}

// UseRetriever handles POST /retriever - swap the active session's embedding
// model.
func (h *Handler) UseRetriever(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "UseRetriever")

	var req entity.UseRetrieverRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	name, err := validator.RequireString("retriever", req.Retriever)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if err := h.orchestrator.UseRetriever(ctx, name); err != nil {
		h.handlePipelineError(ctx, w, err)
		return
	}

	response.OK(w, fmt.Sprintf("Using %s", name), nil)
}

// UseAlgorithm handles POST /algorithm - replace the retrieval algorithm.
func (h *Handler) UseAlgorithm(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "UseAlgorithm")

	var req entity.UseAlgorithmRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	params, err := h.algorithmParams(req.Algorithm, req.AlgorithmParamsRequest)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if err := h.orchestrator.UseAlgorithm(ctx, params); err != nil {
		h.handlePipelineError(ctx, w, err)
		return
	}

	response.OK(w, "Updated the retrieval algorithm", nil)
}

// UpdateConfig handles POST /config - replace the whole active session
// configuration.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "UpdateConfig")

	var req entity.UpdateConfigRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	name, err := validator.RequireString("name", req.Name)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	llm, err := validator.RequireString("llm", req.LLM)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	retriever, err := validator.RequireString("retriever", req.Retriever)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	params, err := h.algorithmParams(req.Algorithm, req.AlgorithmParamsRequest)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if err := h.orchestrator.UseName(ctx, name); err != nil {
		h.handlePipelineError(ctx, w, err)
		return
	}
	if err := h.orchestrator.UseAlgorithm(ctx, params); err != nil {
		h.handlePipelineError(ctx, w, err)
		return
	}
	if err := h.orchestrator.UseLLM(ctx, llm); err != nil {
		h.handlePipelineError(ctx, w, err)
		return
	}
	if err := h.orchestrator.UseRetriever(ctx, retriever); err != nil {
		h.handlePipelineError(ctx, w, err)
		return
	}

	response.OK(w, "Updated the session configuration", nil)
}

// NewSession handles POST /new_session - create and activate a session.
func (h *Handler) NewSession(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "NewSession")

	var req entity.NewSessionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	config, err := h.sessionConfig(&req)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	sessionID, err := h.orchestrator.CreateAndUseSession(ctx, *config)
	if err != nil {
		h.handlePipelineError(ctx, w, err)
		return
	}

	response.OK(w, fmt.Sprintf("Now using session %s", sessionID), map[string]any{
		"session_id": sessionID,
	})
}

// Ask handles POST /ask - answer a question with the active chat session.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "Ask")

	var req entity.AskRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	question, err := validator.RequireString("question", req.Question)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	answer, sources, err := h.orchestrator.Ask(ctx, question)
	if err != nil {
		h.handlePipelineError(ctx, w, err)
		return
	}

	response.OK(w, "Generated answer", map[string]any{
		"answer":  answer,
		"sources": sources,
	})
}

// Eval handles POST /eval - grade an answer with the active evaluation
// session.
func (h *Handler) Eval(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "Eval")

	var req entity.EvalRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	criterion, err := validator.RequireString("criterion", req.Criterion)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	answer, err := validator.RequireString("answer", req.Answer)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	result, err := h.orchestrator.Evaluate(ctx, criterion, answer)
	if err != nil {
		h.handlePipelineError(ctx, w, err)
		return
	}

	response.OK(w, "Generated answer", map[string]any{
		"result": result,
	})
}

// UseCriteria handles POST /criteria - replace the evaluation criteria.
func (h *Handler) UseCriteria(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "UseCriteria")

	var req entity.UseCriteriaRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if req.Criteria == nil {
		response.BadRequest(w, fmt.Sprintf("%v: 'criteria'", entity.ErrMissingField))
		return
	}

	if err := h.orchestrator.UseCriteria(ctx, *req.Criteria); err != nil {
		h.handlePipelineError(ctx, w, err)
		return
	}

	response.OK(w, "Updated the criteria", nil)
}

// UseScenario handles POST /scenario - replace the evaluation scenario.
func (h *Handler) UseScenario(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "UseScenario")

	var req entity.UseScenarioRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	scenario, err := validator.RequireString("scenario", req.Scenario)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if err := h.orchestrator.UseScenario(ctx, scenario); err != nil {
		h.handlePipelineError(ctx, w, err)
		return
	}

	response.OK(w, "Updated the scenario", nil)
}

// sessionConfig assembles a validated configuration from a creation request.
// The id is assigned by the orchestrator.
func (h *Handler) sessionConfig(req *entity.NewSessionRequest) (*entity.SessionConfig, error) {
	name, err := validator.RequireString("name", req.Name)
	if err != nil {
		return nil, err
	}

	rawType, err := validator.RequireString("type", req.Type)
	if err != nil {
		return nil, err
	}
	sessionType, err := entity.ParseSessionType(rawType)
	if err != nil {
		return nil, err
	}

	llm, err := validator.RequireString("llm", req.LLM)
	if err != nil {
		return nil, err
	}
	if err := h.validator.LLM(llm); err != nil {
		return nil, err
	}

	retriever, err := validator.RequireString("retriever", req.Retriever)
	if err != nil {
		return nil, err
	}
	if err := h.validator.Retriever(retriever); err != nil {
		return nil, err
	}

	params, err := h.algorithmParams(req.Algorithm, req.AlgorithmParamsRequest)
	if err != nil {
		return nil, err
	}

	return &entity.SessionConfig{
		DisplayName:     name,
		SessionType:     sessionType,
		LLMName:         llm,
		RetrieverName:   retriever,
		AlgorithmType:   params.AlgorithmType(),
		AlgorithmParams: params,
	}, nil
}

func (h *Handler) algorithmParams(rawAlg *string, req entity.AlgorithmParamsRequest) (entity.AlgorithmParams, error) {
	raw, err := validator.RequireString("algorithm", rawAlg)
	if err != nil {
		return nil, err
	}

	alg, err := entity.ParseAlgorithmType(raw)
	if err != nil {
		return nil, err
	}

	return h.validator.AlgorithmParams(alg, req)
}

// decodeJSON enforces a JSON content type and decodes the body. Responds and
// returns false on failure.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		response.UnsupportedMedia(w, "Did not attempt to load JSON data because the request Content-Type was not 'application/json'.")
		return false
	}

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "The request body is not valid JSON.")
		return false
	}

	return true
}

func (h *Handler) handlePipelineError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrSessionNotFound) || errors.Is(err, entity.ErrDocumentNotFound):
		ctxzap.Warn(ctx, "resource not found", zap.Error(err))
		response.NotFound(w, err.Error())
	case errors.Is(err, entity.ErrInvalidArgument) || errors.Is(err, entity.ErrMissingField) ||
		errors.Is(err, entity.ErrInvalidState) || errors.Is(err, entity.ErrPreconditionFailed) ||
		errors.Is(err, entity.ErrMalformedOutput):
		ctxzap.Warn(ctx, "request rejected", zap.Error(err))
		response.BadRequest(w, err.Error())
	default:
		ctxzap.Error(ctx, "pipeline operation failed", zap.Error(err))
		response.InternalServerError(w)
	}
}
