package session

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers session routes
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/session", func(r chi.Router) {
		r.Get("/{id}", h.GetSession)
		r.Post("/{id}", h.UseSession)
		r.Delete("/{id}", h.DeleteSession)
	})

	r.Get("/sessions", h.GetSessions)
	r.Post("/new_session", h.NewSession)

	r.Post("/llm/{name}", h.UseLLM)
	r.Post("/retriever", h.UseRetriever)
	r.Post("/algorithm", h.UseAlgorithm)
	r.Post("/config", h.UpdateConfig)

	r.Post("/ask", h.Ask)
	r.Post("/eval", h.Eval)

	r.Post("/criteria", h.UseCriteria)
	r.Post("/scenario", h.UseScenario)
}
