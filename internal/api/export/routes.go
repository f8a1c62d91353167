package export

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers export routes
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/export", func(r chi.Router) {
		r.Get("/chat/{format}/{id}", h.ExportChat)
		r.Get("/eval/{format}/{id}", h.ExportEval)
	})
}
