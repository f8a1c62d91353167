package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/secassist/ai-backend/internal/api/docs"
	documentapi "github.com/secassist/ai-backend/internal/api/document"
	exportapi "github.com/secassist/ai-backend/internal/api/export"
	"github.com/secassist/ai-backend/internal/api/middleware"
	sessionapi "github.com/secassist/ai-backend/internal/api/session"
	"github.com/secassist/ai-backend/internal/pkg/response"
	"go.uber.org/zap"
)

// SetupRouter creates and configures the HTTP router
func SetupRouter(
	sessionHandler *sessionapi.Handler,
	documentHandler *documentapi.Handler,
	exportHandler *exportapi.Handler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.Recoverer)   // Recover from panics
	r.Use(chimiddleware.RequestID)   // Add request ID
	r.Use(middleware.Logger(logger)) // Log requests
	r.Use(middleware.CORS)           // Handle CORS
	r.Use(chimiddleware.Timeout(5 * time.Minute))

	// Unknown routes and methods still answer with the envelope
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "The requested URL was not found on the server.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.MethodNotAllowed(w, "The method is not allowed for the requested URL.")
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, "Service is healthy", nil)
	})

	// Swagger documentation endpoints
	docs.RegisterRoutes(r)

	// Register routes
	sessionapi.RegisterRoutes(r, sessionHandler)
	documentapi.RegisterRoutes(r, documentHandler)
	exportapi.RegisterRoutes(r, exportHandler)

	return r
}
