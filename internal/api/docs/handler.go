package docs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

// specPath locates the OpenAPI document, relative to the server's working
// directory.
const specPath = "docs/swagger.yaml"

// UIHandler serves the Swagger UI pointed at the service's OpenAPI document.
func UIHandler() http.HandlerFunc {
	return httpSwagger.Handler(
		httpSwagger.URL("/"+specPath),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	)
}

// RegisterRoutes mounts the API documentation under /docs.
func RegisterRoutes(r chi.Router) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/index.html", http.StatusFound)
	})

	r.Get("/"+specPath, func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, specPath)
	})

	r.Get("/docs/*", UIHandler())
}
