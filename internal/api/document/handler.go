package document

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	gocache "github.com/patrickmn/go-cache"
	"github.com/secassist/ai-backend/internal/pkg/logger"
	"github.com/secassist/ai-backend/internal/pkg/response"
	"go.uber.org/zap"
)

// Handler serves source documents cited in answers. File contents go through
// a TTL byte cache so repeated citations of the same PDF stay cheap.
type Handler struct {
	dir   string
	cache *gocache.Cache
}

func NewHandler(dir string, ttl time.Duration) *Handler {
	return &Handler{
		dir:   dir,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// GetDocument handles GET /document/* - serve one source document.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	requested := chi.URLParam(r, "*")
	ctx := logger.AddFields(r.Context(),
		zap.String("document", requested),
		zap.String("action", "GetDocument"),
	)

	rel, ok := h.resolve(requested)
	if !ok {
		ctxzap.Warn(ctx, "document path rejected")
		response.NotFound(w, fmt.Sprintf("The document '%s' does not exist", requested))
		return
	}

	data, err := h.read(rel)
	if err != nil {
		ctxzap.Warn(ctx, "document not readable", zap.Error(err))
		response.NotFound(w, fmt.Sprintf("The document '%s' does not exist", requested))
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(rel))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// resolve normalizes the requested path and confines it to the documents
// directory. Citations may carry the directory name as a prefix; it is
// stripped so both forms resolve to the same file.
func (h *Handler) resolve(requested string) (string, bool) {
	cleaned := path.Clean("/" + requested)[1:]
	if cleaned == "" || cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return "", false
	}

	prefix := path.Base(h.dir) + "/"
	cleaned = strings.TrimPrefix(cleaned, prefix)

	return cleaned, true
}

func (h *Handler) read(rel string) ([]byte, error) {
	if cached, ok := h.cache.Get(rel); ok {
		return cached.([]byte), nil
	}

	data, err := os.ReadFile(filepath.Join(h.dir, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}

	h.cache.SetDefault(rel, data)
	return data, nil
}
