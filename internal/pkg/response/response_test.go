package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeMarshal(t *testing.T) {
	t.Run("flattens extra fields", func(t *testing.T) {
		data, err := json.Marshal(Envelope{
			Name:    "OK",
			Message: "done",
			Extra:   map[string]any{"session_id": "abc"},
		})
		require.NoError(t, err)

		var body map[string]any
		require.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, "OK", body["name"])
		assert.Equal(t, "done", body["message"])
		assert.Equal(t, "abc", body["session_id"])
	})

	t.Run("extra fields cannot shadow the envelope", func(t *testing.T) {
		data, err := json.Marshal(Envelope{
			Name:    "OK",
			Message: "done",
			Extra:   map[string]any{"name": "spoofed", "message": "spoofed"},
		})
		require.NoError(t, err)

		var body map[string]any
		require.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, "OK", body["name"])
		assert.Equal(t, "done", body["message"])
	})
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantName   string
	}{
		{"ok", func(w http.ResponseWriter) { OK(w, "fine", nil) }, http.StatusOK, "OK"},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "nope") }, http.StatusBadRequest, "Bad Request"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "gone") }, http.StatusNotFound, "Not Found"},
		{"method not allowed", func(w http.ResponseWriter) { MethodNotAllowed(w, "no") }, http.StatusMethodNotAllowed, "Method Not Allowed"},
		{"unsupported media", func(w http.ResponseWriter) { UnsupportedMedia(w, "no") }, http.StatusUnsupportedMediaType, "Unsupported Media Type"},
		{"internal error", func(w http.ResponseWriter) { InternalServerError(w) }, http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantName, body["name"])
		})
	}
}

func TestFile(t *testing.T) {
	rec := httptest.NewRecorder()
	File(rec, "application/pdf", "history-abc.pdf", []byte("%PDF"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="history-abc.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF", rec.Body.String())
}
