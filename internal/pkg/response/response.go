package response

import (
	"encoding/json"
	"net/http"
)

// InternalErrorMessage is the only detail leaked for unexpected failures.
const InternalErrorMessage = "An unexpected internal error occurred."

// Envelope is the uniform JSON response body. Extra fields are merged next to
// name and message at the top level.
type Envelope struct {
	Name    string
	Message string
	Extra   map[string]any
}

// MarshalJSON flattens the extension mapping into the envelope object.
func (e Envelope) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(e.Extra)+2)
	for k, v := range e.Extra {
		if k == "name" || k == "message" {
			continue
		}
		body[k] = v
	}
	body["name"] = e.Name
	body["message"] = e.Message
	return json.Marshal(body)
}

// JSON writes an envelope with the given status code.
func JSON(w http.ResponseWriter, status int, envelope Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		// Can't change response at this point
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// OK writes a 200 response.
func OK(w http.ResponseWriter, message string, extra map[string]any) {
	JSON(w, http.StatusOK, Envelope{Name: "OK", Message: message, Extra: extra})
}

// BadRequest writes a 400 response.
func BadRequest(w http.ResponseWriter, message string) {
	JSON(w, http.StatusBadRequest, Envelope{Name: "Bad Request", Message: message})
}

// NotFound writes a 404 response.
func NotFound(w http.ResponseWriter, message string) {
	JSON(w, http.StatusNotFound, Envelope{Name: "Not Found", Message: message})
}

// MethodNotAllowed writes a 405 response.
func MethodNotAllowed(w http.ResponseWriter, message string) {
	JSON(w, http.StatusMethodNotAllowed, Envelope{Name: "Method Not Allowed", Message: message})
}

// UnsupportedMedia writes a 415 response.
func UnsupportedMedia(w http.ResponseWriter, message string) {
	JSON(w, http.StatusUnsupportedMediaType, Envelope{Name: "Unsupported Media Type", Message: message})
}

// InternalServerError writes a 500 response with a generic message.
func InternalServerError(w http.ResponseWriter) {
	JSON(w, http.StatusInternalServerError, Envelope{Name: "Internal Server Error", Message: InternalErrorMessage})
}

// File writes raw bytes as a download attachment.
func File(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
