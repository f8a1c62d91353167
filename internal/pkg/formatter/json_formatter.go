package formatter

import (
	"encoding/json"

	"github.com/secassist/ai-backend/internal/entity"
)

const (
	jsonContentType   = "application/json"
	jsonFileExtension = ".json"
)

type JSONFormatter struct{}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func (mf *JSONFormatter) FormatHistory(entries []entity.HistoryEntry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}

func (mf *JSONFormatter) FormatEvaluation(data *entity.EvaluationData) ([]byte, error) {
	return json.MarshalIndent(data, "", "  ")
}

func (mf *JSONFormatter) ContentType() string {
	return jsonContentType
}

func (mf *JSONFormatter) FileExtension() string {
	return jsonFileExtension
}
