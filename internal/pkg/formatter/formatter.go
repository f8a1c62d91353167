package formatter

import (
	"fmt"

	"github.com/secassist/ai-backend/internal/entity"
)

const (
	historyTitle    = "Conversation history"
	evaluationTitle = "Evaluation results"
)

type Formatter interface {
	FormatHistory(entries []entity.HistoryEntry) ([]byte, error)
	FormatEvaluation(data *entity.EvaluationData) ([]byte, error)
	ContentType() string
	FileExtension() string
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(format entity.ExportFormat) (Formatter, error) {
	switch format {
	case entity.FormatXLSX:
		return NewXLSXFormatter(), nil
	case entity.FormatPDF:
		return NewPDFFormatter(), nil
	case entity.FormatJSON:
		return NewJSONFormatter(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
