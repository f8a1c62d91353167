package formatter

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/secassist/ai-backend/internal/entity"
)

const (
	pdfContentType   = "application/pdf"
	pdfFileExtension = ".pdf"

	// pdfFontName is the internal name used by gofpdf
	// for the UTF-8 capable font.
	pdfFontName = "DejaVuSans"

	// Relative paths where the TTF font may live.
	// In Docker runtime fonts are copied to /app/ttf,
	// so for the compiled binary the path is ./ttf/DejaVuSans.ttf.
	pdfFontRuntimePath = "ttf/DejaVuSans.ttf"

	// Source-relative path (useful when running from repo root with `go run`).
	pdfFontSourcePath = "internal/pkg/formatter/ttf/DejaVuSans.ttf"
)

type PDFFormatter struct{}

func NewPDFFormatter() *PDFFormatter {
	return &PDFFormatter{}
}

// resolveFontPath tries to find the DejaVuSans font in
// runtime layout (next to the binary) or source layout.
func resolveFontPath() string {
	if _, err := os.Stat(pdfFontRuntimePath); err == nil {
		return pdfFontRuntimePath
	}

	if _, err := os.Stat(pdfFontSourcePath); err == nil {
		return pdfFontSourcePath
	}

	return ""
}

func (mf *PDFFormatter) FormatHistory(entries []entity.HistoryEntry) ([]byte, error) {
	var sb strings.Builder
	for _, entry := range entries {
		fmt.Fprintf(&sb, "[%s] %s: %s\n", entry.Timestamp, entry.Role, entry.Content)
		if entry.LLM != "" {
			fmt.Fprintf(&sb, "Model: %s\n", entry.LLM)
		}
		writeSources(&sb, entry.Sources)
		sb.WriteString("\n")
	}

	return renderPDF(historyTitle, sb.String())
}

func (mf *PDFFormatter) FormatEvaluation(data *entity.EvaluationData) ([]byte, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Scenario: %s\n\n", data.Scenario)

	if len(data.Criteria) > 0 {
		sb.WriteString("Criteria:\n")
		for _, criterion := range data.Criteria {
			fmt.Fprintf(&sb, "- %s\n", criterion)
		}
		sb.WriteString("\n")
	}

	for _, key := range sortedKeys(data.Answers) {
		fmt.Fprintf(&sb, "Answer %s:\n%s\n\n", key[:sheetNameLen], strings.TrimSpace(data.Answers[key]))

		for _, result := range data.Results[key] {
			fmt.Fprintf(&sb, "[%s] %s\nGrade: %g (%s)\n%s\n",
				result.Timestamp, result.Criterion, result.Grade, result.LLM, result.Remark)
			writeSources(&sb, result.Sources)
			sb.WriteString("\n")
		}
	}

	return renderPDF(evaluationTitle, sb.String())
}

func (mf *PDFFormatter) ContentType() string {
	return pdfContentType
}

func (mf *PDFFormatter) FileExtension() string {
	return pdfFileExtension
}

func renderPDF(title, text string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	// Try to use the UTF-8 capable DejaVuSans font, bundled with the project.
	fontName := "Arial"
	if fontPath := resolveFontPath(); fontPath != "" {
		pdf.AddUTF8Font(pdfFontName, "", fontPath)
		pdf.AddUTF8Font(pdfFontName, "B", fontPath)
		fontName = pdfFontName
	}

	pdf.SetFont(fontName, "B", 20)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	pdf.SetFont(fontName, "", 12)
	_, lineHeight := pdf.GetFontSize()
	pdf.MultiCell(0, lineHeight*1.5, text, "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSources(sb *strings.Builder, sources entity.Sources) {
	for _, document := range sortedKeys(sources) {
		pages := make([]string, 0, len(sources[document]))
		for _, page := range sources[document] {
			pages = append(pages, fmt.Sprintf("%d", page))
		}
		fmt.Fprintf(sb, "Source: %s (pages %s)\n", document, strings.Join(pages, ", "))
	}
}
