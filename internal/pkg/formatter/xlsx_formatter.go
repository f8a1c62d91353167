package formatter

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/secassist/ai-backend/internal/entity"
	"github.com/unidoc/unioffice/spreadsheet"
)

const (
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	xlsxFileExtension = ".xlsx"

	// Per-answer sheet names use the first characters of the answer hash,
	// which also keeps them within the xlsx 31 character limit.
	sheetNameLen = 16
)

type XLSXFormatter struct{}

func NewXLSXFormatter() *XLSXFormatter {
	return &XLSXFormatter{}
}

// FormatHistory renders the transcript on a Main sheet, with cited documents
// listed per entry on a separate Sources sheet.
func (mf *XLSXFormatter) FormatHistory(entries []entity.HistoryEntry) ([]byte, error) {
	wb := spreadsheet.New()
	defer wb.Close()

	main := wb.AddSheet()
	main.SetName("Main")
	fillLabels(&main, []string{"Type", "Content", "Timestamp", "Llm", "Sources"})

	sources := wb.AddSheet()
	sources.SetName("Sources")
	fillLabels(&sources, []string{"Document", "Pages"})

	sourceRow := 2
	for i, entry := range entries {
		row := i + 2
		main.Cell(cellRef("A", row)).SetString(string(entry.Role))
		main.Cell(cellRef("B", row)).SetString(entry.Content)
		main.Cell(cellRef("C", row)).SetString(entry.Timestamp)
		main.Cell(cellRef("D", row)).SetString(orSlash(entry.LLM))
		main.Cell(cellRef("E", row)).SetString(sourcesSummary(entry.Sources))

		sourceRow = fillSources(&sources, sourceRow, entry.Sources)
	}

	var buf bytes.Buffer
	if err := wb.Save(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormatEvaluation renders the scenario, answers and criteria on a Main
// sheet, one sheet of graded results per answer, and a shared Sources sheet.
func (mf *XLSXFormatter) FormatEvaluation(data *entity.EvaluationData) ([]byte, error) {
	wb := spreadsheet.New()
	defer wb.Close()

	main := wb.AddSheet()
	main.SetName("Main")
	fillLabels(&main, []string{"Scenario", "Answer IDs", "Answers", "Criteria"})
	main.Cell("A2").SetString(data.Scenario)

	keys := sortedKeys(data.Answers)
	for i, key := range keys {
		row := i + 2
		main.Cell(cellRef("B", row)).SetString(key)
		main.Cell(cellRef("C", row)).SetString(strings.TrimSpace(data.Answers[key]))
	}

	for i, criterion := range data.Criteria {
		main.Cell(cellRef("D", i+2)).SetString(criterion)
	}

	sources := wb.AddSheet()
	sources.SetName("Sources")
	fillLabels(&sources, []string{"Document", "Pages"})

	sourceRow := 2
	for _, key := range keys {
		sheet := wb.AddSheet()
		sheet.SetName(key[:sheetNameLen])
		fillLabels(&sheet, []string{"Result ID", "Criterion", "Grade", "Remark", "Timestamp", "Llm", "Sources"})

		for i, result := range data.Results[key] {
			row := i + 2
			sheet.Cell(cellRef("A", row)).SetString(result.ResultID)
			sheet.Cell(cellRef("B", row)).SetString(result.Criterion)
			sheet.Cell(cellRef("C", row)).SetNumber(result.Grade)
			sheet.Cell(cellRef("D", row)).SetString(result.Remark)
			sheet.Cell(cellRef("E", row)).SetString(result.Timestamp)
			sheet.Cell(cellRef("F", row)).SetString(result.LLM)
			sheet.Cell(cellRef("G", row)).SetString(sourcesSummary(result.Sources))

			sourceRow = fillSources(&sources, sourceRow, result.Sources)
		}
	}

	var buf bytes.Buffer
	if err := wb.Save(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (mf *XLSXFormatter) ContentType() string {
	return xlsxContentType
}

func (mf *XLSXFormatter) FileExtension() string {
	return xlsxFileExtension
}

func fillLabels(sheet *spreadsheet.Sheet, labels []string) {
	row := sheet.AddRow()
	for _, label := range labels {
		row.AddCell().SetString(label)
	}
}

// fillSources appends one row per cited document and returns the next free
// row, leaving a blank separator after each citation block.
func fillSources(sheet *spreadsheet.Sheet, row int, sources entity.Sources) int {
	if len(sources) == 0 {
		return row
	}

	for _, document := range sortedKeys(sources) {
		pages := make([]string, 0, len(sources[document]))
		for _, page := range sources[document] {
			pages = append(pages, fmt.Sprintf("%d", page))
		}

		sheet.Cell(cellRef("A", row)).SetString(document)
		sheet.Cell(cellRef("B", row)).SetString(strings.Join(pages, ", "))
		row++
	}

	return row + 1
}

func sourcesSummary(sources entity.Sources) string {
	if len(sources) == 0 {
		return "/"
	}
	if len(sources) == 1 {
		return "1 source"
	}
	return fmt.Sprintf("%d sources", len(sources))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orSlash(value string) string {
	if value == "" {
		return "/"
	}
	return value
}

func cellRef(column string, row int) string {
	return fmt.Sprintf("%s%d", column, row)
}
