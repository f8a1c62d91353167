package entity

import "fmt"

// ExportFormat selects the file format of a session export.
type ExportFormat string

const (
	FormatXLSX ExportFormat = "xlsx"
	FormatPDF  ExportFormat = "pdf"
	FormatJSON ExportFormat = "json"
)

// ParseExportFormat converts a wire value into an ExportFormat.
func ParseExportFormat(value string) (ExportFormat, error) {
	switch ExportFormat(value) {
	case FormatXLSX, FormatPDF, FormatJSON:
		return ExportFormat(value), nil
	default:
		return "", fmt.Errorf("%w: '%s' is not a valid export format", ErrInvalidArgument, value)
	}
}
