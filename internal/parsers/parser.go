package parsers

import (
	"path/filepath"
	"strings"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
)

// New returns the StatementParser for format. The column mapping is only
// consulted by the delimited parser; QIF honours its date format.
func New(format models.StatementFormat, config *ImportConfig) (StatementParser, error) {
	switch models.StatementFormat(strings.ToLower(string(format))) {
	case models.FormatCSV, "":
		return NewDelimitedParser(config)
	case models.FormatQIF:
		dateFormat := ""
		if config != nil {
			dateFormat = config.DateFormat
		}
		return NewQIFParser(dateFormat), nil
	case models.FormatOFX, "qfx":
		return NewOFXParser(), nil
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "format", format, nil).
			WithSuggestion("supported formats are csv, qif and ofx")
	}
}

// FormatFromFilename guesses the statement format from a file extension
func FormatFromFilename(name string) models.StatementFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".qif":
		return models.FormatQIF
	case ".ofx", ".qfx":
		return models.FormatOFX
	default:
		return models.FormatCSV
	}
}
