// -----------------------------------------------------------------------
// Report Export - Serializes analysis reports to JSON, Markdown, HTML, PDF
// -----------------------------------------------------------------------

package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/models"
)

// Format is an export output format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

// ParseFormat resolves a caller-supplied format name. An empty name
// defaults to JSON.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", name)
	}
}

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// ContentType returns the HTTP content type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// Service renders analysis reports for download and reads them back in.
type Service struct {
	dir    string
	logger arbor.ILogger
}

// NewService creates the export service. dir is where ExportToFile writes.
func NewService(config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		dir:    config.Export.Dir,
		logger: logger,
	}
}

// Export writes the report to w in the requested format.
func (s *Service) Export(report *models.AnalysisReport, format Format, w io.Writer) error {
	if report == nil {
		return fmt.Errorf("no report to export")
	}

	s.logger.Debug().
		Str("job_id", report.JobID).
		Str("format", string(format)).
		Int("result_count", len(report.Results)).
		Msg("Exporting report")

	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)

	case FormatMarkdown:
		_, err := io.WriteString(w, renderMarkdown(report))
		return err

	case FormatHTML:
		html, err := renderHTML(report)
		if err != nil {
			return err
		}
		_, werr := io.WriteString(w, html)
		return werr

	case FormatPDF:
		pdf, err := renderPDF(renderMarkdown(report))
		if err != nil {
			return err
		}
		_, werr := w.Write(pdf)
		return werr

	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// ExportToFile writes the report into the configured export directory and
// returns the file path.
func (s *Service) ExportToFile(report *models.AnalysisReport, format Format) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(s.dir, FileName(report, format))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := s.Export(report, format, file); err != nil {
		return "", err
	}

	s.logger.Info().
		Str("job_id", report.JobID).
		Str("path", path).
		Msg("Report exported to file")

	return path, nil
}

// Import decodes an exported report and verifies it is one of ours.
// Reports written by a different schema version are rejected.
func (s *Service) Import(r io.Reader) (*models.AnalysisReport, error) {
	var report models.AnalysisReport
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}

	if report.SchemaVersion != models.ReportSchemaVersion {
		return nil, fmt.Errorf("unsupported report schema version %d (expected %d)",
			report.SchemaVersion, models.ReportSchemaVersion)
	}
	if report.AnalysisID == "" {
		return nil, fmt.Errorf("report is missing an analysis id")
	}

	s.logger.Debug().
		Str("analysis_id", report.AnalysisID).
		Int("result_count", len(report.Results)).
		Msg("Report imported")

	return &report, nil
}

// FileName builds the download file name for a report.
func FileName(report *models.AnalysisReport, format Format) string {
	return fmt.Sprintf("analysis-%s-%s.%s",
		report.BotID,
		report.GeneratedAt.Format("20060102-150405"),
		format.Extension())
}
