package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ReportFormat represents the report output format
type ReportFormat string

const (
	ReportFormatText ReportFormat = "text"
	ReportFormatJSON ReportFormat = "json"
)

// Formatter renders run reports for humans and tooling
type Formatter struct {
	logger *Logger
}

// NewFormatter creates a new report formatter
func NewFormatter(logger *Logger) *Formatter {
	return &Formatter{
		logger: logger,
	}
}

// GenerateReport writes a report in the specified format
func (f *Formatter) GenerateReport(report *RunReport, format ReportFormat, outputPath string) error {
	var data []byte
	switch format {
	case ReportFormatJSON:
		var err error
		data, err = json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	case ReportFormatText:
		data = []byte(f.FormatSummary(report))
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	f.logger.Info().Str("format", string(format)).Str("path", outputPath).Msg("report generated")
	return nil
}

// FormatSummary renders a human-readable run summary
func (f *Formatter) FormatSummary(report *RunReport) string {
	var sb strings.Builder

	sb.WriteString("=== Simulation Run Report ===\n")
	fmt.Fprintf(&sb, "Run ID:          %s\n", report.RunID)
	fmt.Fprintf(&sb, "Scenario:        %s\n", report.ScenarioName)
	fmt.Fprintf(&sb, "Seed:            %d\n", report.Seed)
	fmt.Fprintf(&sb, "Status:          %s\n", report.Status)
	fmt.Fprintf(&sb, "Virtual elapsed: %s\n", report.VirtualElapsed)
	fmt.Fprintf(&sb, "Wall duration:   %s\n", report.WallDuration)
	fmt.Fprintf(&sb, "Events:          %d\n", report.EventsProcessed)
	fmt.Fprintf(&sb, "Messages:        %d\n", report.MessagesSent)
	if report.Message != "" {
		fmt.Fprintf(&sb, "Message:         %s\n", report.Message)
	}

	return sb.String()
}
