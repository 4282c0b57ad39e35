package reports

import (
	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
)

// NewReportGenerator creates a report generator based on the report type.
func NewReportGenerator(reportType ReportType) (Generator, error) {
	switch reportType {
	case ReportTypeNodes:
		return &NodesReport{}, nil
	case ReportTypeComponents:
		return &ComponentsReport{}, nil
	case ReportTypeTable:
		return &TableReport{}, nil
	default:
		return nil, apperrors.Validation("INVALID_REPORT_TYPE", "unknown report type: %s", reportType)
	}
}
