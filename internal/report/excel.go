// Package report renders SLA reports as Excel workbooks for the back office.
package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/agency-crm/automation-core/internal/sla"
)

const sheetName = "SLA Report"

// ExportSLAReport renders the report as a single-sheet .xlsx workbook and
// returns its bytes.
func ExportSLAReport(r *sla.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	rows := [][]interface{}{
		{"SLA Report"},
		{"Period", fmt.Sprintf("%s — %s", r.StartDate.Format("2006-01-02"), r.EndDate.Format("2006-01-02"))},
		{},
		{"Metric", "Value"},
		{"Total tasks", r.TotalTasks},
		{"Completed on time", r.OnTime},
		{"Overdue", r.Overdue},
		{"At risk", r.AtRisk},
		{"Average completion (hours)", fmt.Sprintf("%.1f", r.AverageCompletionHours)},
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, fmt.Errorf("resolve cell: %w", err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
