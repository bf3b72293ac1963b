package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"mosaic/pkg/api"
)

// BuildSummaryXLSX renders a summary as a workbook with a "summary" sheet
// and a per-station "stations" sheet.
func BuildSummaryXLSX(s *api.SummaryResponse) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	stationsSheet := "stations"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(stationsSheet); err != nil {
		return nil, err
	}

	scope := "Whole run"
	if s.NormalOnly {
		scope = "Normal operations only"
	}

	_ = f.SetCellValue(summarySheet, "A1", "Bin presentation rate")
	_ = f.SetCellValue(summarySheet, "A3", "Run")
	_ = f.SetCellValue(summarySheet, "B3", s.RunID)
	_ = f.SetCellValue(summarySheet, "A4", "Name")
	_ = f.SetCellValue(summarySheet, "B4", s.Name)
	_ = f.SetCellValue(summarySheet, "A5", "Scope")
	_ = f.SetCellValue(summarySheet, "B5", scope)
	_ = f.SetCellValue(summarySheet, "A6", "Duration (hours)")
	_ = f.SetCellValue(summarySheet, "B6", s.DurationHours)

	_ = f.SetCellValue(summarySheet, "B8", "Average (bins/hour)")
	_ = f.SetCellValue(summarySheet, "C8", "Total (bins/hour)")
	_ = f.SetCellValue(summarySheet, "D8", "Stations")
	for i, row := range []struct {
		label string
		rate  api.KindRate
	}{
		{"Inbound", s.Inbound},
		{"Outbound", s.Outbound},
	} {
		r := 9 + i
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", r), row.label)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", r), row.rate.AverageRate)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("C%d", r), row.rate.TotalRate)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("D%d", r), row.rate.Stations)
	}

	_ = f.SetCellValue(stationsSheet, "A1", "Station")
	_ = f.SetCellValue(stationsSheet, "B1", "Kind")
	_ = f.SetCellValue(stationsSheet, "C1", "Bins stored")
	_ = f.SetCellValue(stationsSheet, "D1", "Bins per hour")
	for i, st := range s.Stations {
		row := i + 2
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("A%d", row), st.StationCode)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("B%d", row), st.Kind)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("C%d", row), st.BinsStored)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("D%d", row), st.BinsPerHour)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
