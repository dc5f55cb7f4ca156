package dashboard

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/Guizzs26/gcm-presence/internal/models"
)

var ErrExportFailed = errors.New("failed to generate roster workbook")

const rosterSheet = "Presença"

var rosterHeader = []string{"Nome de guerra", "Graduação", "Inspetoria", "Posto", "Região", "PSUS", "Horário"}

// Exporter renders the daily roster as an xlsx workbook
type Exporter struct {
	builder *Builder
	logger  *slog.Logger
}

func NewExporter(b *Builder, l *slog.Logger) *Exporter {
	return &Exporter{builder: b, logger: l.With("component", "export")}
}

// Roster writes a title row, the header and one row per guard, followed by the
// present/absent totals. It returns the workbook and a suggested file name.
func (e *Exporter) Roster(records []models.PresenceRecord, region string) (*bytes.Buffer, string, error) {
	s := e.builder.Summary(records, region)

	scope := region
	if scope == "" {
		scope = "GERAL"
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(rosterSheet)
	if err != nil {
		e.logger.Error("Failed to create roster sheet", "error", err)
		return nil, "", ErrExportFailed
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	widths := []float64{24, 22, 20, 28, 10, 8, 10}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(rosterSheet, col, col, w)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#1F4E79"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	last, _ := excelize.ColumnNumberToName(len(rosterHeader))
	f.SetCellValue(rosterSheet, "A1", fmt.Sprintf("Presença GCM %s - %s", scope, s.Date))
	f.MergeCell(rosterSheet, "A1", last+"1")
	f.SetCellStyle(rosterSheet, "A1", "A1", headerStyle)

	if err := f.SetSheetRow(rosterSheet, "A2", &rosterHeader); err != nil {
		e.logger.Error("Failed to write roster header", "error", err)
		return nil, "", ErrExportFailed
	}
	f.SetCellStyle(rosterSheet, "A2", last+"2", headerStyle)

	row := 3
	for _, g := range s.Guards {
		psus := "Não"
		if g.PSUS {
			psus = "Sim"
		}
		values := []any{g.WarName, g.RankLabel, g.InspectorateName, g.PostName, g.Region, psus, g.LocalTime}
		if err := f.SetSheetRow(rosterSheet, cell("A", row), &values); err != nil {
			e.logger.Error("Failed to write roster row", "post", g.HealthCenterID, "error", err)
			return nil, "", ErrExportFailed
		}
		row++
	}

	row++
	f.SetCellValue(rosterSheet, cell("A", row), "Presentes")
	f.SetCellValue(rosterSheet, cell("B", row), s.Present)
	f.SetCellValue(rosterSheet, cell("A", row+1), "Ausentes")
	f.SetCellValue(rosterSheet, cell("B", row+1), s.Absent)
	f.SetCellValue(rosterSheet, cell("A", row+2), "Cobertura (%)")
	f.SetCellValue(rosterSheet, cell("B", row+2), s.Coverage)

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		e.logger.Error("Failed to write roster workbook", "error", err)
		return nil, "", ErrExportFailed
	}

	return buf, fmt.Sprintf("presenca_%s_%s.xlsx", scope, s.Date), nil
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
