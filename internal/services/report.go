package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
)

// ReportService создает Excel отчет по capacity спринтов.
type ReportService struct {
	planner *PlannerService
	logger  *slog.Logger
}

// NewReport создает сервис отчетов.
func NewReport(planner *PlannerService, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{planner: planner, logger: logger}
}

// GenerateCapacityReport считает capacity команды и рендерит xlsx в память
func (s *ReportService) GenerateCapacityReport(ctx context.Context, token, org, project, team string) ([]byte, error) {
	result, err := s.planner.ComputeCapacity(ctx, token, org, project, team, nil)
	if err != nil {
		return nil, fmt.Errorf("compute capacity: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Capacity"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")

	headers := []string{"Sprint", "Iteration path", "Capacity"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}

	labels := []string{"Current", "Next", "Next+1"}
	capacities := []int{result.Capacities.N, result.Capacities.N1, result.Capacities.N2}
	for row := 0; row < len(labels); row++ {
		path := ""
		if row < len(result.Iterations) {
			path = result.Iterations[row]
		}
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row+2), labels[row])
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row+2), path)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row+2), capacities[row])
	}

	for i := range headers {
		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, colName, colName, 30)
	}

	f.SetCellValue(sheet, "A6", "Generated")
	f.SetCellValue(sheet, "B6", time.Now().Format("2006-01-02 15:04"))
	f.SetActiveSheet(index)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("Capacity report generated",
		"team", team,
		"iterations", len(result.Iterations),
		"size_bytes", buf.Len())
	return buf.Bytes(), nil
}
