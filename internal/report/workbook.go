// Package report renders approval statistics as an xlsx workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/site-approval/internal/application/approval"
	"github.com/garyjia/site-approval/internal/domain/entity"
)

// Sheet names of the statistics workbook
const (
	SummarySheet  = "Summary"
	RequestsSheet = "Requests"
)

// ContentType is the MIME type of the generated workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const timeLayout = "2006-01-02 15:04"

var requestColumns = []interface{}{
	"ID", "Type", "Title", "Requestor", "Org Unit", "Priority", "Amount",
	"Status", "Current Approver", "Steps", "Created", "Submitted", "Completed",
}

// WorkbookWriter writes statistics workbooks
type WorkbookWriter struct {
	logger *zap.Logger
}

// NewWorkbookWriter creates a new workbook writer
func NewWorkbookWriter(logger *zap.Logger) *WorkbookWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkbookWriter{logger: logger}
}

// Write renders a Summary sheet from stats and a Requests sheet listing
// requests, then streams the workbook to out.
func (w *WorkbookWriter) Write(out io.Writer, stats *approval.Statistics, requests []*entity.ApprovalRequest, generatedAt time.Time) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName(file.GetSheetName(0), SummarySheet); err != nil {
		return fmt.Errorf("failed to rename summary sheet: %w", err)
	}
	if _, err := file.NewSheet(RequestsSheet); err != nil {
		return fmt.Errorf("failed to create requests sheet: %w", err)
	}

	bold, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := w.fillSummary(file, bold, stats, generatedAt); err != nil {
		return fmt.Errorf("failed to fill summary: %w", err)
	}
	if err := w.fillRequests(file, bold, requests); err != nil {
		return fmt.Errorf("failed to fill requests: %w", err)
	}

	if err := file.Write(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	w.logger.Info("Statistics workbook generated",
		zap.Int("total", stats.Total),
		zap.Int("rows", len(requests)))
	return nil
}

func (w *WorkbookWriter) fillSummary(file *excelize.File, bold int, stats *approval.Statistics, generatedAt time.Time) error {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Generated at", generatedAt.Format(timeLayout)},
		{"Total", stats.Total},
		{"Pending", stats.Pending},
		{"Approved", stats.Approved},
		{"Rejected", stats.Rejected},
		{"Average approval time (hours)", float64(stats.AverageApprovalTimeMs) / float64(time.Hour/time.Millisecond)},
		{},
		{"Request type", "Count"},
	}
	typeHeader := len(rows)
	for _, t := range entity.RequestTypes {
		rows = append(rows, []interface{}{string(t), stats.ByType[t]})
	}
	rows = append(rows, []interface{}{}, []interface{}{"Priority", "Count"})
	priorityHeader := len(rows)
	for _, p := range entity.Priorities {
		rows = append(rows, []interface{}{string(p), stats.ByPriority[p]})
	}

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := file.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return err
		}
	}

	for _, header := range []int{1, typeHeader, priorityHeader} {
		if err := file.SetCellStyle(SummarySheet, fmt.Sprintf("A%d", header), fmt.Sprintf("B%d", header), bold); err != nil {
			return err
		}
	}
	return file.SetColWidth(SummarySheet, "A", "A", 32)
}

func (w *WorkbookWriter) fillRequests(file *excelize.File, bold int, requests []*entity.ApprovalRequest) error {
	if err := file.SetSheetRow(RequestsSheet, "A1", &requestColumns); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(requestColumns), 1)
	if err != nil {
		return err
	}
	if err := file.SetCellStyle(RequestsSheet, "A1", last, bold); err != nil {
		return err
	}

	for i, req := range requests {
		row := requestRow(req)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := file.SetSheetRow(RequestsSheet, cell, &row); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	return file.SetColWidth(RequestsSheet, "A", "C", 24)
}

func requestRow(req *entity.ApprovalRequest) []interface{} {
	var amount interface{} = ""
	if req.Amount != nil {
		amount = *req.Amount
	}
	approver := ""
	if req.Status.IsAwaitingDecision() {
		if step := req.CurrentStep(); step != nil {
			approver = step.ApproverName
		}
	}
	return []interface{}{
		req.ID,
		string(req.Type),
		req.Title,
		req.Requestor.Name,
		req.Requestor.OrgUnitID,
		string(req.Priority),
		amount,
		req.Status.String(),
		approver,
		len(req.ApprovalChain),
		req.CreatedAt.Format(timeLayout),
		formatTime(req.SubmittedAt),
		formatTime(req.CompletedAt),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}
