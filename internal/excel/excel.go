// Package excel maps procurement entries to and from xlsx workbooks.
package excel

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/procureflow/be-approvals/internal/apperrors"
	"github.com/procureflow/be-approvals/internal/repository"
)

// SheetName is the worksheet both export and import operate on.
const SheetName = "Entries"

// DateLayout renders entry and approval timestamps in spreadsheet cells.
const DateLayout = "02-01-2006 15:04:05"

var headers = []string{
	"Name", "Description", "Unit", "Amount", "Unit Price", "Total Price",
	"VAT (%)", "Total Price After VAT", "Delivery Date", "Entry Date",
	"Submitted By", "Approval Payment", "Approved Payment By",
	"Approval Payment Date", "Approval Receive", "Approved Receive By",
	"Approval Receive Date",
}

var columnWidths = []float64{20, 30, 15, 10, 15, 15, 10, 20, 15, 20, 30, 15, 30, 20, 15, 30, 20}

// Row is one parsed import row. The submitter is carried as a username and
// resolved by the caller.
type Row struct {
	Number int

	Name        string
	Description string
	Unit        string

	Amount             float64
	UnitPrice          float64
	TotalPrice         float64
	VAT                float64
	TotalPriceAfterVAT float64

	DeliveryDate string
	EntryDate    time.Time

	SubmitterUsername string

	ApprovalPayment     bool
	ApprovedPaymentBy   *repository.EntrySnapshot
	ApprovalPaymentDate *time.Time

	ApprovalReceive     bool
	ApprovedReceiveBy   *repository.EntrySnapshot
	ApprovalReceiveDate *time.Time
}

// FormatApprover renders the "username (department)" composite cell value.
func FormatApprover(username, department string) string {
	return fmt.Sprintf("%s (%s)", username, department)
}

// ParseApprover splits a "username (department)" composite back into parts.
// A value without the composite shape yields the whole string as username.
func ParseApprover(s string) (username, department string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	idx := strings.Index(s, " (")
	if idx < 0 {
		return s, ""
	}
	username = s[:idx]
	department = strings.TrimSuffix(s[idx+2:], ")")
	return username, department
}

// BuildWorkbook renders entries into a workbook with the fixed column order.
// Dates are rendered in loc; boolean flags become Yes/No tokens; approver
// snapshots become "username (department)" composites.
func BuildWorkbook(entries []*repository.Entry, loc *time.Location) (*excelize.File, error) {
	f := excelize.NewFile()
	if _, err := f.NewSheet(SheetName); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to create worksheet")
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to drop default worksheet")
	}

	for i, width := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(SheetName, col, col, width)
	}

	headerRow := make([]any, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &headerRow); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to write header row")
	}

	for i, e := range entries {
		row := []any{
			e.Name,
			e.Description,
			e.Unit,
			e.Amount,
			e.UnitPrice,
			e.TotalPrice,
			e.VAT,
			e.TotalPriceAfterVAT,
			e.DeliveryDate,
			formatDate(&e.EntryDate, loc),
			FormatApprover(e.SubmitterUsername, e.SubmitterDepartment),
			yesNo(e.ApprovalPayment),
			formatSnapshot(e.ApprovedPaymentBy),
			formatDate(e.ApprovalPaymentDate, loc),
			yesNo(e.ApprovalReceive),
			formatSnapshot(e.ApprovedReceiveBy),
			formatDate(e.ApprovalReceiveDate, loc),
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to address row")
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to write entry row")
		}
	}

	return f, nil
}

// ParseWorkbook reads entry rows starting at row 2 (row 1 is the header).
// Blank rows are ignored; malformed numeric cells fail the import with the
// offending row number.
func ParseWorkbook(f *excelize.File, loc *time.Location) ([]*Row, error) {
	raw, err := f.GetRows(SheetName)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to read worksheet")
	}

	rows := make([]*Row, 0, max(0, len(raw)-1))
	for i := 1; i < len(raw); i++ {
		number := i + 1
		cells := raw[i]
		if isBlank(cells) {
			continue
		}

		row := &Row{
			Number:       number,
			Name:         cell(cells, 0),
			Description:  cell(cells, 1),
			Unit:         cell(cells, 2),
			DeliveryDate: cell(cells, 8),
		}

		if row.Amount, err = parseFloat(cells, 3, number, "Amount"); err != nil {
			return nil, err
		}
		if row.UnitPrice, err = parseFloat(cells, 4, number, "Unit Price"); err != nil {
			return nil, err
		}
		if row.TotalPrice, err = parseFloat(cells, 5, number, "Total Price"); err != nil {
			return nil, err
		}
		if row.VAT, err = parseFloat(cells, 6, number, "VAT (%)"); err != nil {
			return nil, err
		}
		if row.TotalPriceAfterVAT, err = parseFloat(cells, 7, number, "Total Price After VAT"); err != nil {
			return nil, err
		}

		row.EntryDate = parseDate(cell(cells, 9), loc)
		row.SubmitterUsername, _ = ParseApprover(cell(cells, 10))

		row.ApprovalPayment = cell(cells, 11) == "Yes"
		row.ApprovedPaymentBy = parseSnapshot(cell(cells, 12))
		row.ApprovalPaymentDate = parseDatePtr(cell(cells, 13), loc)

		row.ApprovalReceive = cell(cells, 14) == "Yes"
		row.ApprovedReceiveBy = parseSnapshot(cell(cells, 15))
		row.ApprovalReceiveDate = parseDatePtr(cell(cells, 16), loc)

		rows = append(rows, row)
	}

	return rows, nil
}

// ── cell helpers ─────────────────────────────────────────────────────────────

func cell(cells []string, i int) string {
	if i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseFloat(cells []string, i, rowNumber int, column string) (float64, error) {
	s := cell(cells, i)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, apperrors.InvalidInput(column, fmt.Sprintf("row %d: %q is not a number", rowNumber, s))
	}
	return v, nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func formatSnapshot(s *repository.EntrySnapshot) string {
	if s == nil {
		return ""
	}
	return FormatApprover(s.Username, s.Department)
}

func parseSnapshot(s string) *repository.EntrySnapshot {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	username, department := ParseApprover(s)
	return &repository.EntrySnapshot{Username: username, Department: department}
}

func formatDate(t *time.Time, loc *time.Location) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(loc).Format(DateLayout)
}

// parseDate tolerates unparseable values by returning the zero time. The
// original export is the expected input; foreign sheets may carry arbitrary
// date strings.
func parseDate(s string, loc *time.Location) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseDatePtr(s string, loc *time.Location) *time.Time {
	t := parseDate(s, loc)
	if t.IsZero() {
		return nil
	}
	return &t
}
