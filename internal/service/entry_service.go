package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/procureflow/be-approvals/internal/apperrors"
	"github.com/procureflow/be-approvals/internal/excel"
	"github.com/procureflow/be-approvals/internal/repository"
)

// EntryService handles procurement entries: creation with derived totals,
// the two independent single-flag approvals, and spreadsheet export/import.
type EntryService struct {
	entries EntryStore
	users   UserStore
	perms   PermissionChecker
	events  EventPublisher
	loc     *time.Location
	log     zerolog.Logger
}

// NewEntryService creates a new EntryService. loc controls how dates are
// rendered into exported spreadsheets.
func NewEntryService(entries EntryStore, users UserStore, perms PermissionChecker, events EventPublisher, loc *time.Location, log zerolog.Logger) *EntryService {
	if loc == nil {
		loc = time.UTC
	}
	return &EntryService{entries: entries, users: users, perms: perms, events: events, loc: loc, log: log}
}

// CreateEntryRequest carries a new entry submission. Totals are derived
// server-side and never accepted from the caller.
type CreateEntryRequest struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Unit         string  `json:"unit"`
	Amount       float64 `json:"amount"`
	UnitPrice    float64 `json:"unit_price"`
	VAT          float64 `json:"vat"`
	DeliveryDate string  `json:"delivery_date"`
}

// Create validates the request, computes totals at write time and persists
// the entry.
func (s *EntryService) Create(ctx context.Context, actor Actor, req *CreateEntryRequest) (*repository.Entry, error) {
	if req.Name == "" {
		return nil, apperrors.InvalidInput("name", "name is required")
	}
	if req.Amount <= 0 {
		return nil, apperrors.InvalidInput("amount", "amount must be positive")
	}
	if req.UnitPrice < 0 {
		return nil, apperrors.InvalidInput("unit_price", "unit price cannot be negative")
	}
	if req.VAT < 0 || req.VAT > 100 {
		return nil, apperrors.InvalidInput("vat", "vat must be between 0 and 100")
	}

	totalPrice := req.Amount * req.UnitPrice
	entry := &repository.Entry{
		Name:               req.Name,
		Description:        req.Description,
		Unit:               req.Unit,
		Amount:             req.Amount,
		UnitPrice:          req.UnitPrice,
		TotalPrice:         totalPrice,
		VAT:                req.VAT,
		TotalPriceAfterVAT: totalPrice + totalPrice*(req.VAT/100),
		DeliveryDate:       req.DeliveryDate,
		EntryDate:          time.Now().UTC(),
		SubmittedBy:        actor.ID,
	}

	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("name", entry.Name).
		Str("submitted_by", actor.ID.String()).
		Float64("total_price_after_vat", entry.TotalPriceAfterVAT).
		Msg("Entry created")

	return entry, nil
}

// List returns entries matching the filter with submitters resolved.
func (s *EntryService) List(ctx context.Context, f repository.EntryFilter) ([]*repository.Entry, error) {
	return s.entries.List(ctx, f)
}

// ApprovePayment marks an entry's payment as approved, snapshotting the
// acting approver's username and department. Repeat calls overwrite the
// previous snapshot and timestamp rather than conflicting; this matches the
// single-flag semantics and differs deliberately from document approvals.
func (s *EntryService) ApprovePayment(ctx context.Context, actor Actor, entryID uuid.UUID) error {
	return s.approveFlag(ctx, actor, entryID, "payment", s.entries.SetPaymentApproval)
}

// ApproveReceive marks an entry's goods as received with the same overwrite
// semantics as ApprovePayment.
func (s *EntryService) ApproveReceive(ctx context.Context, actor Actor, entryID uuid.UUID) error {
	return s.approveFlag(ctx, actor, entryID, "receive", s.entries.SetReceiveApproval)
}

func (s *EntryService) approveFlag(
	ctx context.Context,
	actor Actor,
	entryID uuid.UUID,
	flag string,
	set func(context.Context, uuid.UUID, repository.EntrySnapshot) error,
) error {
	if !s.perms.Allows(actor.Role, CapApprove) {
		return apperrors.Forbidden("only approvers can approve entries")
	}

	if _, err := s.entries.GetByID(ctx, entryID); err != nil {
		return err
	}

	approver, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return err
	}

	snapshot := repository.EntrySnapshot{
		Username:   approver.Username,
		Department: approver.Department,
	}
	if err := set(ctx, entryID, snapshot); err != nil {
		return err
	}

	s.log.Info().
		Str("entry_id", entryID.String()).
		Str("flag", flag).
		Str("approved_by", actor.ID.String()).
		Msg("Entry approval recorded")

	if s.events != nil {
		s.events.Publish(ctx, "entry_"+flag+"_approved", "entry", entryID.String(), actor.ID.String(), nil)
	}

	return nil
}

// Delete removes an entry. Requires the delete capability; deleting an id
// that does not exist is a no-op success.
func (s *EntryService) Delete(ctx context.Context, actor Actor, entryID uuid.UUID) error {
	if !s.perms.Allows(actor.Role, CapDelete) {
		return apperrors.Forbidden("only approvers can delete entries")
	}

	if err := s.entries.Delete(ctx, entryID); err != nil {
		return err
	}

	s.log.Info().
		Str("entry_id", entryID.String()).
		Str("deleted_by", actor.ID.String()).
		Msg("Entry deleted")

	return nil
}

// Export renders every entry into an xlsx workbook.
func (s *EntryService) Export(ctx context.Context) (*excelize.File, error) {
	entries, err := s.entries.List(ctx, repository.EntryFilter{})
	if err != nil {
		return nil, err
	}
	return excel.BuildWorkbook(entries, s.loc)
}

// ImportResult reports the outcome of a spreadsheet import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Import reads entries from the uploaded workbook at path and bulk-inserts
// them. Rows whose submitter username does not resolve are skipped with a
// warning; the remaining rows still import.
func (s *EntryService) Import(ctx context.Context, path string) (*ImportResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "failed to open spreadsheet")
	}
	defer f.Close()

	rows, err := excel.ParseWorkbook(f, s.loc)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	entries := make([]*repository.Entry, 0, len(rows))
	for _, row := range rows {
		submitter, err := s.users.GetByUsername(ctx, row.SubmitterUsername)
		if err != nil {
			if apperrors.CodeOf(err) == apperrors.CodeNotFound {
				s.log.Warn().
					Str("username", row.SubmitterUsername).
					Int("row", row.Number).
					Msg("Submitter not found, skipping row")
				result.Skipped++
				continue
			}
			return nil, err
		}

		entries = append(entries, &repository.Entry{
			Name:               row.Name,
			Description:        row.Description,
			Unit:               row.Unit,
			Amount:             row.Amount,
			UnitPrice:          row.UnitPrice,
			TotalPrice:         row.TotalPrice,
			VAT:                row.VAT,
			TotalPriceAfterVAT: row.TotalPriceAfterVAT,
			DeliveryDate:       row.DeliveryDate,
			EntryDate:          row.EntryDate,
			SubmittedBy:        submitter.ID,

			ApprovalPayment:     row.ApprovalPayment,
			ApprovedPaymentBy:   row.ApprovedPaymentBy,
			ApprovalPaymentDate: row.ApprovalPaymentDate,
			ApprovalReceive:     row.ApprovalReceive,
			ApprovedReceiveBy:   row.ApprovedReceiveBy,
			ApprovalReceiveDate: row.ApprovalReceiveDate,
		})
	}

	if err := s.entries.BulkInsert(ctx, entries); err != nil {
		return nil, err
	}
	result.Imported = len(entries)

	s.log.Info().
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Msg("Entries imported from spreadsheet")

	return result, nil
}
