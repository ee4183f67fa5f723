package repository

import (
	"context"
	"encoding/json"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/procureflow/be-approvals/internal/apperrors"
	"github.com/procureflow/be-approvals/internal/database"
)

// EntryRepository handles procurement entry persistence.
type EntryRepository struct {
	db *database.DB
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(db *database.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Create inserts a new entry. Derived totals are computed by the caller at
// write time and stored as-is.
func (r *EntryRepository) Create(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO entries (name, description, unit, amount, unit_price,
		                     total_price, vat, total_price_after_vat,
		                     delivery_date, entry_date, submitted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.Name,
		entry.Description,
		entry.Unit,
		entry.Amount,
		entry.UnitPrice,
		entry.TotalPrice,
		entry.VAT,
		entry.TotalPriceAfterVAT,
		entry.DeliveryDate,
		entry.EntryDate,
		entry.SubmittedBy,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)

	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create entry")
	}
	return nil
}

// GetByID retrieves one entry with the submitter resolved.
func (r *EntryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	query := entrySelect().Where(sq.Eq{"e.id": id})

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to build query")
	}

	entry, err := scanEntry(r.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("entry", id.String())
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get entry")
	}
	return entry, nil
}

// List returns entries matching the filter, newest first, with submitter
// username and department resolved.
func (r *EntryRepository) List(ctx context.Context, f EntryFilter) ([]*Entry, error) {
	query := entrySelect().OrderBy("e.entry_date DESC", "e.id DESC")

	if f.PaymentApproved != nil {
		query = query.Where(sq.Eq{"e.approval_payment": *f.PaymentApproved})
	}
	if f.ReceiveApproved != nil {
		query = query.Where(sq.Eq{"e.approval_receive": *f.ReceiveApproved})
	}
	if f.SubmittedBy != nil {
		query = query.Where(sq.Eq{"e.submitted_by": *f.SubmittedBy})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to build query")
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list entries")
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan entry")
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// SetPaymentApproval marks the payment flag and stores the approver snapshot.
// Repeat calls overwrite the previous snapshot and timestamp.
func (r *EntryRepository) SetPaymentApproval(ctx context.Context, id uuid.UUID, snapshot EntrySnapshot) error {
	return r.setApproval(ctx, id, snapshot, `
		UPDATE entries
		SET approval_payment      = TRUE,
		    approved_payment_by   = $2,
		    approval_payment_date = NOW(),
		    updated_at            = NOW()
		WHERE id = $1
		RETURNING id
	`)
}

// SetReceiveApproval marks the goods-received flag and stores the approver
// snapshot. Repeat calls overwrite the previous snapshot and timestamp.
func (r *EntryRepository) SetReceiveApproval(ctx context.Context, id uuid.UUID, snapshot EntrySnapshot) error {
	return r.setApproval(ctx, id, snapshot, `
		UPDATE entries
		SET approval_receive      = TRUE,
		    approved_receive_by   = $2,
		    approval_receive_date = NOW(),
		    updated_at            = NOW()
		WHERE id = $1
		RETURNING id
	`)
}

func (r *EntryRepository) setApproval(ctx context.Context, id uuid.UUID, snapshot EntrySnapshot, query string) error {
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal approver snapshot")
	}

	var returnedID uuid.UUID
	err = r.db.QueryRow(ctx, query, id, snapshotJSON).Scan(&returnedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound("entry", id.String())
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to record entry approval")
	}
	return nil
}

// Delete removes an entry by id. Deleting a missing id is a no-op success.
func (r *EntryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM entries WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to delete entry")
	}
	return nil
}

// BulkInsert writes imported entries using the COPY protocol.
func (r *EntryRepository) BulkInsert(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	columns := []string{
		"id", "name", "description", "unit", "amount", "unit_price",
		"total_price", "vat", "total_price_after_vat",
		"delivery_date", "entry_date", "submitted_by",
		"approval_payment", "approved_payment_by", "approval_payment_date",
		"approval_receive", "approved_receive_by", "approval_receive_date",
	}

	copyRows := make([][]any, 0, len(entries))
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}

		paymentBy, err := marshalSnapshot(e.ApprovedPaymentBy)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal approver snapshot")
		}
		receiveBy, err := marshalSnapshot(e.ApprovedReceiveBy)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal approver snapshot")
		}

		copyRows = append(copyRows, []any{
			e.ID, e.Name, e.Description, e.Unit, e.Amount, e.UnitPrice,
			e.TotalPrice, e.VAT, e.TotalPriceAfterVAT,
			e.DeliveryDate, e.EntryDate, e.SubmittedBy,
			e.ApprovalPayment, paymentBy, e.ApprovalPaymentDate,
			e.ApprovalReceive, receiveBy, e.ApprovalReceiveDate,
		})
	}

	_, err := r.db.CopyFrom(ctx, pgx.Identifier{"entries"}, columns, pgx.CopyFromRows(copyRows))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to bulk insert entries")
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func entrySelect() sq.SelectBuilder {
	return psql.Select(
		"e.id", "e.name", "e.description", "e.unit",
		"e.amount", "e.unit_price", "e.total_price", "e.vat", "e.total_price_after_vat",
		"e.delivery_date", "e.entry_date",
		"e.submitted_by", "u.username", "u.department",
		"e.approval_payment", "e.approved_payment_by", "e.approval_payment_date",
		"e.approval_receive", "e.approved_receive_by", "e.approval_receive_date",
		"e.created_at", "e.updated_at",
	).From("entries e").Join("users u ON u.id = e.submitted_by")
}

func scanEntry(row rowScanner) (*Entry, error) {
	entry := &Entry{}
	var paymentBy, receiveBy []byte

	err := row.Scan(
		&entry.ID, &entry.Name, &entry.Description, &entry.Unit,
		&entry.Amount, &entry.UnitPrice, &entry.TotalPrice, &entry.VAT, &entry.TotalPriceAfterVAT,
		&entry.DeliveryDate, &entry.EntryDate,
		&entry.SubmittedBy, &entry.SubmitterUsername, &entry.SubmitterDepartment,
		&entry.ApprovalPayment, &paymentBy, &entry.ApprovalPaymentDate,
		&entry.ApprovalReceive, &receiveBy, &entry.ApprovalReceiveDate,
		&entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if entry.ApprovedPaymentBy, err = unmarshalSnapshot(paymentBy); err != nil {
		return nil, err
	}
	if entry.ApprovedReceiveBy, err = unmarshalSnapshot(receiveBy); err != nil {
		return nil, err
	}

	return entry, nil
}

func marshalSnapshot(s *EntrySnapshot) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func unmarshalSnapshot(data []byte) (*EntrySnapshot, error) {
	if len(data) == 0 {
		return nil, nil
	}
	s := &EntrySnapshot{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}
