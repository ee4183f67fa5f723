package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/procureflow/be-approvals/internal/apperrors"
	"github.com/procureflow/be-approvals/internal/database"
)

// DocumentRepository stores all document kinds in a single tagged table.
// Keeping one table means lookup, approval and deletion see every kind:
// there is no per-collection probing order and no kind a delete can miss.
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `
	d.id, d.kind, d.title, d.payload,
	d.submitted_by, u.username,
	d.approvers, d.approved_by, d.approved,
	d.submission_date, d.created_at, d.updated_at
`

// Create inserts a new document row.
func (r *DocumentRepository) Create(ctx context.Context, doc *Document) error {
	payloadJSON, err := json.Marshal(doc.Payload)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal document payload")
	}
	approversJSON, err := json.Marshal(doc.Approvers)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal approvers")
	}
	approvedByJSON, err := json.Marshal(emptyIfNil(doc.ApprovedBy))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal approvals")
	}

	query := `
		INSERT INTO documents (kind, title, payload, submitted_by,
		                       approvers, approved_by, approved, submission_date)
		VALUES ($1::document_kind, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		doc.Kind,
		doc.Title,
		payloadJSON,
		doc.SubmittedBy,
		approversJSON,
		approvedByJSON,
		doc.Approved,
		doc.SubmissionDate,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)

	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create document")
	}
	return nil
}

// GetByID retrieves a document of any kind, resolving the submitter username.
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents d
		JOIN users u ON u.id = d.submitted_by
		WHERE d.id = $1
	`

	doc, err := scanDocument(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("document", id.String())
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get document")
	}
	return doc, nil
}

// ListByApproved returns all documents of every kind filtered by the overall
// approved flag, newest submissions first.
func (r *DocumentRepository) ListByApproved(ctx context.Context, approved bool) ([]*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents d
		JOIN users u ON u.id = d.submitted_by
		WHERE d.approved = $1
		ORDER BY d.submission_date DESC
	`

	rows, err := r.db.Query(ctx, query, approved)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list documents")
	}
	defer rows.Close()

	docs := make([]*Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan document")
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// GetApprovedGeneric returns the approved generic documents among ids, in no
// particular order. Used to copy content blocks at submission time.
func (r *DocumentRepository) GetApprovedGeneric(ctx context.Context, ids []uuid.UUID) ([]*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents d
		JOIN users u ON u.id = d.submitted_by
		WHERE d.id = ANY($1)
		  AND d.kind = 'generic'
		  AND d.approved = TRUE
	`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get approved documents")
	}
	defer rows.Close()

	docs := make([]*Document, 0, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan document")
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// AppendApproval appends one approval record and flips the approved flag when
// the envelope becomes unanimous. The update only lands when the stored
// approval count still equals expectedApprovals; zero rows affected means the
// row changed (or vanished) since it was read, surfaced as Conflict so the
// caller can retry.
func (r *DocumentRepository) AppendApproval(ctx context.Context, id uuid.UUID, rec ApprovalRecord, expectedApprovals int) error {
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal approval record")
	}

	query := `
		UPDATE documents
		SET approved_by = approved_by || $2::jsonb,
		    approved    = (jsonb_array_length(approved_by) + 1 = jsonb_array_length(approvers)),
		    updated_at  = NOW()
		WHERE id = $1
		  AND jsonb_array_length(approved_by) = $3
		RETURNING id
	`

	var returnedID uuid.UUID
	err = r.db.QueryRow(ctx, query, id, recJSON, expectedApprovals).Scan(&returnedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.Conflict("document was modified concurrently, retry the approval")
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to record approval")
	}
	return nil
}

// Delete removes a document of any kind.
func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to delete document")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("document", id.String())
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	doc := &Document{}
	var payloadJSON, approversJSON, approvedByJSON []byte

	err := row.Scan(
		&doc.ID,
		&doc.Kind,
		&doc.Title,
		&payloadJSON,
		&doc.SubmittedBy,
		&doc.SubmitterUsername,
		&approversJSON,
		&approvedByJSON,
		&doc.Approved,
		&doc.SubmissionDate,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payloadJSON, &doc.Payload); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(approversJSON, &doc.Approvers); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(approvedByJSON, &doc.ApprovedBy); err != nil {
		return nil, err
	}

	return doc, nil
}

func emptyIfNil(recs []ApprovalRecord) []ApprovalRecord {
	if recs == nil {
		return []ApprovalRecord{}
	}
	return recs
}
