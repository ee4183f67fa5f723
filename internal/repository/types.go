package repository

import (
	"time"

	"github.com/google/uuid"
)

// ── Identity ─────────────────────────────────────────────────────────────────

// User is an identity record. Managed externally; this service only reads it.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	Role         string
	Department   string
}

// ── Documents ────────────────────────────────────────────────────────────────

// DocumentKind tags the payload variant of a document row.
type DocumentKind string

const (
	KindGeneric    DocumentKind = "generic"
	KindProposal   DocumentKind = "proposal"
	KindProcessing DocumentKind = "processing"
)

// ApproverAssignment is a designated approver captured at submission time.
// Username is a snapshot and does not track later user changes.
type ApproverAssignment struct {
	ApproverID uuid.UUID `json:"approver_id"`
	Username   string    `json:"username"`
	SubRole    string    `json:"sub_role,omitempty"`
}

// ApprovalRecord is one completed approval. Username and Role are snapshots.
type ApprovalRecord struct {
	UserID     uuid.UUID `json:"user_id"`
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	ApprovedAt time.Time `json:"approved_at"`
}

// ContentBlock is one named text section of a generic document.
type ContentBlock struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// ProposalFields is the fixed field set of a proposal document.
type ProposalFields struct {
	Maintenance      string `json:"maintenance"`
	CostCenter       string `json:"cost_center"`
	DateOfError      string `json:"date_of_error"`
	ErrorDescription string `json:"error_description"`
	Direction        string `json:"direction"`
}

// Product is one line of a processing document. TotalCost is derived at
// write time as CostPerUnit * Amount.
type Product struct {
	Name        string  `json:"name"`
	CostPerUnit float64 `json:"cost_per_unit"`
	Amount      float64 `json:"amount"`
	TotalCost   float64 `json:"total_cost"`
}

// DocumentPayload holds the kind-specific fields of a document. Exactly one
// variant is populated, matching the row's kind.
type DocumentPayload struct {
	Content        []ContentBlock  `json:"content,omitempty"`
	Proposal       *ProposalFields `json:"proposal,omitempty"`
	Products       []Product       `json:"products,omitempty"`
	GrandTotalCost float64         `json:"grand_total_cost,omitempty"`
}

// Document is a submitted record of any kind sharing the approval envelope
// (Approvers, ApprovedBy, Approved). Approved flips to true exactly when
// every designated approver has approved.
type Document struct {
	ID                uuid.UUID       `json:"id"`
	Kind              DocumentKind    `json:"kind"`
	Title             string          `json:"title"`
	Payload           DocumentPayload `json:"payload"`
	SubmittedBy       uuid.UUID       `json:"submitted_by"`
	SubmitterUsername string          `json:"submitter_username,omitempty"`

	Approvers  []ApproverAssignment `json:"approvers"`
	ApprovedBy []ApprovalRecord     `json:"approved_by"`
	Approved   bool                 `json:"approved"`

	SubmissionDate time.Time `json:"submission_date"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ── Entries ──────────────────────────────────────────────────────────────────

// EntrySnapshot is the {username, department} copy taken when an entry flag
// is approved. Historical audit data, never kept in sync with users.
type EntrySnapshot struct {
	Username   string `json:"username"`
	Department string `json:"department"`
}

// Entry is a procurement line item with two independent single-step approval
// flags (payment and goods receipt).
type Entry struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Unit        string    `json:"unit"`

	Amount             float64 `json:"amount"`
	UnitPrice          float64 `json:"unit_price"`
	TotalPrice         float64 `json:"total_price"`
	VAT                float64 `json:"vat"`
	TotalPriceAfterVAT float64 `json:"total_price_after_vat"`

	DeliveryDate string    `json:"delivery_date"`
	EntryDate    time.Time `json:"entry_date"`

	SubmittedBy         uuid.UUID `json:"submitted_by"`
	SubmitterUsername   string    `json:"submitter_username,omitempty"`
	SubmitterDepartment string    `json:"submitter_department,omitempty"`

	ApprovalPayment     bool           `json:"approval_payment"`
	ApprovedPaymentBy   *EntrySnapshot `json:"approved_payment_by,omitempty"`
	ApprovalPaymentDate *time.Time     `json:"approval_payment_date,omitempty"`

	ApprovalReceive     bool           `json:"approval_receive"`
	ApprovedReceiveBy   *EntrySnapshot `json:"approved_receive_by,omitempty"`
	ApprovalReceiveDate *time.Time     `json:"approval_receive_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntryFilter narrows entry listings.
type EntryFilter struct {
	PaymentApproved *bool
	ReceiveApproved *bool
	SubmittedBy     *uuid.UUID
}
