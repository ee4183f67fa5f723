package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/procureflow/be-approvals/internal/apperrors"
	"github.com/procureflow/be-approvals/internal/repository"
)

// Titles that select a non-generic document kind at submission time.
const (
	TitleProposal   = "Proposal Document"
	TitleProcessing = "Processing Document"
)

// DocumentService handles document submission and listing.
type DocumentService struct {
	docs   DocumentStore
	users  UserStore
	events EventPublisher
	log    zerolog.Logger
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(docs DocumentStore, users UserStore, events EventPublisher, log zerolog.Logger) *DocumentService {
	return &DocumentService{docs: docs, users: users, events: events, log: log}
}

// StringList accepts either a JSON string or an array of strings, so a single
// approver id submits the same way as a list.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = StringList(many)
	return nil
}

// ProductRequest is one product line of a processing document submission.
type ProductRequest struct {
	Name        string  `json:"name"`
	CostPerUnit float64 `json:"cost_per_unit"`
	Amount      float64 `json:"amount"`
}

// ProposalRequest is the fixed field set of a proposal document submission.
type ProposalRequest struct {
	Maintenance      string `json:"maintenance"`
	CostCenter       string `json:"cost_center"`
	DateOfError      string `json:"date_of_error"`
	ErrorDescription string `json:"error_description"`
	Direction        string `json:"direction"`
}

// SubmitDocumentRequest carries a document submission. The title selects the
// record kind: TitleProposal and TitleProcessing build their dedicated kinds,
// anything else a generic content document.
type SubmitDocumentRequest struct {
	Title               string            `json:"title"`
	ContentNames        StringList        `json:"content_names"`
	ContentTexts        StringList        `json:"content_texts"`
	Proposal            *ProposalRequest  `json:"proposal"`
	Products            []ProductRequest  `json:"products"`
	Approvers           StringList        `json:"approvers"`
	SubRoles            map[string]string `json:"sub_roles"`
	ApprovedDocumentIDs []string          `json:"approved_documents"`
}

// Submit validates and persists one new document. Every approver id must
// resolve to a user or the whole submission fails with no partial write.
func (s *DocumentService) Submit(ctx context.Context, actor Actor, req *SubmitDocumentRequest) (*repository.Document, error) {
	if req.Title == "" {
		return nil, apperrors.InvalidInput("title", "title is required")
	}

	approvers, err := s.resolveApprovers(ctx, req.Approvers, req.SubRoles)
	if err != nil {
		return nil, err
	}

	doc := &repository.Document{
		Title:          req.Title,
		SubmittedBy:    actor.ID,
		Approvers:      approvers,
		SubmissionDate: time.Now().UTC(),
	}

	switch req.Title {
	case TitleProposal:
		if req.Proposal == nil {
			return nil, apperrors.InvalidInput("proposal", "proposal fields are required")
		}
		doc.Kind = repository.KindProposal
		doc.Payload.Proposal = &repository.ProposalFields{
			Maintenance:      req.Proposal.Maintenance,
			CostCenter:       req.Proposal.CostCenter,
			DateOfError:      req.Proposal.DateOfError,
			ErrorDescription: req.Proposal.ErrorDescription,
			Direction:        req.Proposal.Direction,
		}

	case TitleProcessing:
		products, grandTotal, err := buildProducts(req.Products)
		if err != nil {
			return nil, err
		}
		doc.Kind = repository.KindProcessing
		doc.Payload.Products = products
		doc.Payload.GrandTotalCost = grandTotal

	default:
		content, err := s.buildContent(ctx, req)
		if err != nil {
			return nil, err
		}
		doc.Kind = repository.KindGeneric
		doc.Payload.Content = content
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_id", doc.ID.String()).
		Str("kind", string(doc.Kind)).
		Str("title", doc.Title).
		Str("submitted_by", actor.ID.String()).
		Int("approver_count", len(doc.Approvers)).
		Msg("Document submitted")

	if s.events != nil {
		s.events.Publish(ctx, "document_submitted", "document", doc.ID.String(), actor.ID.String(), map[string]any{
			"kind":  string(doc.Kind),
			"title": doc.Title,
		})
	}

	return doc, nil
}

// ApproverInfo is one entry of the approver directory shown to submitters
// when picking approvers. Password material never leaves the service.
type ApproverInfo struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	Department string    `json:"department"`
}

// ListApprovers returns every user holding the approver role.
func (s *DocumentService) ListApprovers(ctx context.Context) ([]ApproverInfo, error) {
	users, err := s.users.ListByRole(ctx, RoleApprover)
	if err != nil {
		return nil, err
	}

	out := make([]ApproverInfo, 0, len(users))
	for _, u := range users {
		out = append(out, ApproverInfo{ID: u.ID, Username: u.Username, Department: u.Department})
	}
	return out, nil
}

// ListPending returns all unapproved documents across every kind.
func (s *DocumentService) ListPending(ctx context.Context) ([]*repository.Document, error) {
	return s.docs.ListByApproved(ctx, false)
}

// ListApproved returns all fully approved documents across every kind.
func (s *DocumentService) ListApproved(ctx context.Context) ([]*repository.Document, error) {
	return s.docs.ListByApproved(ctx, true)
}

// resolveApprovers turns approver ids into assignments with username
// snapshots. Any id that fails to resolve aborts the submission.
func (s *DocumentService) resolveApprovers(ctx context.Context, ids StringList, subRoles map[string]string) ([]repository.ApproverAssignment, error) {
	if len(ids) == 0 {
		return nil, apperrors.InvalidInput("approvers", "at least one approver is required")
	}

	assignments := make([]repository.ApproverAssignment, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, apperrors.InvalidInput("approvers", "invalid approver id "+raw)
		}

		user, err := s.users.GetByID(ctx, id)
		if err != nil {
			if apperrors.CodeOf(err) == apperrors.CodeNotFound {
				return nil, apperrors.InvalidInput("approvers", "approver "+raw+" does not exist")
			}
			return nil, err
		}

		assignments = append(assignments, repository.ApproverAssignment{
			ApproverID: user.ID,
			Username:   user.Username,
			SubRole:    subRoles[raw],
		})
	}

	return assignments, nil
}

// buildProducts computes per-line and grand totals at write time.
func buildProducts(reqs []ProductRequest) ([]repository.Product, float64, error) {
	if len(reqs) == 0 {
		return nil, 0, apperrors.InvalidInput("products", "at least one product is required")
	}

	products := make([]repository.Product, 0, len(reqs))
	var grandTotal float64
	for _, p := range reqs {
		if p.CostPerUnit <= 0 {
			return nil, 0, apperrors.InvalidInput("cost_per_unit", "cost per unit must be positive")
		}
		if p.Amount <= 0 {
			return nil, 0, apperrors.InvalidInput("amount", "amount must be positive")
		}

		total := p.CostPerUnit * p.Amount
		products = append(products, repository.Product{
			Name:        p.Name,
			CostPerUnit: p.CostPerUnit,
			Amount:      p.Amount,
			TotalCost:   total,
		})
		grandTotal += total
	}

	return products, grandTotal, nil
}

// buildContent assembles the content blocks of a generic document: the
// submitted name/text pairs (or a single block when no arrays were sent),
// followed by content copied once from each referenced approved document.
func (s *DocumentService) buildContent(ctx context.Context, req *SubmitDocumentRequest) ([]repository.ContentBlock, error) {
	var content []repository.ContentBlock

	switch {
	case len(req.ContentNames) != len(req.ContentTexts):
		return nil, apperrors.InvalidInput("content", "content names and texts must pair up")
	case len(req.ContentNames) > 0:
		for i, name := range req.ContentNames {
			content = append(content, repository.ContentBlock{Name: name, Text: req.ContentTexts[i]})
		}
	default:
		// No content submitted: a single empty block keeps the document
		// shape uniform for later content copying.
		content = append(content, repository.ContentBlock{})
	}

	if len(req.ApprovedDocumentIDs) == 0 {
		return content, nil
	}

	ids := make([]uuid.UUID, 0, len(req.ApprovedDocumentIDs))
	for _, raw := range req.ApprovedDocumentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, apperrors.InvalidInput("approved_documents", "invalid document id "+raw)
		}
		ids = append(ids, id)
	}

	sources, err := s.docs.GetApprovedGeneric(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		content = append(content, src.Payload.Content...)
	}

	return content, nil
}
