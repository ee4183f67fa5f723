package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/procureflow/be-approvals/internal/apperrors"
	"github.com/procureflow/be-approvals/internal/repository"
)

// ApprovalService is the approval engine for submitted documents: it gates
// the actor's capability, validates the approver assignment, appends the
// approval and flips the overall flag on unanimity.
type ApprovalService struct {
	docs   DocumentStore
	users  UserStore
	perms  PermissionChecker
	events EventPublisher
	log    zerolog.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(docs DocumentStore, users UserStore, perms PermissionChecker, events EventPublisher, log zerolog.Logger) *ApprovalService {
	return &ApprovalService{docs: docs, users: users, perms: perms, events: events, log: log}
}

// Approve records the actor's approval on a document of any kind.
//
// Failure modes: NotFound when no document has the id, Forbidden when the
// actor lacks the approve capability or is not a designated approver,
// Conflict when the actor already approved or the document changed between
// read and write.
func (s *ApprovalService) Approve(ctx context.Context, actor Actor, docID uuid.UUID) (*repository.Document, error) {
	if !s.perms.Allows(actor.Role, CapApprove) {
		return nil, apperrors.Forbidden("only approvers can approve documents")
	}

	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	assigned := false
	for _, a := range doc.Approvers {
		if a.ApproverID == actor.ID {
			assigned = true
			break
		}
	}
	if !assigned {
		return nil, apperrors.Forbidden("you are not an assigned approver for this document")
	}

	for _, rec := range doc.ApprovedBy {
		if rec.UserID == actor.ID {
			return nil, apperrors.Conflict("you have already approved this document")
		}
	}

	rec := repository.ApprovalRecord{
		UserID:     user.ID,
		Username:   user.Username,
		Role:       user.Role,
		ApprovedAt: time.Now().UTC(),
	}

	// Conditional on the approval count read above: a concurrent approval
	// that landed in between surfaces as Conflict instead of a lost update.
	if err := s.docs.AppendApproval(ctx, doc.ID, rec, len(doc.ApprovedBy)); err != nil {
		return nil, err
	}

	updated, err := s.docs.GetByID(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_id", doc.ID.String()).
		Str("kind", string(doc.Kind)).
		Str("approved_by", actor.ID.String()).
		Int("approvals", len(updated.ApprovedBy)).
		Int("approvers", len(updated.Approvers)).
		Bool("approved", updated.Approved).
		Msg("Document approval recorded")

	if s.events != nil {
		eventType := "document_approval_recorded"
		if updated.Approved {
			eventType = "document_approved"
		}
		s.events.Publish(ctx, eventType, "document", doc.ID.String(), actor.ID.String(), map[string]any{
			"kind":      string(doc.Kind),
			"approvals": len(updated.ApprovedBy),
		})
	}

	return updated, nil
}

// Delete removes a document of any kind. Requires the delete capability.
func (s *ApprovalService) Delete(ctx context.Context, actor Actor, docID uuid.UUID) error {
	if !s.perms.Allows(actor.Role, CapDelete) {
		return apperrors.Forbidden("only approvers can delete documents")
	}

	if err := s.docs.Delete(ctx, docID); err != nil {
		return err
	}

	s.log.Info().
		Str("document_id", docID.String()).
		Str("deleted_by", actor.ID.String()).
		Msg("Document deleted")

	return nil
}
