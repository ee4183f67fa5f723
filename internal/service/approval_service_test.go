package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procureflow/be-approvals/internal/apperrors"
	"github.com/procureflow/be-approvals/internal/repository"
	"github.com/procureflow/be-approvals/internal/service"
)

func seedDocument(docs *fakeDocumentStore, kind repository.DocumentKind, approvers ...*repository.User) *repository.Document {
	assignments := make([]repository.ApproverAssignment, 0, len(approvers))
	for _, u := range approvers {
		assignments = append(assignments, repository.ApproverAssignment{
			ApproverID: u.ID,
			Username:   u.Username,
		})
	}
	doc := &repository.Document{
		Kind:           kind,
		Title:          "Purchase request",
		SubmittedBy:    uuid.New(),
		Approvers:      assignments,
		SubmissionDate: time.Now().UTC(),
	}
	_ = docs.Create(context.Background(), doc)
	return doc
}

func approverActor(u *repository.User) service.Actor {
	return service.Actor{ID: u.ID, Username: u.Username, Role: u.Role}
}

func TestApprovalServiceApprove(t *testing.T) {
	ctx := context.Background()

	first := &repository.User{ID: uuid.New(), Username: "alice", Role: service.RoleApprover}
	second := &repository.User{ID: uuid.New(), Username: "bob", Role: service.RoleApprover}

	newService := func(docs *fakeDocumentStore, users *fakeUserStore, events *fakePublisher) *service.ApprovalService {
		return service.NewApprovalService(docs, users, service.DefaultPermissions(), events, zerolog.Nop())
	}

	t.Run("flips approved only when every approver has approved", func(t *testing.T) {
		docs := newFakeDocumentStore()
		users := newFakeUserStore(first, second)
		events := &fakePublisher{}
		svc := newService(docs, users, events)

		doc := seedDocument(docs, repository.KindGeneric, first, second)

		updated, err := svc.Approve(ctx, approverActor(first), doc.ID)
		require.NoError(t, err)
		assert.False(t, updated.Approved)
		assert.Len(t, updated.ApprovedBy, 1)
		assert.Equal(t, "alice", updated.ApprovedBy[0].Username)
		assert.Equal(t, "document_approval_recorded", events.lastEvent().EventType)

		updated, err = svc.Approve(ctx, approverActor(second), doc.ID)
		require.NoError(t, err)
		assert.True(t, updated.Approved)
		assert.Len(t, updated.ApprovedBy, 2)
		assert.Equal(t, "document_approved", events.lastEvent().EventType)
	})

	t.Run("single approver approves immediately", func(t *testing.T) {
		docs := newFakeDocumentStore()
		svc := newService(docs, newFakeUserStore(first), &fakePublisher{})

		doc := seedDocument(docs, repository.KindProposal, first)

		updated, err := svc.Approve(ctx, approverActor(first), doc.ID)
		require.NoError(t, err)
		assert.True(t, updated.Approved)
	})

	t.Run("rejects roles without the approve capability", func(t *testing.T) {
		docs := newFakeDocumentStore()
		submitter := &repository.User{ID: uuid.New(), Username: "carol", Role: "user"}
		svc := newService(docs, newFakeUserStore(first, submitter), &fakePublisher{})

		doc := seedDocument(docs, repository.KindGeneric, first)

		_, err := svc.Approve(ctx, approverActor(submitter), doc.ID)
		assert.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))
	})

	t.Run("rejects approvers not assigned to the document", func(t *testing.T) {
		docs := newFakeDocumentStore()
		outsider := &repository.User{ID: uuid.New(), Username: "dave", Role: service.RoleApprover}
		svc := newService(docs, newFakeUserStore(first, outsider), &fakePublisher{})

		doc := seedDocument(docs, repository.KindGeneric, first)

		_, err := svc.Approve(ctx, approverActor(outsider), doc.ID)
		assert.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))
	})

	t.Run("rejects a repeat approval by the same user", func(t *testing.T) {
		docs := newFakeDocumentStore()
		svc := newService(docs, newFakeUserStore(first, second), &fakePublisher{})

		doc := seedDocument(docs, repository.KindGeneric, first, second)

		_, err := svc.Approve(ctx, approverActor(first), doc.ID)
		require.NoError(t, err)

		_, err = svc.Approve(ctx, approverActor(first), doc.ID)
		assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))
	})

	t.Run("returns not found for an unknown document", func(t *testing.T) {
		svc := newService(newFakeDocumentStore(), newFakeUserStore(first), &fakePublisher{})

		_, err := svc.Approve(ctx, approverActor(first), uuid.New())
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})

	t.Run("conflicts when another approval lands between read and write", func(t *testing.T) {
		docs := newFakeDocumentStore()
		svc := newService(docs, newFakeUserStore(first, second), &fakePublisher{})

		doc := seedDocument(docs, repository.KindGeneric, first, second)

		docs.beforeAppend = func(d *repository.Document) {
			docs.beforeAppend = nil
			d.ApprovedBy = append(d.ApprovedBy, repository.ApprovalRecord{
				UserID:     second.ID,
				Username:   second.Username,
				Role:       second.Role,
				ApprovedAt: time.Now().UTC(),
			})
		}

		_, err := svc.Approve(ctx, approverActor(first), doc.ID)
		assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))
	})
}

func TestApprovalServiceDelete(t *testing.T) {
	ctx := context.Background()

	approver := &repository.User{ID: uuid.New(), Username: "alice", Role: service.RoleApprover}

	t.Run("deletes documents of every kind", func(t *testing.T) {
		docs := newFakeDocumentStore()
		svc := service.NewApprovalService(docs, newFakeUserStore(approver), service.DefaultPermissions(), &fakePublisher{}, zerolog.Nop())

		for _, kind := range []repository.DocumentKind{
			repository.KindGeneric, repository.KindProposal, repository.KindProcessing,
		} {
			doc := seedDocument(docs, kind, approver)

			require.NoError(t, svc.Delete(ctx, approverActor(approver), doc.ID))

			_, err := docs.GetByID(ctx, doc.ID)
			assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
		}
	})

	t.Run("rejects roles without the delete capability", func(t *testing.T) {
		docs := newFakeDocumentStore()
		svc := service.NewApprovalService(docs, newFakeUserStore(approver), service.DefaultPermissions(), &fakePublisher{}, zerolog.Nop())

		doc := seedDocument(docs, repository.KindGeneric, approver)

		err := svc.Delete(ctx, service.Actor{ID: uuid.New(), Role: "user"}, doc.ID)
		assert.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))

		_, err = docs.GetByID(ctx, doc.ID)
		assert.NoError(t, err)
	})

	t.Run("returns not found for an unknown document", func(t *testing.T) {
		svc := service.NewApprovalService(newFakeDocumentStore(), newFakeUserStore(approver), service.DefaultPermissions(), &fakePublisher{}, zerolog.Nop())

		err := svc.Delete(ctx, approverActor(approver), uuid.New())
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})
}
