package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/procureflow/be-approvals/internal/repository"
)

// Actor is the authenticated user performing a request, as supplied by the
// identity middleware.
type Actor struct {
	ID       uuid.UUID
	Username string
	Role     string
}

// UserStore reads identity records.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*repository.User, error)
	GetByUsername(ctx context.Context, username string) (*repository.User, error)
	ListByRole(ctx context.Context, role string) ([]*repository.User, error)
}

// DocumentStore persists documents of every kind.
type DocumentStore interface {
	Create(ctx context.Context, doc *repository.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Document, error)
	ListByApproved(ctx context.Context, approved bool) ([]*repository.Document, error)
	GetApprovedGeneric(ctx context.Context, ids []uuid.UUID) ([]*repository.Document, error)
	AppendApproval(ctx context.Context, id uuid.UUID, rec repository.ApprovalRecord, expectedApprovals int) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// EntryStore persists procurement entries.
type EntryStore interface {
	Create(ctx context.Context, entry *repository.Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Entry, error)
	List(ctx context.Context, f repository.EntryFilter) ([]*repository.Entry, error)
	SetPaymentApproval(ctx context.Context, id uuid.UUID, snapshot repository.EntrySnapshot) error
	SetReceiveApproval(ctx context.Context, id uuid.UUID, snapshot repository.EntrySnapshot) error
	Delete(ctx context.Context, id uuid.UUID) error
	BulkInsert(ctx context.Context, entries []*repository.Entry) error
}

// EventPublisher emits workflow events. Publishing is best-effort: failures
// are logged by the implementation and never interrupt the operation.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, resourceType, resourceID, actorID string, payload map[string]any)
}
