package service_test

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/procureflow/be-approvals/internal/apperrors"
	"github.com/procureflow/be-approvals/internal/repository"
)

// fakeUserStore serves users from memory.
type fakeUserStore struct {
	users map[uuid.UUID]*repository.User
}

func newFakeUserStore(users ...*repository.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[uuid.UUID]*repository.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*repository.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", id.String())
	}
	return u, nil
}

func (s *fakeUserStore) GetByUsername(_ context.Context, username string) (*repository.User, error) {
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, apperrors.NotFound("user", username)
}

func (s *fakeUserStore) ListByRole(_ context.Context, role string) ([]*repository.User, error) {
	out := make([]*repository.User, 0)
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// fakeDocumentStore mirrors the repository's approval semantics, including
// the conditional append that rejects stale approval counts.
type fakeDocumentStore struct {
	docs map[uuid.UUID]*repository.Document

	// beforeAppend runs inside AppendApproval before the count check, so
	// tests can simulate an approval landing between read and write.
	beforeAppend func(doc *repository.Document)

	createCalls int
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{docs: make(map[uuid.UUID]*repository.Document)}
}

func (s *fakeDocumentStore) Create(_ context.Context, doc *repository.Document) error {
	s.createCalls++
	doc.ID = uuid.New()
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt
	s.docs[doc.ID] = doc
	return nil
}

func (s *fakeDocumentStore) GetByID(_ context.Context, id uuid.UUID) (*repository.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, apperrors.NotFound("document", id.String())
	}
	copied := *doc
	copied.Approvers = append([]repository.ApproverAssignment(nil), doc.Approvers...)
	copied.ApprovedBy = append([]repository.ApprovalRecord(nil), doc.ApprovedBy...)
	return &copied, nil
}

func (s *fakeDocumentStore) ListByApproved(_ context.Context, approved bool) ([]*repository.Document, error) {
	out := make([]*repository.Document, 0)
	for _, doc := range s.docs {
		if doc.Approved == approved {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmissionDate.After(out[j].SubmissionDate)
	})
	return out, nil
}

func (s *fakeDocumentStore) GetApprovedGeneric(_ context.Context, ids []uuid.UUID) ([]*repository.Document, error) {
	out := make([]*repository.Document, 0)
	for _, id := range ids {
		doc, ok := s.docs[id]
		if ok && doc.Kind == repository.KindGeneric && doc.Approved {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *fakeDocumentStore) AppendApproval(_ context.Context, id uuid.UUID, rec repository.ApprovalRecord, expectedApprovals int) error {
	doc, ok := s.docs[id]
	if !ok {
		return apperrors.Conflict("document was modified concurrently, retry the approval")
	}
	if s.beforeAppend != nil {
		s.beforeAppend(doc)
	}
	if len(doc.ApprovedBy) != expectedApprovals {
		return apperrors.Conflict("document was modified concurrently, retry the approval")
	}
	doc.ApprovedBy = append(doc.ApprovedBy, rec)
	doc.Approved = len(doc.ApprovedBy) == len(doc.Approvers)
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *fakeDocumentStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.docs[id]; !ok {
		return apperrors.NotFound("document", id.String())
	}
	delete(s.docs, id)
	return nil
}

// fakeEntryStore serves entries from memory.
type fakeEntryStore struct {
	entries map[uuid.UUID]*repository.Entry
	bulk    []*repository.Entry
}

func newFakeEntryStore() *fakeEntryStore {
	return &fakeEntryStore{entries: make(map[uuid.UUID]*repository.Entry)}
}

func (s *fakeEntryStore) Create(_ context.Context, entry *repository.Entry) error {
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now().UTC()
	entry.UpdatedAt = entry.CreatedAt
	s.entries[entry.ID] = entry
	return nil
}

func (s *fakeEntryStore) GetByID(_ context.Context, id uuid.UUID) (*repository.Entry, error) {
	entry, ok := s.entries[id]
	if !ok {
		return nil, apperrors.NotFound("entry", id.String())
	}
	return entry, nil
}

func (s *fakeEntryStore) List(_ context.Context, f repository.EntryFilter) ([]*repository.Entry, error) {
	out := make([]*repository.Entry, 0)
	for _, e := range s.entries {
		if f.PaymentApproved != nil && e.ApprovalPayment != *f.PaymentApproved {
			continue
		}
		if f.ReceiveApproved != nil && e.ApprovalReceive != *f.ReceiveApproved {
			continue
		}
		if f.SubmittedBy != nil && e.SubmittedBy != *f.SubmittedBy {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EntryDate.After(out[j].EntryDate)
	})
	return out, nil
}

func (s *fakeEntryStore) SetPaymentApproval(_ context.Context, id uuid.UUID, snapshot repository.EntrySnapshot) error {
	entry, ok := s.entries[id]
	if !ok {
		return apperrors.NotFound("entry", id.String())
	}
	now := time.Now().UTC()
	entry.ApprovalPayment = true
	entry.ApprovedPaymentBy = &snapshot
	entry.ApprovalPaymentDate = &now
	return nil
}

func (s *fakeEntryStore) SetReceiveApproval(_ context.Context, id uuid.UUID, snapshot repository.EntrySnapshot) error {
	entry, ok := s.entries[id]
	if !ok {
		return apperrors.NotFound("entry", id.String())
	}
	now := time.Now().UTC()
	entry.ApprovalReceive = true
	entry.ApprovedReceiveBy = &snapshot
	entry.ApprovalReceiveDate = &now
	return nil
}

func (s *fakeEntryStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(s.entries, id)
	return nil
}

func (s *fakeEntryStore) BulkInsert(_ context.Context, entries []*repository.Entry) error {
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		s.entries[e.ID] = e
	}
	s.bulk = append(s.bulk, entries...)
	return nil
}

// recordedEvent captures one Publish call.
type recordedEvent struct {
	EventType    string
	ResourceType string
	ResourceID   string
	ActorID      string
}

type fakePublisher struct {
	events []recordedEvent
}

func (p *fakePublisher) Publish(_ context.Context, eventType, resourceType, resourceID, actorID string, _ map[string]any) {
	p.events = append(p.events, recordedEvent{
		EventType:    eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ActorID:      actorID,
	})
}

func (p *fakePublisher) lastEvent() recordedEvent {
	if len(p.events) == 0 {
		return recordedEvent{}
	}
	return p.events[len(p.events)-1]
}
