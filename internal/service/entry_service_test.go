package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procureflow/be-approvals/internal/apperrors"
	"github.com/procureflow/be-approvals/internal/excel"
	"github.com/procureflow/be-approvals/internal/repository"
	"github.com/procureflow/be-approvals/internal/service"
)

func TestEntryServiceCreate(t *testing.T) {
	ctx := context.Background()
	actor := service.Actor{ID: uuid.New(), Username: "carol", Role: "user"}

	newService := func(entries *fakeEntryStore) *service.EntryService {
		return service.NewEntryService(entries, newFakeUserStore(), service.DefaultPermissions(), &fakePublisher{}, time.UTC, zerolog.Nop())
	}

	t.Run("derives totals at write time", func(t *testing.T) {
		entries := newFakeEntryStore()
		svc := newService(entries)

		entry, err := svc.Create(ctx, actor, &service.CreateEntryRequest{
			Name:      "Printer paper",
			Unit:      "box",
			Amount:    4,
			UnitPrice: 25,
			VAT:       10,
		})
		require.NoError(t, err)

		assert.Equal(t, 100.0, entry.TotalPrice)
		assert.InDelta(t, 110.0, entry.TotalPriceAfterVAT, 1e-9)
		assert.Equal(t, actor.ID, entry.SubmittedBy)
		assert.False(t, entry.ApprovalPayment)
		assert.False(t, entry.ApprovalReceive)
		assert.False(t, entry.EntryDate.IsZero())
	})

	t.Run("zero vat leaves the total unchanged", func(t *testing.T) {
		svc := newService(newFakeEntryStore())

		entry, err := svc.Create(ctx, actor, &service.CreateEntryRequest{
			Name: "Toner", Amount: 2, UnitPrice: 50,
		})
		require.NoError(t, err)
		assert.Equal(t, 100.0, entry.TotalPriceAfterVAT)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		svc := newService(newFakeEntryStore())

		cases := []*service.CreateEntryRequest{
			{Name: "", Amount: 1, UnitPrice: 1},
			{Name: "Toner", Amount: 0, UnitPrice: 1},
			{Name: "Toner", Amount: 1, UnitPrice: -1},
			{Name: "Toner", Amount: 1, UnitPrice: 1, VAT: 150},
			{Name: "Toner", Amount: 1, UnitPrice: 1, VAT: -5},
		}
		for _, req := range cases {
			_, err := svc.Create(ctx, actor, req)
			assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))
		}
	})
}

func TestEntryServiceApprovals(t *testing.T) {
	ctx := context.Background()

	approver := &repository.User{ID: uuid.New(), Username: "alice", Role: service.RoleApprover, Department: "Finance"}
	other := &repository.User{ID: uuid.New(), Username: "bob", Role: service.RoleApprover, Department: "Warehouse"}
	submitter := service.Actor{ID: uuid.New(), Username: "carol", Role: "user"}

	seed := func(entries *fakeEntryStore) *repository.Entry {
		entry := &repository.Entry{Name: "Printer paper", Amount: 1, UnitPrice: 10, TotalPrice: 10, TotalPriceAfterVAT: 10, EntryDate: time.Now().UTC()}
		require.NoError(t, entries.Create(ctx, entry))
		return entry
	}

	newService := func(entries *fakeEntryStore, events *fakePublisher) *service.EntryService {
		return service.NewEntryService(entries, newFakeUserStore(approver, other), service.DefaultPermissions(), events, time.UTC, zerolog.Nop())
	}

	t.Run("payment approval snapshots the approver", func(t *testing.T) {
		entries := newFakeEntryStore()
		events := &fakePublisher{}
		svc := newService(entries, events)
		entry := seed(entries)

		require.NoError(t, svc.ApprovePayment(ctx, approverActor(approver), entry.ID))

		stored, err := entries.GetByID(ctx, entry.ID)
		require.NoError(t, err)
		assert.True(t, stored.ApprovalPayment)
		require.NotNil(t, stored.ApprovedPaymentBy)
		assert.Equal(t, "alice", stored.ApprovedPaymentBy.Username)
		assert.Equal(t, "Finance", stored.ApprovedPaymentBy.Department)
		assert.NotNil(t, stored.ApprovalPaymentDate)
		assert.False(t, stored.ApprovalReceive)
		assert.Equal(t, "entry_payment_approved", events.lastEvent().EventType)
	})

	t.Run("receive approval is independent of payment", func(t *testing.T) {
		entries := newFakeEntryStore()
		svc := newService(entries, &fakePublisher{})
		entry := seed(entries)

		require.NoError(t, svc.ApproveReceive(ctx, approverActor(approver), entry.ID))

		stored, err := entries.GetByID(ctx, entry.ID)
		require.NoError(t, err)
		assert.True(t, stored.ApprovalReceive)
		assert.False(t, stored.ApprovalPayment)
		assert.Nil(t, stored.ApprovedPaymentBy)
	})

	t.Run("repeat approval overwrites the snapshot", func(t *testing.T) {
		entries := newFakeEntryStore()
		svc := newService(entries, &fakePublisher{})
		entry := seed(entries)

		require.NoError(t, svc.ApprovePayment(ctx, approverActor(approver), entry.ID))
		require.NoError(t, svc.ApprovePayment(ctx, approverActor(other), entry.ID))

		stored, err := entries.GetByID(ctx, entry.ID)
		require.NoError(t, err)
		assert.True(t, stored.ApprovalPayment)
		assert.Equal(t, "bob", stored.ApprovedPaymentBy.Username)
	})

	t.Run("rejects roles without the approve capability", func(t *testing.T) {
		entries := newFakeEntryStore()
		svc := newService(entries, &fakePublisher{})
		entry := seed(entries)

		err := svc.ApprovePayment(ctx, submitter, entry.ID)
		assert.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))
	})

	t.Run("returns not found for an unknown entry", func(t *testing.T) {
		svc := newService(newFakeEntryStore(), &fakePublisher{})

		err := svc.ApproveReceive(ctx, approverActor(approver), uuid.New())
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})
}

func TestEntryServiceDelete(t *testing.T) {
	ctx := context.Background()
	approver := &repository.User{ID: uuid.New(), Username: "alice", Role: service.RoleApprover}

	entries := newFakeEntryStore()
	svc := service.NewEntryService(entries, newFakeUserStore(approver), service.DefaultPermissions(), &fakePublisher{}, time.UTC, zerolog.Nop())

	entry := &repository.Entry{Name: "Printer paper", Amount: 1, UnitPrice: 10}
	require.NoError(t, entries.Create(ctx, entry))

	t.Run("rejects roles without the delete capability", func(t *testing.T) {
		err := svc.Delete(ctx, service.Actor{ID: uuid.New(), Role: "user"}, entry.ID)
		assert.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))
	})

	t.Run("deletes the entry", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, approverActor(approver), entry.ID))

		_, err := entries.GetByID(ctx, entry.ID)
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})

	t.Run("deleting an unknown id succeeds as a no-op", func(t *testing.T) {
		assert.NoError(t, svc.Delete(ctx, approverActor(approver), uuid.New()))
	})
}

func TestEntryServiceExportImport(t *testing.T) {
	ctx := context.Background()

	submitter := &repository.User{ID: uuid.New(), Username: "carol", Role: "user", Department: "IT"}
	approver := &repository.User{ID: uuid.New(), Username: "alice", Role: service.RoleApprover, Department: "Finance"}

	approvedAt := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)
	exported := []*repository.Entry{
		{
			ID:                  uuid.New(),
			Name:                "Printer paper",
			Description:         "A4 80gsm",
			Unit:                "box",
			Amount:              4,
			UnitPrice:           25,
			TotalPrice:          100,
			VAT:                 10,
			TotalPriceAfterVAT:  110,
			DeliveryDate:        "2026-09-01",
			EntryDate:           time.Date(2026, 8, 18, 14, 0, 0, 0, time.UTC),
			SubmittedBy:         submitter.ID,
			SubmitterUsername:   submitter.Username,
			SubmitterDepartment: submitter.Department,
			ApprovalPayment:     true,
			ApprovedPaymentBy:   &repository.EntrySnapshot{Username: "alice", Department: "Finance"},
			ApprovalPaymentDate: &approvedAt,
		},
		{
			ID:                  uuid.New(),
			Name:                "Toner",
			Amount:              2,
			UnitPrice:           50,
			TotalPrice:          100,
			TotalPriceAfterVAT:  100,
			EntryDate:           time.Date(2026, 8, 19, 8, 0, 0, 0, time.UTC),
			SubmittedBy:         uuid.New(),
			SubmitterUsername:   "ghost",
			SubmitterDepartment: "Nowhere",
		},
	}

	f, err := excel.BuildWorkbook(exported, time.UTC)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "entries.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	entries := newFakeEntryStore()
	svc := service.NewEntryService(entries, newFakeUserStore(submitter, approver), service.DefaultPermissions(), &fakePublisher{}, time.UTC, zerolog.Nop())

	t.Run("imports rows and skips unresolvable submitters", func(t *testing.T) {
		result, err := svc.Import(ctx, path)
		require.NoError(t, err)

		assert.Equal(t, 1, result.Imported)
		assert.Equal(t, 1, result.Skipped)

		require.Len(t, entries.bulk, 1)
		imported := entries.bulk[0]
		assert.Equal(t, "Printer paper", imported.Name)
		assert.Equal(t, submitter.ID, imported.SubmittedBy)
		assert.Equal(t, 110.0, imported.TotalPriceAfterVAT)
		assert.True(t, imported.ApprovalPayment)
		require.NotNil(t, imported.ApprovedPaymentBy)
		assert.Equal(t, "alice", imported.ApprovedPaymentBy.Username)
		require.NotNil(t, imported.ApprovalPaymentDate)
		assert.Equal(t, approvedAt, imported.ApprovalPaymentDate.UTC())
		assert.False(t, imported.ApprovalReceive)
	})

	t.Run("export renders every stored entry", func(t *testing.T) {
		out, err := svc.Export(ctx)
		require.NoError(t, err)
		defer out.Close()

		rows, err := out.GetRows(excel.SheetName)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "Name", rows[0][0])
		assert.Equal(t, "Printer paper", rows[1][0])
	})

	t.Run("rejects a file that is not a workbook", func(t *testing.T) {
		_, err := svc.Import(ctx, filepath.Join(t.TempDir(), "missing.xlsx"))
		assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))
	})
}
