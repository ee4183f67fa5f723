package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/procureflow/be-approvals/internal/apperrors"
	"github.com/procureflow/be-approvals/internal/middleware"
	"github.com/procureflow/be-approvals/internal/repository"
	"github.com/procureflow/be-approvals/internal/service"
)

// HTTPHandler handles HTTP requests.
type HTTPHandler struct {
	documents *service.DocumentService
	approvals *service.ApprovalService
	entries   *service.EntryService
	log       zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(documents *service.DocumentService, approvals *service.ApprovalService, entries *service.EntryService, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		documents: documents,
		approvals: approvals,
		entries:   entries,
		log:       log,
	}
}

// ── documents ────────────────────────────────────────────────────────────────

// SubmitDocument handles POST /api/v1/documents.
func (h *HTTPHandler) SubmitDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req service.SubmitDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	doc, err := h.documents.Submit(r.Context(), actor, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, doc)
}

// ListPendingDocuments handles GET /api/v1/documents/pending: one combined
// array across every document kind.
func (h *HTTPHandler) ListPendingDocuments(w http.ResponseWriter, r *http.Request) {
	h.listDocuments(w, r, h.documents.ListPending)
}

// ListApprovedDocuments handles GET /api/v1/documents/approved.
func (h *HTTPHandler) ListApprovedDocuments(w http.ResponseWriter, r *http.Request) {
	h.listDocuments(w, r, h.documents.ListApproved)
}

func (h *HTTPHandler) listDocuments(w http.ResponseWriter, r *http.Request, list func(ctx context.Context) ([]*repository.Document, error)) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	docs, err := list(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, docs)
}

// ListApprovers handles GET /api/v1/approvers: the directory submitters pick
// approvers from.
func (h *HTTPHandler) ListApprovers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	approvers, err := h.documents.ListApprovers(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, approvers)
}

// ApproveDocument handles POST /api/v1/documents/approve.
func (h *HTTPHandler) ApproveDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	docID, err := uuid.Parse(req.ID)
	if err != nil {
		h.writeError(w, apperrors.InvalidInput("id", "invalid document id"))
		return
	}

	doc, err := h.approvals.Approve(r.Context(), actor, docID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/v1/documents?id=.
func (h *HTTPHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	docID, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, apperrors.InvalidInput("id", "invalid document id"))
		return
	}

	if err := h.approvals.Delete(r.Context(), actor, docID); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ── entries ──────────────────────────────────────────────────────────────────

// ListEntries handles GET /api/v1/entries.
func (h *HTTPHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	var filter repository.EntryFilter
	q := r.URL.Query()
	if v := q.Get("payment_approved"); v != "" {
		b := v == "true"
		filter.PaymentApproved = &b
	}
	if v := q.Get("receive_approved"); v != "" {
		b := v == "true"
		filter.ReceiveApproved = &b
	}
	if v := q.Get("submitted_by"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			h.writeError(w, apperrors.InvalidInput("submitted_by", "invalid user id"))
			return
		}
		filter.SubmittedBy = &id
	}

	entries, err := h.entries.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, entries)
}

// CreateEntry handles POST /api/v1/entries.
func (h *HTTPHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req service.CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	entry, err := h.entries.Create(r.Context(), actor, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, entry)
}

// ApproveEntryPayment handles POST /api/v1/entries/approve-payment.
func (h *HTTPHandler) ApproveEntryPayment(w http.ResponseWriter, r *http.Request) {
	h.approveEntry(w, r, h.entries.ApprovePayment, "payment approved")
}

// ApproveEntryReceive handles POST /api/v1/entries/approve-receive.
func (h *HTTPHandler) ApproveEntryReceive(w http.ResponseWriter, r *http.Request) {
	h.approveEntry(w, r, h.entries.ApproveReceive, "goods receipt confirmed")
}

func (h *HTTPHandler) approveEntry(w http.ResponseWriter, r *http.Request, approve func(context.Context, service.Actor, uuid.UUID) error, message string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	entryID, err := uuid.Parse(req.ID)
	if err != nil {
		h.writeError(w, apperrors.InvalidInput("id", "invalid entry id"))
		return
	}

	if err := approve(r.Context(), actor, entryID); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

// DeleteEntry handles DELETE /api/v1/entries?id=.
func (h *HTTPHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	entryID, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, apperrors.InvalidInput("id", "invalid entry id"))
		return
	}

	if err := h.entries.Delete(r.Context(), actor, entryID); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"message": "entry deleted"})
}

// ExportEntries handles GET /api/v1/entries/export, streaming an xlsx
// attachment.
func (h *HTTPHandler) ExportEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	f, err := h.entries.Export(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="entries.xlsx"`)
	if err := f.Write(w); err != nil {
		h.log.Error().Err(err).Msg("Failed to stream spreadsheet")
	}
}

// ImportEntries handles POST /api/v1/entries/import. The uploaded workbook is
// spooled to a temp file that is removed on every exit path.
func (h *HTTPHandler) ImportEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if _, ok := h.actor(w, r); !ok {
		return
	}

	file, _, err := r.FormFile("excelFile")
	if err != nil {
		h.writeError(w, apperrors.InvalidInput("excelFile", "no file uploaded"))
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "entries-import-*.xlsx")
	if err != nil {
		h.writeError(w, apperrors.Wrap(err, apperrors.CodeInternal, "failed to create temp file"))
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		h.writeError(w, apperrors.Wrap(err, apperrors.CodeInternal, "failed to store upload"))
		return
	}
	if err := tmp.Close(); err != nil {
		h.writeError(w, apperrors.Wrap(err, apperrors.CodeInternal, "failed to store upload"))
		return
	}

	result, err := h.entries.Import(r.Context(), tmp.Name())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (h *HTTPHandler) actor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		h.writeError(w, apperrors.Unauthorized("missing identity"))
		return service.Actor{}, false
	}
	return actor, true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	h.writeJSON(w, status, map[string]string{"error": apperrors.MessageOf(err)})
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
}
