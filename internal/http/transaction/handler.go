package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/almsbox/internal/auth"
	"github.com/MrJamesThe3rd/almsbox/internal/http/render"
	"github.com/MrJamesThe3rd/almsbox/internal/money"
	"github.com/MrJamesThe3rd/almsbox/internal/proof"
	"github.com/MrJamesThe3rd/almsbox/internal/transaction"
)

// multipartMemory is how much of an upload is buffered before spilling to disk.
const multipartMemory = 10 << 20

type Handler struct {
	svc           *transaction.Service
	proofs        proof.Store
	maxUploadSize int64
}

func NewHandler(svc *transaction.Service, proofs proof.Store, maxUploadSize int64) *Handler {
	return &Handler{svc: svc, proofs: proofs, maxUploadSize: maxUploadSize}
}

// Routes expects to be mounted behind auth.Require.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.submit)
	r.Get("/", h.listAll)
	r.Get("/pending", h.listPending)
	r.Get("/my", h.listMine)
	r.Get("/{id}", h.get)
	r.Get("/{id}/proof", h.downloadProof)
	r.Put("/{id}/verify", h.verify)
	r.Put("/{id}/complete", h.complete)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			render.Error(w, http.StatusRequestEntityTooLarge, "validation", fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}

		render.Error(w, http.StatusBadRequest, "validation", "failed to parse form: "+err.Error())

		return
	}
	defer r.MultipartForm.RemoveAll()

	campaignID, err := uuid.Parse(r.FormValue("campaign_id"))
	if err != nil {
		render.Error(w, http.StatusBadRequest, "validation", "invalid campaign_id")
		return
	}

	amount, err := money.ParseAmount(r.FormValue("amount"))
	if err != nil {
		render.Error(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	var anonymous bool

	if s := r.FormValue("anonymous"); s != "" {
		if anonymous, err = strconv.ParseBool(s); err != nil {
			render.Error(w, http.StatusBadRequest, "validation", "invalid anonymous flag")
			return
		}
	}

	file, header, err := r.FormFile("proof")
	if err != nil {
		render.Error(w, http.StatusBadRequest, "validation", "proof file is required")
		return
	}
	defer file.Close()

	if err := h.svc.CheckEligible(r.Context(), campaignID); err != nil {
		writeError(w, r, err)
		return
	}

	art, err := h.proofs.Save(r.Context(), header.Filename, file)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to store proof", "error", err)
		render.Error(w, http.StatusServiceUnavailable, "storage_failure", "could not store proof")

		return
	}

	tx, err := h.svc.Submit(r.Context(), transaction.SubmitParams{
		CampaignID:   campaignID,
		DonorID:      actor.Subject,
		Amount:       amount,
		ProofLocator: art.Locator,
		ProofKind:    proof.Kind(r.FormValue("proof_kind")),
		Message:      r.FormValue("message"),
		Anonymous:    anonymous,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, http.StatusCreated, toResponse(tx))
}

type verifyRequest struct {
	Outcome transaction.Outcome `json:"outcome"`
	Comment string              `json:"comment"`
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Error(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	tx, err := h.svc.Verify(r.Context(), identity(r), id, transaction.VerifyParams{
		Outcome: req.Outcome,
		Comment: req.Comment,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponse(tx))
}

type completeRequest struct {
	SettlementID string `json:"settlement_id"`
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Error(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	tx, err := h.svc.Complete(r.Context(), identity(r), id, transaction.CompleteParams{SettlementID: req.SettlementID})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponse(tx))
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	txs, err := h.svc.ListPending(r.Context(), identity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponseList(txs))
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)

	txs, err := h.svc.ListForDonor(r.Context(), actor, actor.Subject)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponseList(txs))
}

// ListForDonor serves GET /donors/{id}/transactions.
func (h *Handler) ListForDonor(w http.ResponseWriter, r *http.Request) {
	donorID, ok := parseID(w, r)
	if !ok {
		return
	}

	txs, err := h.svc.ListForDonor(r.Context(), identity(r), donorID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponseList(txs))
}

// ListForCampaign serves GET /campaigns/{id}/transactions.
func (h *Handler) ListForCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := parseID(w, r)
	if !ok {
		return
	}

	txs, err := h.svc.ListForCampaign(r.Context(), identity(r), campaignID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponseList(txs))
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	filter := transaction.ListFilter{}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(transaction.Status(s))
	}

	txs, err := h.svc.ListAll(r.Context(), identity(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponseList(txs))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	tx, err := h.svc.Get(r.Context(), identity(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponse(tx))
}

func (h *Handler) downloadProof(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	tx, err := h.svc.Get(r.Context(), identity(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rc, err := h.proofs.Open(r.Context(), tx.ProofLocator)
	if err != nil {
		if errors.Is(err, proof.ErrNotFound) {
			render.Error(w, http.StatusNotFound, "not_found", "proof file not found")
			return
		}

		slog.ErrorContext(r.Context(), "failed to open proof", "transaction_id", id, "error", err)
		render.Error(w, http.StatusServiceUnavailable, "storage_failure", "proof store unavailable")

		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", proof.ContentType(tx.ProofKind, tx.ProofLocator))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", proof.Filename(tx.ProofLocator)))

	if _, err := io.Copy(w, rc); err != nil {
		slog.ErrorContext(r.Context(), "failed to stream proof", "transaction_id", id, "error", err)
	}
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Error(w, http.StatusBadRequest, "validation", "invalid id")
		return uuid.Nil, false
	}

	return id, true
}

// writeError maps lifecycle errors onto status codes and error kinds.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, transaction.ErrValidation):
		render.Error(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, transaction.ErrInvalidProof):
		render.Error(w, http.StatusBadRequest, "invalid_proof", err.Error())
	case errors.Is(err, transaction.ErrCampaignNotEligible):
		render.Error(w, http.StatusUnprocessableEntity, "campaign_not_eligible", err.Error())
	case errors.Is(err, transaction.ErrForbidden):
		render.Error(w, http.StatusForbidden, "forbidden", "not allowed to perform this action")
	case errors.Is(err, transaction.ErrNotFound):
		render.Error(w, http.StatusNotFound, "not_found", "transaction not found")
	case errors.Is(err, transaction.ErrInvalidTransition):
		render.Error(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, transaction.ErrStorageFailure):
		slog.ErrorContext(r.Context(), "storage failure", "error", err)
		render.Error(w, http.StatusServiceUnavailable, "storage_failure", "storage temporarily unavailable")
	default:
		slog.ErrorContext(r.Context(), "unhandled error", "error", err)
		render.Error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
