package export

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/almsbox/internal/auth"
	"github.com/MrJamesThe3rd/almsbox/internal/export"
	"github.com/MrJamesThe3rd/almsbox/internal/http/render"
	"github.com/MrJamesThe3rd/almsbox/internal/transaction"
)

type Handler struct {
	svc *export.Service
}

func NewHandler(svc *export.Service) *Handler {
	return &Handler{svc: svc}
}

// Download streams the campaign archive. Expects an {id} URL param and auth.Require upstream.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Error(w, http.StatusBadRequest, "validation", "invalid id")
		return
	}

	actor, _ := auth.FromContext(r.Context())

	items, err := h.svc.Items(r.Context(), actor, campaignID)
	if err != nil {
		if errors.Is(err, transaction.ErrForbidden) {
			render.Error(w, http.StatusForbidden, "forbidden", "not allowed to perform this action")
			return
		}

		slog.ErrorContext(r.Context(), "listing export items", "error", err, "campaign_id", campaignID)
		render.Error(w, http.StatusInternalServerError, "internal", "internal error")

		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"campaign_%s_%s.zip\"", campaignID, time.Now().Format("20060102")))

	// Headers are gone once the archive starts, so a failure can only be logged.
	if err := h.svc.WriteArchive(r.Context(), w, items); err != nil {
		slog.ErrorContext(r.Context(), "failed to write export archive", "error", err, "campaign_id", campaignID)
	}
}
