package campaign

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/almsbox/internal/auth"
	"github.com/MrJamesThe3rd/almsbox/internal/campaign"
	"github.com/MrJamesThe3rd/almsbox/internal/http/render"
	"github.com/MrJamesThe3rd/almsbox/internal/money"
	"github.com/MrJamesThe3rd/almsbox/internal/proof"
)

// multipartMemory is how much of an upload is buffered before spilling to disk.
const multipartMemory = 10 << 20

type Handler struct {
	svc           *campaign.Service
	verifier      auth.Verifier
	maxUploadSize int64
}

func NewHandler(svc *campaign.Service, verifier auth.Verifier, maxUploadSize int64) *Handler {
	return &Handler{svc: svc, verifier: verifier, maxUploadSize: maxUploadSize}
}

// Routes serves public reads to anyone and administration behind a token.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Optional(h.verifier))
		r.Get("/", h.listPublic)
		r.Get("/{id}", h.get)
		r.Get("/{id}/image", h.image)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Require(h.verifier))
		r.Use(middleware.AllowContentType("application/json", "multipart/form-data"))
		r.Post("/", h.create)
		r.Get("/all", h.listAll)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

type createCampaignRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Goal        string     `json:"goal"`
	CaseStudyID *uuid.UUID `json:"case_study_id,omitempty"`
	Public      bool       `json:"is_public"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

func (req *createCampaignRequest) fromForm(form url.Values) error {
	req.Title = form.Get("title")
	req.Description = form.Get("description")
	req.Goal = form.Get("goal")

	var err error

	if v, ok := formValue(form, "is_public"); ok {
		if req.Public, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("invalid is_public: %w", err)
		}
	}

	if req.CaseStudyID, err = formUUID(form, "case_study_id"); err != nil {
		return err
	}

	if req.StartDate, err = formTime(form, "start_date"); err != nil {
		return err
	}

	req.EndDate, err = formTime(form, "end_date")

	return err
}

// create accepts a JSON body, or multipart/form-data when an image is attached.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest

	image, done, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	defer done()

	goal, err := money.ParseAmount(req.Goal)
	if err != nil {
		render.Error(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	c, err := h.svc.Create(r.Context(), identity(r), campaign.CreateParams{
		Title:       req.Title,
		Description: req.Description,
		Goal:        goal,
		CaseStudyID: req.CaseStudyID,
		Public:      req.Public,
		Image:       image,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, http.StatusCreated, toResponse(c))
}

func (h *Handler) listPublic(w http.ResponseWriter, r *http.Request) {
	cs, err := h.svc.ListPublic(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponseList(cs))
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	cs, err := h.svc.ListAll(r.Context(), identity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponseList(cs))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	c, err := h.svc.Get(r.Context(), identity(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponse(c))
}

type updateCampaignRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Goal        *string    `json:"goal,omitempty"`
	CaseStudyID *uuid.UUID `json:"case_study_id,omitempty"`
	Public      *bool      `json:"is_public,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

func (req *updateCampaignRequest) fromForm(form url.Values) error {
	if v, ok := formValue(form, "title"); ok {
		req.Title = &v
	}

	if v, ok := formValue(form, "description"); ok {
		req.Description = &v
	}

	if v, ok := formValue(form, "goal"); ok {
		req.Goal = &v
	}

	if v, ok := formValue(form, "is_public"); ok {
		public, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid is_public: %w", err)
		}

		req.Public = &public
	}

	var err error

	if req.CaseStudyID, err = formUUID(form, "case_study_id"); err != nil {
		return err
	}

	req.EndDate, err = formTime(form, "end_date")

	return err
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req updateCampaignRequest

	image, done, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	defer done()

	params := campaign.UpdateParams{
		Title:       req.Title,
		Description: req.Description,
		CaseStudyID: req.CaseStudyID,
		Public:      req.Public,
		Image:       image,
		EndDate:     req.EndDate,
	}

	if req.Goal != nil {
		goal, err := money.ParseAmount(*req.Goal)
		if err != nil {
			render.Error(w, http.StatusBadRequest, "validation", err.Error())
			return
		}

		params.Goal = &goal
	}

	c, err := h.svc.Update(r.Context(), identity(r), id, params)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponse(c))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), identity(r), id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) image(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	locator, rc, err := h.svc.OpenImage(r.Context(), identity(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", proof.ContentType(proof.KindImage, locator))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", proof.Filename(locator)))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		slog.ErrorContext(r.Context(), "streaming campaign image", "error", err, "campaign_id", id)
	}
}

type formDecoder interface {
	fromForm(form url.Values) error
}

// decode fills dst from JSON or from multipart form fields. A multipart
// request may carry an "image" file; done releases it and the parsed form.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst formDecoder) (*campaign.Image, func(), bool) {
	noop := func() {}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			render.Error(w, http.StatusBadRequest, "validation", err.Error())
			return nil, noop, false
		}

		return nil, noop, true
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			render.Error(w, http.StatusRequestEntityTooLarge, "validation", fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return nil, noop, false
		}

		render.Error(w, http.StatusBadRequest, "validation", "failed to parse form: "+err.Error())

		return nil, noop, false
	}

	cleanup := func() { _ = r.MultipartForm.RemoveAll() }

	if err := dst.fromForm(r.MultipartForm.Value); err != nil {
		cleanup()
		render.Error(w, http.StatusBadRequest, "validation", err.Error())

		return nil, noop, false
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, cleanup, true
	}

	if err != nil {
		cleanup()
		render.Error(w, http.StatusBadRequest, "validation", "invalid image upload")

		return nil, noop, false
	}

	return &campaign.Image{Filename: header.Filename, Body: file}, func() {
		file.Close()
		cleanup()
	}, true
}

func formValue(form url.Values, key string) (string, bool) {
	v, ok := form[key]
	if !ok || len(v) == 0 {
		return "", false
	}

	return v[0], true
}

func formUUID(form url.Values, key string) (*uuid.UUID, error) {
	v, ok := formValue(form, key)
	if !ok || v == "" {
		return nil, nil
	}

	id, err := uuid.Parse(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", key)
	}

	return &id, nil
}

func formTime(form url.Values, key string) (*time.Time, error) {
	v, ok := formValue(form, key)
	if !ok || v == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: want RFC 3339", key)
	}

	return &t, nil
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

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, campaign.ErrValidation):
		render.Error(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, campaign.ErrForbidden):
		render.Error(w, http.StatusForbidden, "forbidden", "not allowed to perform this action")
	case errors.Is(err, campaign.ErrNotFound):
		render.Error(w, http.StatusNotFound, "not_found", "campaign not found")
	case errors.Is(err, campaign.ErrNoImage), errors.Is(err, proof.ErrNotFound):
		render.Error(w, http.StatusNotFound, "not_found", "campaign image not found")
	case errors.Is(err, proof.ErrUnavailable):
		slog.ErrorContext(r.Context(), "image store unavailable", "error", err)
		render.Error(w, http.StatusServiceUnavailable, "storage_failure", "storage temporarily unavailable")
	case errors.Is(err, campaign.ErrHasTransactions):
		render.Error(w, http.StatusConflict, "has_transactions", "campaign has transactions and cannot be deleted")
	default:
		slog.ErrorContext(r.Context(), "unhandled error", "error", err)
		render.Error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
