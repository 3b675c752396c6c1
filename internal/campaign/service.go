package campaign

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/almsbox/internal/auth"
	"github.com/MrJamesThe3rd/almsbox/internal/encoding"
	"github.com/MrJamesThe3rd/almsbox/internal/proof"
	"github.com/MrJamesThe3rd/almsbox/internal/validate"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=campaign
type Repository interface {
	CreateCampaign(ctx context.Context, c *Campaign) error
	GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error)
	ListCampaigns(ctx context.Context, filter ListFilter) ([]*Campaign, error)
	// UpdateCampaign writes every field except AccumulatedAmount.
	UpdateCampaign(ctx context.Context, c *Campaign) error
	DeleteCampaign(ctx context.Context, id uuid.UUID) error
}

type ListFilter struct {
	PublicOnly bool
}

type Service struct {
	repo   Repository
	images proof.Store
	now    func() time.Time
}

// NewService builds the campaign service. Campaign pictures share the proof
// store's backend.
func NewService(repo Repository, images proof.Store) *Service {
	return &Service{repo: repo, images: images, now: time.Now}
}

type CreateParams struct {
	Title       string `validate:"required,max=200"`
	Description string `validate:"required"`
	Goal        int64  `validate:"gt=0"`
	CaseStudyID *uuid.UUID
	Public      bool
	Image       *Image `validate:"-"`
	StartDate   *time.Time
	EndDate     *time.Time
}

type UpdateParams struct {
	Title       *string `validate:"omitempty,min=1,max=200"`
	Description *string `validate:"omitempty,min=1"`
	Goal        *int64  `validate:"omitempty,gt=0"`
	CaseStudyID *uuid.UUID
	Public      *bool
	Image       *Image `validate:"-"`
	EndDate     *time.Time
}

func (s *Service) Create(ctx context.Context, actor auth.Identity, params CreateParams) (*Campaign, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	params.Title = encoding.NormalizeText(params.Title)
	params.Description = encoding.NormalizeText(params.Description)

	if err := validate.Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	start := s.now()
	if params.StartDate != nil {
		start = *params.StartDate
	}

	if params.EndDate != nil && params.EndDate.Before(start) {
		return nil, fmt.Errorf("%w: end date before start date", ErrValidation)
	}

	var imageLocator string

	if params.Image != nil {
		locator, err := s.saveImage(ctx, params.Image)
		if err != nil {
			return nil, err
		}

		imageLocator = locator
	}

	c := &Campaign{
		Title:        params.Title,
		Description:  params.Description,
		Goal:         params.Goal,
		CaseStudyID:  params.CaseStudyID,
		Public:       params.Public,
		ImageLocator: imageLocator,
		CreatedBy:    actor.Subject,
		StartDate:    start,
		EndDate:      params.EndDate,
	}
	if err := s.repo.CreateCampaign(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}

// Get returns a campaign. Private campaigns are visible to administrators only.
func (s *Service) Get(ctx context.Context, viewer auth.Identity, id uuid.UUID) (*Campaign, error) {
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}

	if !c.Public && !viewer.IsAdmin() {
		return nil, ErrForbidden
	}

	return c, nil
}

func (s *Service) ListPublic(ctx context.Context) ([]*Campaign, error) {
	return s.repo.ListCampaigns(ctx, ListFilter{PublicOnly: true})
}

func (s *Service) ListAll(ctx context.Context, actor auth.Identity) ([]*Campaign, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	return s.repo.ListCampaigns(ctx, ListFilter{})
}

func (s *Service) Update(ctx context.Context, actor auth.Identity, id uuid.UUID, params UpdateParams) (*Campaign, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	if params.Title != nil {
		params.Title = new(encoding.NormalizeText(*params.Title))
	}

	if params.Description != nil {
		params.Description = new(encoding.NormalizeText(*params.Description))
	}

	if err := validate.Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Title != nil {
		c.Title = *params.Title
	}

	if params.Description != nil {
		c.Description = *params.Description
	}

	if params.Goal != nil {
		c.Goal = *params.Goal
	}

	if params.CaseStudyID != nil {
		c.CaseStudyID = params.CaseStudyID
	}

	if params.Public != nil {
		c.Public = *params.Public
	}

	if params.EndDate != nil {
		if params.EndDate.Before(c.StartDate) {
			return nil, fmt.Errorf("%w: end date before start date", ErrValidation)
		}

		c.EndDate = params.EndDate
	}

	if params.Image != nil {
		locator, err := s.saveImage(ctx, params.Image)
		if err != nil {
			return nil, err
		}

		c.ImageLocator = locator
	}

	if err := s.repo.UpdateCampaign(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}

// Delete removes a campaign that no transaction references.
func (s *Service) Delete(ctx context.Context, actor auth.Identity, id uuid.UUID) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}

	return s.repo.DeleteCampaign(ctx, id)
}

// OpenImage returns the campaign's picture to anyone allowed to see the campaign.
func (s *Service) OpenImage(ctx context.Context, viewer auth.Identity, id uuid.UUID) (string, io.ReadCloser, error) {
	c, err := s.Get(ctx, viewer, id)
	if err != nil {
		return "", nil, err
	}

	if c.ImageLocator == "" {
		return "", nil, ErrNoImage
	}

	rc, err := s.images.Open(ctx, c.ImageLocator)
	if err != nil {
		return "", nil, fmt.Errorf("opening campaign image: %w", err)
	}

	return c.ImageLocator, rc, nil
}

// saveImage sniffs the upload before storing it, so non-image bytes never
// reach the store.
func (s *Service) saveImage(ctx context.Context, img *Image) (string, error) {
	mediaType, body, err := proof.Detect(img.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if kind, err := proof.KindFromMediaType(mediaType); err != nil || kind != proof.KindImage {
		return "", fmt.Errorf("%w: image has media type %q", ErrValidation, mediaType)
	}

	art, err := s.images.Save(ctx, img.Filename, body)
	if err != nil {
		return "", fmt.Errorf("saving campaign image: %w", err)
	}

	return art.Locator, nil
}
