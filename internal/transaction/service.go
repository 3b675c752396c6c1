package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/almsbox/internal/auth"
	"github.com/MrJamesThe3rd/almsbox/internal/campaign"
	"github.com/MrJamesThe3rd/almsbox/internal/encoding"
	"github.com/MrJamesThe3rd/almsbox/internal/event"
	"github.com/MrJamesThe3rd/almsbox/internal/proof"
	"github.com/MrJamesThe3rd/almsbox/internal/validate"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=transaction
type Repository interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListTransactions(ctx context.Context, filter ListFilter) ([]*Transaction, error)

	// BeginTransition opens an exclusive region over one transaction row.
	// It returns ErrNotFound when the row does not exist.
	BeginTransition(ctx context.Context, id uuid.UUID) (TransitionTx, error)
}

// TransitionTx holds the lock on a single transaction until Commit or
// Rollback. Nothing written through it is visible before Commit.
type TransitionTx interface {
	// Transaction is the locked row as read when the region opened.
	Transaction() *Transaction
	// UpdateState persists the mutable lifecycle fields of tx, provided the
	// stored row still has status from and has not been credited. Otherwise it
	// returns ErrConcurrentUpdate.
	UpdateState(ctx context.Context, tx *Transaction, from Status) error
	// Credit adds amount to the campaign's accumulated total.
	Credit(ctx context.Context, campaignID uuid.UUID, amount int64) error
	Commit() error
	Rollback() error
}

type CampaignReader interface {
	GetCampaign(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error)
}

type ProofResolver interface {
	Stat(ctx context.Context, locator string) (proof.Artifact, error)
}

// Observer receives a call for every committed or refused lifecycle change.
type Observer interface {
	TransitionApplied(from, to Status)
	Credited(amount int64)
	TransitionRefused(op string)
}

type ListFilter struct {
	Status     *Status
	CampaignID *uuid.UUID
	DonorID    *uuid.UUID
}

type Service struct {
	repo      Repository
	campaigns CampaignReader
	proofs    ProofResolver
	publisher event.Publisher
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithPublisher(p event.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, campaigns CampaignReader, proofs ProofResolver, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		campaigns: campaigns,
		proofs:    proofs,
		publisher: event.NoOpPublisher{},
		observer:  nopObserver{},
		logger:    slog.Default(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type SubmitParams struct {
	CampaignID   uuid.UUID
	DonorID      uuid.UUID
	Amount       int64      `validate:"gt=0"`
	ProofLocator string     `validate:"required"`
	ProofKind    proof.Kind `validate:"omitempty,oneof=image pdf doc"`
	Message      string     `validate:"max=2000"`
	Anonymous    bool
}

// Submit records a pending contribution against a public campaign. The ledger
// is not touched.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*Transaction, error) {
	if params.CampaignID == uuid.Nil || params.DonorID == uuid.Nil {
		return nil, fmt.Errorf("%w: campaign and donor are required", ErrValidation)
	}

	if err := s.checkEligible(ctx, params.CampaignID); err != nil {
		return nil, err
	}

	params.Message = encoding.NormalizeText(params.Message)

	if err := validate.Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	kind, err := s.resolveProof(ctx, params.ProofLocator, params.ProofKind)
	if err != nil {
		return nil, err
	}

	tx := &Transaction{
		CampaignID:   params.CampaignID,
		DonorID:      params.DonorID,
		Amount:       params.Amount,
		Message:      params.Message,
		Anonymous:    params.Anonymous,
		ProofLocator: params.ProofLocator,
		ProofKind:    kind,
		Status:       StatusPending,
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("creating transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "transaction submitted",
		"transaction_id", tx.ID, "campaign_id", tx.CampaignID, "amount", tx.Amount)
	s.publish(ctx, event.TransactionSubmitted, StatusPending, tx)

	return tx, nil
}

// CheckEligible reports whether a campaign currently accepts submissions.
// Submit repeats the check; callers use it to refuse before storing a proof.
func (s *Service) CheckEligible(ctx context.Context, campaignID uuid.UUID) error {
	return s.checkEligible(ctx, campaignID)
}

func (s *Service) checkEligible(ctx context.Context, campaignID uuid.UUID) error {
	c, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrCampaignNotEligible, err)
		}

		return fmt.Errorf("%w: loading campaign: %w", ErrStorageFailure, err)
	}

	if !c.Public {
		return fmt.Errorf("%w: campaign %s is private", ErrCampaignNotEligible, c.ID)
	}

	return nil
}

// resolveProof confirms the locator points at a stored artifact and returns
// the kind derived from its stored media type.
func (s *Service) resolveProof(ctx context.Context, locator string, declared proof.Kind) (proof.Kind, error) {
	art, err := s.proofs.Stat(ctx, locator)
	if err != nil {
		if errors.Is(err, proof.ErrNotFound) {
			return "", fmt.Errorf("%w: %w", ErrInvalidProof, err)
		}

		return "", fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	kind, err := proof.KindFromMediaType(art.MediaType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}

	if declared != "" && declared != kind {
		return "", fmt.Errorf("%w: declared %s but stored file is %s", ErrInvalidProof, declared, kind)
	}

	return kind, nil
}

type VerifyParams struct {
	Outcome Outcome `validate:"required,oneof=verified rejected"`
	Comment string  `validate:"max=2000"`
}

// Verify records an administrator's decision on a pending transaction. A
// verified outcome completes and credits the transaction in the same region.
func (s *Service) Verify(ctx context.Context, actor auth.Identity, id uuid.UUID, params VerifyParams) (*Transaction, error) {
	if !actor.IsAdmin() {
		s.observer.TransitionRefused("verify")
		return nil, ErrForbidden
	}

	params.Comment = encoding.NormalizeText(params.Comment)

	if err := validate.Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	target := StatusVerified
	if params.Outcome == OutcomeRejected {
		target = StatusRejected
	}

	return s.transition(ctx, "verify", id, target, func(ctx context.Context, region TransitionTx, tx *Transaction) ([]step, error) {
		if err := checkTransition(tx, target); err != nil {
			return nil, err
		}

		now := s.now()
		from := tx.Status
		tx.Status = target
		tx.VerifiedBy = &actor.Subject
		tx.VerifiedAt = &now
		tx.VerificationComment = params.Comment

		if err := region.UpdateState(ctx, tx, from); err != nil {
			return nil, err
		}

		steps := []step{{from: from, to: target}}
		if target == StatusRejected {
			return steps, nil
		}

		if err := s.settle(ctx, region, tx, nil); err != nil {
			return nil, err
		}

		return append(steps, step{from: StatusVerified, to: StatusCompleted}), nil
	})
}

type CompleteParams struct {
	SettlementID string `validate:"required,max=255"`
}

// Complete settles a verified transaction that has not been credited yet.
func (s *Service) Complete(ctx context.Context, actor auth.Identity, id uuid.UUID, params CompleteParams) (*Transaction, error) {
	if !actor.IsAdmin() {
		s.observer.TransitionRefused("complete")
		return nil, ErrForbidden
	}

	params.SettlementID = encoding.NormalizeText(params.SettlementID)

	if err := validate.Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return s.transition(ctx, "complete", id, StatusCompleted, func(ctx context.Context, region TransitionTx, tx *Transaction) ([]step, error) {
		if err := s.settle(ctx, region, tx, &params.SettlementID); err != nil {
			return nil, err
		}

		return []step{{from: StatusVerified, to: StatusCompleted}}, nil
	})
}

// settle moves a verified transaction to completed and credits its campaign.
// It must run inside the transaction's region.
func (s *Service) settle(ctx context.Context, region TransitionTx, tx *Transaction, settlementID *string) error {
	if err := checkTransition(tx, StatusCompleted); err != nil {
		return err
	}

	now := s.now()
	tx.Status = StatusCompleted
	tx.Credited = true
	tx.CompletedAt = &now

	if settlementID != nil {
		tx.SettlementID = settlementID
	}

	if err := region.UpdateState(ctx, tx, StatusVerified); err != nil {
		return err
	}

	if err := region.Credit(ctx, tx.CampaignID, tx.Amount); err != nil {
		return fmt.Errorf("crediting campaign: %w", err)
	}

	return nil
}

type step struct {
	from, to Status
}

type applyFunc func(ctx context.Context, region TransitionTx, tx *Transaction) ([]step, error)

// transition runs apply inside the exclusive region for id and reports the
// applied steps only after the region commits.
func (s *Service) transition(ctx context.Context, op string, id uuid.UUID, to Status, apply applyFunc) (*Transaction, error) {
	region, err := s.repo.BeginTransition(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: opening %s: %w", ErrStorageFailure, op, err)
	}
	defer region.Rollback()

	tx := region.Transaction()

	steps, err := apply(ctx, region, tx)
	if err != nil {
		return nil, s.refused(ctx, op, id, to, err)
	}

	if err := region.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing %s: %w", ErrStorageFailure, op, err)
	}

	for _, st := range steps {
		s.observer.TransitionApplied(st.from, st.to)
		s.logger.InfoContext(ctx, "transaction transitioned",
			"op", op, "transaction_id", tx.ID, "campaign_id", tx.CampaignID,
			"from", st.from, "to", st.to)
		s.publish(ctx, eventFor(st.to), st.to, tx)

		if st.to == StatusCompleted {
			s.observer.Credited(tx.Amount)
		}
	}

	return tx, nil
}

// refused normalises a failed apply. A lost compare-and-set is reported as an
// invalid transition from the state that won.
func (s *Service) refused(ctx context.Context, op string, id uuid.UUID, to Status, err error) error {
	if errors.Is(err, ErrConcurrentUpdate) {
		current, getErr := s.repo.GetTransaction(ctx, id)
		if getErr != nil {
			return fmt.Errorf("%w: reloading after conflict: %w", ErrStorageFailure, getErr)
		}

		err = &TransitionError{ID: id, From: current.Status, To: to, Credited: current.Credited}
	}

	if errors.Is(err, ErrInvalidTransition) {
		s.observer.TransitionRefused(op)
		s.logger.WarnContext(ctx, "transition refused", "op", op, "transaction_id", id, "error", err)

		return err
	}

	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}

func eventFor(to Status) event.Type {
	switch to {
	case StatusVerified:
		return event.TransactionVerified
	case StatusRejected:
		return event.TransactionRejected
	case StatusCompleted:
		return event.TransactionCompleted
	}

	return event.TransactionSubmitted
}

func (s *Service) publish(ctx context.Context, typ event.Type, status Status, tx *Transaction) {
	e := event.Event{
		ID:            uuid.New(),
		Type:          typ,
		TransactionID: tx.ID,
		CampaignID:    tx.CampaignID,
		Amount:        tx.Amount,
		Status:        string(status),
		OccurredAt:    s.now(),
	}

	if !tx.Anonymous {
		e.DonorID = &tx.DonorID
	}

	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "publishing event", "type", typ, "transaction_id", tx.ID, "error", err)
	}
}

type nopObserver struct{}

func (nopObserver) TransitionApplied(Status, Status) {}
func (nopObserver) Credited(int64)                   {}
func (nopObserver) TransitionRefused(string)         {}
