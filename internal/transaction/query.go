package transaction

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/almsbox/internal/auth"
)

// ListPending returns every pending transaction, oldest first.
func (s *Service) ListPending(ctx context.Context, actor auth.Identity) ([]*Transaction, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	return s.list(ctx, ListFilter{Status: new(StatusPending)})
}

// ListForDonor returns a donor's transactions. Donors may only list their own.
func (s *Service) ListForDonor(ctx context.Context, actor auth.Identity, donorID uuid.UUID) ([]*Transaction, error) {
	if !actor.CanAccess(donorID) {
		return nil, ErrForbidden
	}

	return s.list(ctx, ListFilter{DonorID: &donorID})
}

func (s *Service) ListForCampaign(ctx context.Context, actor auth.Identity, campaignID uuid.UUID) ([]*Transaction, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	return s.list(ctx, ListFilter{CampaignID: &campaignID})
}

func (s *Service) ListAll(ctx context.Context, actor auth.Identity, filter ListFilter) ([]*Transaction, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	if filter.Status != nil && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *filter.Status)
	}

	return s.list(ctx, filter)
}

// Get returns a transaction to an administrator or to its donor.
func (s *Service) Get(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	if !actor.CanAccess(tx.DonorID) {
		return nil, ErrForbidden
	}

	return tx, nil
}

// list returns matching transactions ordered by creation time ascending,
// whatever order the repository produced.
func (s *Service) list(ctx context.Context, filter ListFilter) ([]*Transaction, error) {
	txs, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}

	slices.SortStableFunc(txs, func(a, b *Transaction) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID.String(), b.ID.String())
	})

	return txs, nil
}
