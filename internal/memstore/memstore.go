// Package memstore is an in-process backend for campaigns and transactions.
// It honours the same contracts as the Postgres stores: a transition region
// holds an exclusive lock on one transaction, and its writes become visible
// together on commit.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/almsbox/internal/campaign"
	"github.com/MrJamesThe3rd/almsbox/internal/transaction"
)

type Store struct {
	mu        sync.Mutex
	campaigns map[uuid.UUID]campaign.Campaign
	txs       map[uuid.UUID]transaction.Transaction
	rowLocks  map[uuid.UUID]*rowLock
	now       func() time.Time
}

// rowLock serialises regions on one transaction. refs counts the holder and
// waiters; the entry is dropped when it reaches zero.
type rowLock struct {
	ch   chan struct{}
	refs int
}

var (
	_ campaign.Repository    = (*Store)(nil)
	_ transaction.Repository = (*Store)(nil)
)

func New() *Store {
	return &Store{
		campaigns: make(map[uuid.UUID]campaign.Campaign),
		txs:       make(map[uuid.UUID]transaction.Transaction),
		rowLocks:  make(map[uuid.UUID]*rowLock),
		now:       time.Now,
	}
}

func (s *Store) CreateCampaign(_ context.Context, c *campaign.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = uuid.New()
	c.AccumulatedAmount = 0
	c.CreatedAt = s.now()
	s.campaigns[c.ID] = *c

	return nil
}

func (s *Store) GetCampaign(_ context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}

	return &c, nil
}

func (s *Store) ListCampaigns(_ context.Context, filter campaign.ListFilter) ([]*campaign.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*campaign.Campaign

	for _, c := range s.campaigns {
		if filter.PublicOnly && !c.Public {
			continue
		}

		out = append(out, &c)
	}

	slices.SortFunc(out, func(a, b *campaign.Campaign) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return out, nil
}

func (s *Store) UpdateCampaign(_ context.Context, c *campaign.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.campaigns[c.ID]
	if !ok {
		return campaign.ErrNotFound
	}

	now := s.now()
	c.AccumulatedAmount = stored.AccumulatedAmount
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = &now
	s.campaigns[c.ID] = *c

	return nil
}

func (s *Store) DeleteCampaign(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[id]; !ok {
		return campaign.ErrNotFound
	}

	for _, tx := range s.txs {
		if tx.CampaignID == id {
			return campaign.ErrHasTransactions
		}
	}

	delete(s.campaigns, id)

	return nil
}

// Credit adds amount to a campaign's accumulated total.
func (s *Store) Credit(_ context.Context, id uuid.UUID, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.creditLocked(id, amount)
}

func (s *Store) creditLocked(id uuid.UUID, amount int64) error {
	if amount <= 0 {
		return campaign.ErrInvalidAmount
	}

	c, ok := s.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}

	now := s.now()
	c.AccumulatedAmount += amount
	c.UpdatedAt = &now
	s.campaigns[id] = c

	return nil
}

func (s *Store) CreateTransaction(_ context.Context, tx *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[tx.CampaignID]; !ok {
		return fmt.Errorf("creating transaction: %w", campaign.ErrNotFound)
	}

	tx.ID = uuid.New()
	tx.CreatedAt = s.now()
	s.txs[tx.ID] = *tx

	return nil
}

func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, transaction.ErrNotFound
	}

	return &tx, nil
}

func (s *Store) ListTransactions(_ context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*transaction.Transaction

	for _, tx := range s.txs {
		if filter.Status != nil && tx.Status != *filter.Status {
			continue
		}

		if filter.CampaignID != nil && tx.CampaignID != *filter.CampaignID {
			continue
		}

		if filter.DonorID != nil && tx.DonorID != *filter.DonorID {
			continue
		}

		out = append(out, &tx)
	}

	slices.SortFunc(out, func(a, b *transaction.Transaction) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return out, nil
}

// acquire takes the row lock for id, creating it on first use.
func (s *Store) acquire(ctx context.Context, id uuid.UUID) (*rowLock, error) {
	s.mu.Lock()

	l, ok := s.rowLocks[id]
	if !ok {
		l = &rowLock{ch: make(chan struct{}, 1)}
		s.rowLocks[id] = l
	}

	l.refs++
	s.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return l, nil
	case <-ctx.Done():
		s.unref(id, l)
		return nil, fmt.Errorf("waiting for transaction lock: %w", ctx.Err())
	}
}

func (s *Store) release(id uuid.UUID, l *rowLock) {
	<-l.ch
	s.unref(id, l)
}

func (s *Store) unref(id uuid.UUID, l *rowLock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(s.rowLocks, id)
	}
}

func (s *Store) BeginTransition(ctx context.Context, id uuid.UUID) (transaction.TransitionTx, error) {
	lock, err := s.acquire(ctx, id)
	if err != nil {
		return nil, err
	}

	row, err := s.GetTransaction(ctx, id)
	if err != nil {
		s.release(id, lock)
		return nil, err
	}

	return &transitionTx{store: s, id: id, lock: lock, row: row, stored: *row}, nil
}

type credit struct {
	campaignID uuid.UUID
	amount     int64
}

type transitionTx struct {
	store   *Store
	id      uuid.UUID
	lock    *rowLock
	row     *transaction.Transaction
	stored  transaction.Transaction // Last state written through UpdateState
	credits []credit
	done    bool
}

func (t *transitionTx) Transaction() *transaction.Transaction { return t.row }

func (t *transitionTx) UpdateState(_ context.Context, tx *transaction.Transaction, from transaction.Status) error {
	if t.done {
		return fmt.Errorf("updating transaction state: region closed")
	}

	if t.stored.Status != from || t.stored.Credited {
		return transaction.ErrConcurrentUpdate
	}

	t.stored.Status = tx.Status
	t.stored.Credited = tx.Credited
	t.stored.VerifiedBy = tx.VerifiedBy
	t.stored.VerifiedAt = tx.VerifiedAt
	t.stored.VerificationComment = tx.VerificationComment
	t.stored.SettlementID = tx.SettlementID
	t.stored.CompletedAt = tx.CompletedAt

	return nil
}

func (t *transitionTx) Credit(_ context.Context, campaignID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return campaign.ErrInvalidAmount
	}

	t.store.mu.Lock()
	_, ok := t.store.campaigns[campaignID]
	t.store.mu.Unlock()

	if !ok {
		return campaign.ErrNotFound
	}

	t.credits = append(t.credits, credit{campaignID: campaignID, amount: amount})

	return nil
}

// Commit applies the staged row and credits under the store mutex, so readers
// never observe one without the other.
func (t *transitionTx) Commit() error {
	if t.done {
		return fmt.Errorf("committing transition: region closed")
	}

	defer t.release()

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range t.credits {
		if _, ok := s.campaigns[c.campaignID]; !ok {
			return fmt.Errorf("committing transition: %w", campaign.ErrNotFound)
		}
	}

	for _, c := range t.credits {
		if err := s.creditLocked(c.campaignID, c.amount); err != nil {
			return fmt.Errorf("committing transition: %w", err)
		}
	}

	now := s.now()
	t.stored.UpdatedAt = &now
	s.txs[t.stored.ID] = t.stored

	return nil
}

func (t *transitionTx) Rollback() error {
	if t.done {
		return nil
	}

	t.release()

	return nil
}

func (t *transitionTx) release() {
	t.done = true
	t.store.release(t.id, t.lock)
}
