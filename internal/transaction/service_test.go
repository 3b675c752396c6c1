package transaction_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/almsbox/internal/auth"
	"github.com/MrJamesThe3rd/almsbox/internal/campaign"
	"github.com/MrJamesThe3rd/almsbox/internal/event"
	"github.com/MrJamesThe3rd/almsbox/internal/proof"
	"github.com/MrJamesThe3rd/almsbox/internal/transaction"
)

var (
	admin = auth.Identity{Subject: uuid.New(), Role: auth.RoleAdmin}
	donor = auth.Identity{Subject: uuid.New(), Role: auth.RoleUser}
	fixed = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
)

type recordingPublisher struct {
	events []event.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e event.Event) error {
	p.events = append(p.events, e)
	return nil
}

type mocks struct {
	repo      *transaction.MockRepository
	region    *transaction.MockTransitionTx
	campaigns *transaction.MockCampaignReader
	proofs    *transaction.MockProofResolver
	events    *recordingPublisher
}

func newService(t *testing.T) (*transaction.Service, mocks) {
	t.Helper()

	ctrl := gomock.NewController(t)
	m := mocks{
		repo:      transaction.NewMockRepository(ctrl),
		region:    transaction.NewMockTransitionTx(ctrl),
		campaigns: transaction.NewMockCampaignReader(ctrl),
		proofs:    transaction.NewMockProofResolver(ctrl),
		events:    &recordingPublisher{},
	}

	svc := transaction.NewService(m.repo, m.campaigns, m.proofs,
		transaction.WithPublisher(m.events),
		transaction.WithClock(func() time.Time { return fixed }),
	)

	return svc, m
}

func TestService_Submit(t *testing.T) {
	campaignID := uuid.New()
	publicCampaign := &campaign.Campaign{ID: campaignID, Public: true, Goal: 1000}
	privateCampaign := &campaign.Campaign{ID: campaignID, Public: false, Goal: 1000}

	valid := transaction.SubmitParams{
		CampaignID:   campaignID,
		DonorID:      donor.Subject,
		Amount:       200,
		ProofLocator: "receipt.pdf",
		ProofKind:    proof.KindPDF,
		Message:      "  for the roof  ",
	}

	type testCase struct {
		name      string
		params    func(p transaction.SubmitParams) transaction.SubmitParams
		setupMock func(m mocks)
		wantErr   error
	}

	tests := []testCase{
		{
			name: "Success",
			setupMock: func(m mocks) {
				m.campaigns.EXPECT().GetCampaign(gomock.Any(), campaignID).Return(publicCampaign, nil)
				m.proofs.EXPECT().Stat(gomock.Any(), "receipt.pdf").
					Return(proof.Artifact{Locator: "receipt.pdf", MediaType: "application/pdf"}, nil)
				m.repo.EXPECT().
					CreateTransaction(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, tx *transaction.Transaction) error {
						tx.ID = uuid.New()
						tx.CreatedAt = fixed
						return nil
					})
			},
		},
		{
			name: "KindDerivedWhenNotDeclared",
			params: func(p transaction.SubmitParams) transaction.SubmitParams {
				p.ProofKind = ""
				p.ProofLocator = "photo.png"
				return p
			},
			setupMock: func(m mocks) {
				m.campaigns.EXPECT().GetCampaign(gomock.Any(), campaignID).Return(publicCampaign, nil)
				m.proofs.EXPECT().Stat(gomock.Any(), "photo.png").
					Return(proof.Artifact{Locator: "photo.png", MediaType: "image/png"}, nil)
				m.repo.EXPECT().
					CreateTransaction(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, tx *transaction.Transaction) error {
						assert.Equal(t, proof.KindImage, tx.ProofKind)
						return nil
					})
			},
		},
		{
			name: "PrivateCampaign",
			setupMock: func(m mocks) {
				m.campaigns.EXPECT().GetCampaign(gomock.Any(), campaignID).Return(privateCampaign, nil)
			},
			wantErr: transaction.ErrCampaignNotEligible,
		},
		{
			name: "PrivateCampaignWinsOverBadAmount",
			params: func(p transaction.SubmitParams) transaction.SubmitParams {
				p.Amount = -5
				p.ProofLocator = ""
				return p
			},
			setupMock: func(m mocks) {
				m.campaigns.EXPECT().GetCampaign(gomock.Any(), campaignID).Return(privateCampaign, nil)
			},
			wantErr: transaction.ErrCampaignNotEligible,
		},
		{
			name: "MissingCampaign",
			setupMock: func(m mocks) {
				m.campaigns.EXPECT().GetCampaign(gomock.Any(), campaignID).Return(nil, campaign.ErrNotFound)
			},
			wantErr: transaction.ErrCampaignNotEligible,
		},
		{
			name: "ZeroAmount",
			params: func(p transaction.SubmitParams) transaction.SubmitParams {
				p.Amount = 0
				return p
			},
			setupMock: func(m mocks) {
				m.campaigns.EXPECT().GetCampaign(gomock.Any(), campaignID).Return(publicCampaign, nil)
			},
			wantErr: transaction.ErrValidation,
		},
		{
			name: "MissingDonor",
			params: func(p transaction.SubmitParams) transaction.SubmitParams {
				p.DonorID = uuid.Nil
				return p
			},
			wantErr: transaction.ErrValidation,
		},
		{
			name: "ProofNotStored",
			setupMock: func(m mocks) {
				m.campaigns.EXPECT().GetCampaign(gomock.Any(), campaignID).Return(publicCampaign, nil)
				m.proofs.EXPECT().Stat(gomock.Any(), "receipt.pdf").Return(proof.Artifact{}, proof.ErrNotFound)
			},
			wantErr: transaction.ErrInvalidProof,
		},
		{
			name: "ProofStoreDown",
			setupMock: func(m mocks) {
				m.campaigns.EXPECT().GetCampaign(gomock.Any(), campaignID).Return(publicCampaign, nil)
				m.proofs.EXPECT().Stat(gomock.Any(), "receipt.pdf").Return(proof.Artifact{}, proof.ErrUnavailable)
			},
			wantErr: transaction.ErrStorageFailure,
		},
		{
			name: "DeclaredKindMismatch",
			params: func(p transaction.SubmitParams) transaction.SubmitParams {
				p.ProofKind = proof.KindImage
				return p
			},
			setupMock: func(m mocks) {
				m.campaigns.EXPECT().GetCampaign(gomock.Any(), campaignID).Return(publicCampaign, nil)
				m.proofs.EXPECT().Stat(gomock.Any(), "receipt.pdf").
					Return(proof.Artifact{MediaType: "application/pdf"}, nil)
			},
			wantErr: transaction.ErrInvalidProof,
		},
		{
			name: "UnsupportedMedia",
			params: func(p transaction.SubmitParams) transaction.SubmitParams {
				p.ProofKind = ""
				return p
			},
			setupMock: func(m mocks) {
				m.campaigns.EXPECT().GetCampaign(gomock.Any(), campaignID).Return(publicCampaign, nil)
				m.proofs.EXPECT().Stat(gomock.Any(), "receipt.pdf").
					Return(proof.Artifact{MediaType: "application/zip"}, nil)
			},
			wantErr: transaction.ErrInvalidProof,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newService(t)
			if tt.setupMock != nil {
				tt.setupMock(m)
			}

			params := valid
			if tt.params != nil {
				params = tt.params(params)
			}

			got, err := svc.Submit(context.Background(), params)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				assert.Empty(t, m.events.events)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, transaction.StatusPending, got.Status)
			assert.False(t, got.Credited)
			assert.Equal(t, params.Amount, got.Amount)

			require.Len(t, m.events.events, 1)
			assert.Equal(t, event.TransactionSubmitted, m.events.events[0].Type)
		})
	}
}

func TestService_Submit_NormalizesMessage(t *testing.T) {
	svc, m := newService(t)
	campaignID := uuid.New()

	m.campaigns.EXPECT().GetCampaign(gomock.Any(), campaignID).Return(&campaign.Campaign{ID: campaignID, Public: true}, nil)
	m.proofs.EXPECT().Stat(gomock.Any(), gomock.Any()).Return(proof.Artifact{MediaType: "application/pdf"}, nil)
	m.repo.EXPECT().CreateTransaction(gomock.Any(), gomock.Any()).Return(nil)

	got, err := svc.Submit(context.Background(), transaction.SubmitParams{
		CampaignID:   campaignID,
		DonorID:      donor.Subject,
		Amount:       10,
		ProofLocator: "a.pdf",
		Message:      "  Doac\u0327a\u0303o\x00 ",
		Anonymous:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Doa\u00e7\u00e3o", got.Message)

	require.Len(t, m.events.events, 1)
	assert.Nil(t, m.events.events[0].DonorID)
}

func pendingTx(amount int64) *transaction.Transaction {
	return &transaction.Transaction{
		ID:         uuid.New(),
		CampaignID: uuid.New(),
		DonorID:    donor.Subject,
		Amount:     amount,
		Status:     transaction.StatusPending,
		CreatedAt:  fixed.Add(-time.Hour),
	}
}

func TestService_Verify(t *testing.T) {
	t.Run("VerifiedCompletesAndCredits", func(t *testing.T) {
		svc, m := newService(t)
		tx := pendingTx(200)

		gomock.InOrder(
			m.repo.EXPECT().BeginTransition(gomock.Any(), tx.ID).Return(m.region, nil),
			m.region.EXPECT().Transaction().Return(tx),
			m.region.EXPECT().UpdateState(gomock.Any(), tx, transaction.StatusPending).Return(nil),
			m.region.EXPECT().UpdateState(gomock.Any(), tx, transaction.StatusVerified).Return(nil),
			m.region.EXPECT().Credit(gomock.Any(), tx.CampaignID, int64(200)).Return(nil),
			m.region.EXPECT().Commit().Return(nil),
		)
		m.region.EXPECT().Rollback().Return(nil).AnyTimes()

		got, err := svc.Verify(context.Background(), admin, tx.ID, transaction.VerifyParams{
			Outcome: transaction.OutcomeVerified,
			Comment: "looks right",
		})
		require.NoError(t, err)

		assert.Equal(t, transaction.StatusCompleted, got.Status)
		assert.True(t, got.Credited)
		assert.Equal(t, admin.Subject, *got.VerifiedBy)
		assert.Equal(t, fixed, *got.VerifiedAt)
		assert.Equal(t, fixed, *got.CompletedAt)
		assert.Equal(t, "looks right", got.VerificationComment)

		require.Len(t, m.events.events, 2)
		assert.Equal(t, event.TransactionVerified, m.events.events[0].Type)
		assert.Equal(t, event.TransactionCompleted, m.events.events[1].Type)
	})

	t.Run("RejectedLeavesLedgerAlone", func(t *testing.T) {
		svc, m := newService(t)
		tx := pendingTx(50)

		m.repo.EXPECT().BeginTransition(gomock.Any(), tx.ID).Return(m.region, nil)
		m.region.EXPECT().Transaction().Return(tx)
		m.region.EXPECT().UpdateState(gomock.Any(), tx, transaction.StatusPending).Return(nil)
		m.region.EXPECT().Credit(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		m.region.EXPECT().Commit().Return(nil)
		m.region.EXPECT().Rollback().Return(nil).AnyTimes()

		got, err := svc.Verify(context.Background(), admin, tx.ID, transaction.VerifyParams{Outcome: transaction.OutcomeRejected})
		require.NoError(t, err)
		assert.Equal(t, transaction.StatusRejected, got.Status)
		assert.False(t, got.Credited)
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("NotAdmin", func(t *testing.T) {
		svc, _ := newService(t)

		_, err := svc.Verify(context.Background(), donor, uuid.New(), transaction.VerifyParams{Outcome: transaction.OutcomeVerified})
		assert.ErrorIs(t, err, transaction.ErrForbidden)
	})

	t.Run("UnknownOutcome", func(t *testing.T) {
		svc, _ := newService(t)

		_, err := svc.Verify(context.Background(), admin, uuid.New(), transaction.VerifyParams{Outcome: "maybe"})
		assert.ErrorIs(t, err, transaction.ErrValidation)
	})

	t.Run("NotFound", func(t *testing.T) {
		svc, m := newService(t)
		m.repo.EXPECT().BeginTransition(gomock.Any(), gomock.Any()).Return(nil, transaction.ErrNotFound)

		_, err := svc.Verify(context.Background(), admin, uuid.New(), transaction.VerifyParams{Outcome: transaction.OutcomeVerified})
		assert.ErrorIs(t, err, transaction.ErrNotFound)
	})

	t.Run("AlreadyTerminal", func(t *testing.T) {
		for _, status := range []transaction.Status{transaction.StatusRejected, transaction.StatusCompleted, transaction.StatusVerified} {
			t.Run(string(status), func(t *testing.T) {
				svc, m := newService(t)
				tx := pendingTx(100)
				tx.Status = status
				tx.Credited = status == transaction.StatusCompleted

				m.repo.EXPECT().BeginTransition(gomock.Any(), tx.ID).Return(m.region, nil)
				m.region.EXPECT().Transaction().Return(tx)
				m.region.EXPECT().Rollback().Return(nil)

				_, err := svc.Verify(context.Background(), admin, tx.ID, transaction.VerifyParams{Outcome: transaction.OutcomeVerified})
				require.ErrorIs(t, err, transaction.ErrInvalidTransition)

				var te *transaction.TransitionError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, status, te.From)
				assert.Contains(t, err.Error(), string(status))
			})
		}
	})

	t.Run("LostRace", func(t *testing.T) {
		svc, m := newService(t)
		tx := pendingTx(100)
		current := *tx
		current.Status = transaction.StatusCompleted
		current.Credited = true

		m.repo.EXPECT().BeginTransition(gomock.Any(), tx.ID).Return(m.region, nil)
		m.region.EXPECT().Transaction().Return(tx)
		m.region.EXPECT().UpdateState(gomock.Any(), tx, transaction.StatusPending).Return(transaction.ErrConcurrentUpdate)
		m.region.EXPECT().Rollback().Return(nil)
		m.repo.EXPECT().GetTransaction(gomock.Any(), tx.ID).Return(&current, nil)

		_, err := svc.Verify(context.Background(), admin, tx.ID, transaction.VerifyParams{Outcome: transaction.OutcomeVerified})
		require.ErrorIs(t, err, transaction.ErrInvalidTransition)
		assert.Contains(t, err.Error(), "completed")
		assert.Empty(t, m.events.events)
	})

	t.Run("CreditFailureRollsBack", func(t *testing.T) {
		svc, m := newService(t)
		tx := pendingTx(100)

		m.repo.EXPECT().BeginTransition(gomock.Any(), tx.ID).Return(m.region, nil)
		m.region.EXPECT().Transaction().Return(tx)
		m.region.EXPECT().UpdateState(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
		m.region.EXPECT().Credit(gomock.Any(), tx.CampaignID, int64(100)).Return(errors.New("connection reset"))
		m.region.EXPECT().Commit().Times(0)
		m.region.EXPECT().Rollback().Return(nil)

		_, err := svc.Verify(context.Background(), admin, tx.ID, transaction.VerifyParams{Outcome: transaction.OutcomeVerified})
		assert.ErrorIs(t, err, transaction.ErrStorageFailure)
		assert.Empty(t, m.events.events)
	})
}

func TestService_Complete(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		svc, m := newService(t)
		tx := pendingTx(75)
		tx.Status = transaction.StatusVerified

		m.repo.EXPECT().BeginTransition(gomock.Any(), tx.ID).Return(m.region, nil)
		m.region.EXPECT().Transaction().Return(tx)
		m.region.EXPECT().UpdateState(gomock.Any(), tx, transaction.StatusVerified).Return(nil)
		m.region.EXPECT().Credit(gomock.Any(), tx.CampaignID, int64(75)).Return(nil)
		m.region.EXPECT().Commit().Return(nil)
		m.region.EXPECT().Rollback().Return(nil).AnyTimes()

		got, err := svc.Complete(context.Background(), admin, tx.ID, transaction.CompleteParams{SettlementID: "stripe_ch_1"})
		require.NoError(t, err)
		assert.Equal(t, transaction.StatusCompleted, got.Status)
		assert.True(t, got.Credited)
		assert.Equal(t, "stripe_ch_1", *got.SettlementID)
	})

	t.Run("InvalidFrom", func(t *testing.T) {
		for _, status := range []transaction.Status{transaction.StatusPending, transaction.StatusRejected, transaction.StatusCompleted} {
			t.Run(string(status), func(t *testing.T) {
				svc, m := newService(t)
				tx := pendingTx(75)
				tx.Status = status

				m.repo.EXPECT().BeginTransition(gomock.Any(), tx.ID).Return(m.region, nil)
				m.region.EXPECT().Transaction().Return(tx)
				m.region.EXPECT().Credit(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				m.region.EXPECT().Rollback().Return(nil)

				_, err := svc.Complete(context.Background(), admin, tx.ID, transaction.CompleteParams{SettlementID: "x"})
				assert.ErrorIs(t, err, transaction.ErrInvalidTransition)
			})
		}
	})

	t.Run("VerifiedButCredited", func(t *testing.T) {
		svc, m := newService(t)
		tx := pendingTx(75)
		tx.Status = transaction.StatusVerified
		tx.Credited = true

		m.repo.EXPECT().BeginTransition(gomock.Any(), tx.ID).Return(m.region, nil)
		m.region.EXPECT().Transaction().Return(tx)
		m.region.EXPECT().Rollback().Return(nil)

		_, err := svc.Complete(context.Background(), admin, tx.ID, transaction.CompleteParams{SettlementID: "x"})
		require.ErrorIs(t, err, transaction.ErrInvalidTransition)
		assert.Contains(t, err.Error(), "already credited")
	})

	t.Run("MissingSettlement", func(t *testing.T) {
		svc, _ := newService(t)

		_, err := svc.Complete(context.Background(), admin, uuid.New(), transaction.CompleteParams{SettlementID: "  "})
		assert.ErrorIs(t, err, transaction.ErrValidation)
	})

	t.Run("NotAdmin", func(t *testing.T) {
		svc, _ := newService(t)

		_, err := svc.Complete(context.Background(), donor, uuid.New(), transaction.CompleteParams{SettlementID: "x"})
		assert.ErrorIs(t, err, transaction.ErrForbidden)
	})
}

func TestService_Observer(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := transaction.NewMockRepository(ctrl)
	region := transaction.NewMockTransitionTx(ctrl)
	obs := transaction.NewMockObserver(ctrl)

	svc := transaction.NewService(repo, nil, nil, transaction.WithObserver(obs))
	tx := pendingTx(40)

	repo.EXPECT().BeginTransition(gomock.Any(), tx.ID).Return(region, nil)
	region.EXPECT().Transaction().Return(tx)
	region.EXPECT().UpdateState(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
	region.EXPECT().Credit(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	region.EXPECT().Commit().Return(nil)
	region.EXPECT().Rollback().Return(nil).AnyTimes()

	obs.EXPECT().TransitionApplied(transaction.StatusPending, transaction.StatusVerified)
	obs.EXPECT().TransitionApplied(transaction.StatusVerified, transaction.StatusCompleted)
	obs.EXPECT().Credited(int64(40))

	_, err := svc.Verify(context.Background(), admin, tx.ID, transaction.VerifyParams{Outcome: transaction.OutcomeVerified})
	require.NoError(t, err)

	obs.EXPECT().TransitionRefused("verify")

	_, err = svc.Verify(context.Background(), donor, tx.ID, transaction.VerifyParams{Outcome: transaction.OutcomeVerified})
	assert.ErrorIs(t, err, transaction.ErrForbidden)
}
