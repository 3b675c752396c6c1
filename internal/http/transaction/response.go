package transaction

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/almsbox/internal/money"
	"github.com/MrJamesThe3rd/almsbox/internal/proof"
	"github.com/MrJamesThe3rd/almsbox/internal/transaction"
)

type transactionResponse struct {
	ID                  uuid.UUID          `json:"id"`
	CampaignID          uuid.UUID          `json:"campaign_id"`
	DonorID             uuid.UUID          `json:"donor_id"`
	Amount              int64              `json:"amount"`
	AmountDisplay       string             `json:"amount_display"`
	Message             string             `json:"message,omitempty"`
	Anonymous           bool               `json:"anonymous"`
	SettlementID        *string            `json:"settlement_id,omitempty"`
	ProofLocator        string             `json:"proof_locator"`
	ProofKind           proof.Kind         `json:"proof_kind"`
	Status              transaction.Status `json:"status"`
	Credited            bool               `json:"credited"`
	VerifiedBy          *uuid.UUID         `json:"verified_by,omitempty"`
	VerifiedAt          *time.Time         `json:"verified_at,omitempty"`
	VerificationComment string             `json:"verification_comment,omitempty"`
	CompletedAt         *time.Time         `json:"completed_at,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           *time.Time         `json:"updated_at,omitempty"`
}

func toResponse(tx *transaction.Transaction) transactionResponse {
	return transactionResponse{
		ID:                  tx.ID,
		CampaignID:          tx.CampaignID,
		DonorID:             tx.DonorID,
		Amount:              tx.Amount,
		AmountDisplay:       money.Format(tx.Amount),
		Message:             tx.Message,
		Anonymous:           tx.Anonymous,
		SettlementID:        tx.SettlementID,
		ProofLocator:        tx.ProofLocator,
		ProofKind:           tx.ProofKind,
		Status:              tx.Status,
		Credited:            tx.Credited,
		VerifiedBy:          tx.VerifiedBy,
		VerifiedAt:          tx.VerifiedAt,
		VerificationComment: tx.VerificationComment,
		CompletedAt:         tx.CompletedAt,
		CreatedAt:           tx.CreatedAt,
		UpdatedAt:           tx.UpdatedAt,
	}
}

func toResponseList(txs []*transaction.Transaction) []transactionResponse {
	resp := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		resp[i] = toResponse(tx)
	}

	return resp
}
