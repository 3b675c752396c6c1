package transaction

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/almsbox/internal/proof"
)

// Status represents the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusVerified  Status = "verified"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	// StatusFailed is reserved for infrastructure failures; no operation issues it.
	StatusFailed Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusCompleted, StatusRejected, StatusFailed:
		return true
	}

	return false
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusFailed
}

// Outcome is an administrator's verification decision.
type Outcome string

const (
	OutcomeVerified Outcome = "verified"
	OutcomeRejected Outcome = "rejected"
)

// Transaction is a donor's proof-backed contribution record.
type Transaction struct {
	ID                  uuid.UUID
	CampaignID          uuid.UUID
	DonorID             uuid.UUID
	Amount              int64 // Amount in cents, fixed at creation
	Message             string
	Anonymous           bool
	SettlementID        *string
	ProofLocator        string
	ProofKind           proof.Kind
	Status              Status
	Credited            bool // Set together with StatusCompleted, never cleared
	VerifiedBy          *uuid.UUID
	VerifiedAt          *time.Time
	VerificationComment string
	CompletedAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           *time.Time
}
