// Package event carries transaction lifecycle notifications to downstream
// consumers. Publication happens after the state change is committed, so a
// failed publish never undoes a transition.
package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TransactionSubmitted Type = "transaction.submitted"
	TransactionVerified  Type = "transaction.verified"
	TransactionRejected  Type = "transaction.rejected"
	TransactionCompleted Type = "transaction.completed"
)

// Event is the wire shape of a lifecycle notification. DonorID is left empty
// for anonymous contributions.
type Event struct {
	ID            uuid.UUID  `json:"id"`
	Type          Type       `json:"type"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	CampaignID    uuid.UUID  `json:"campaign_id"`
	DonorID       *uuid.UUID `json:"donor_id,omitempty"`
	Amount        int64      `json:"amount"`
	Status        string     `json:"status"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NoOpPublisher drops every event.
type NoOpPublisher struct{}

var _ Publisher = NoOpPublisher{}

func (NoOpPublisher) Publish(context.Context, Event) error { return nil }
