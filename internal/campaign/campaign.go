package campaign

import (
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("campaign not found")
	ErrForbidden       = errors.New("not authorized to manage campaigns")
	ErrValidation      = errors.New("invalid campaign")
	ErrInvalidAmount   = errors.New("credit amount must be positive")
	ErrHasTransactions = errors.New("campaign has transactions")
	ErrNoImage         = errors.New("campaign has no image")
)

// Campaign is a public or private fundraising target. AccumulatedAmount is
// only ever changed by a ledger credit.
type Campaign struct {
	ID                uuid.UUID
	Title             string
	Description       string
	Goal              int64 // Minor units
	AccumulatedAmount int64 // Minor units
	CaseStudyID       *uuid.UUID
	Public            bool
	ImageLocator      string // Locator in the image store, empty when none was uploaded
	CreatedBy         uuid.UUID
	StartDate         time.Time
	EndDate           *time.Time
	CreatedAt         time.Time
	UpdatedAt         *time.Time
}

// Image is an uploaded campaign picture.
type Image struct {
	Filename string
	Body     io.Reader
}
