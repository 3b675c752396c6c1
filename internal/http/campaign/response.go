package campaign

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/almsbox/internal/campaign"
	"github.com/MrJamesThe3rd/almsbox/internal/money"
)

type campaignResponse struct {
	ID                       uuid.UUID  `json:"id"`
	Title                    string     `json:"title"`
	Description              string     `json:"description"`
	Goal                     int64      `json:"goal"`
	GoalDisplay              string     `json:"goal_display"`
	AccumulatedAmount        int64      `json:"accumulated_amount"`
	AccumulatedAmountDisplay string     `json:"accumulated_amount_display"`
	CaseStudyID              *uuid.UUID `json:"case_study_id,omitempty"`
	Public                   bool       `json:"is_public"`
	ImageLocator             string     `json:"image_locator,omitempty"`
	CreatedBy                uuid.UUID  `json:"created_by"`
	StartDate                time.Time  `json:"start_date"`
	EndDate                  *time.Time `json:"end_date,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                *time.Time `json:"updated_at,omitempty"`
}

func toResponse(c *campaign.Campaign) campaignResponse {
	return campaignResponse{
		ID:                       c.ID,
		Title:                    c.Title,
		Description:              c.Description,
		Goal:                     c.Goal,
		GoalDisplay:              money.Format(c.Goal),
		AccumulatedAmount:        c.AccumulatedAmount,
		AccumulatedAmountDisplay: money.Format(c.AccumulatedAmount),
		CaseStudyID:              c.CaseStudyID,
		Public:                   c.Public,
		ImageLocator:             c.ImageLocator,
		CreatedBy:                c.CreatedBy,
		StartDate:                c.StartDate,
		EndDate:                  c.EndDate,
		CreatedAt:                c.CreatedAt,
		UpdatedAt:                c.UpdatedAt,
	}
}

func toResponseList(cs []*campaign.Campaign) []campaignResponse {
	resp := make([]campaignResponse, len(cs))
	for i, c := range cs {
		resp[i] = toResponse(c)
	}

	return resp
}
