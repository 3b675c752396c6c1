package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/almsbox/internal/campaign"
	"github.com/MrJamesThe3rd/almsbox/internal/database"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Execer is satisfied by both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Credit adds amount to the campaign's accumulated total. It is the only
// statement in the codebase that writes accumulated_amount; callers that need
// it bound to a lifecycle transition pass the open *sql.Tx.
func Credit(ctx context.Context, ex Execer, id uuid.UUID, amount int64) error {
	if amount <= 0 {
		return campaign.ErrInvalidAmount
	}

	query := `
		UPDATE campaigns
		SET accumulated_amount = accumulated_amount + $1, updated_at = NOW()
		WHERE id = $2
	`

	res, err := ex.ExecContext(ctx, query, amount, id)
	if err != nil {
		return fmt.Errorf("crediting campaign: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("crediting campaign: %w", err)
	}

	if n == 0 {
		return campaign.ErrNotFound
	}

	return nil
}

func (s *Store) Credit(ctx context.Context, id uuid.UUID, amount int64) error {
	return Credit(ctx, s.db, id, amount)
}

type scanner interface {
	Scan(dest ...any) error
}

const selectCampaignColumns = `
	id, title, description, goal, accumulated_amount, case_study_id, is_public,
	image_locator, created_by, start_date, end_date, created_at, updated_at
`

func scanCampaign(s scanner) (*campaign.Campaign, error) {
	var c campaign.Campaign

	if err := s.Scan(
		&c.ID, &c.Title, &c.Description, &c.Goal, &c.AccumulatedAmount, &c.CaseStudyID, &c.Public,
		&c.ImageLocator, &c.CreatedBy, &c.StartDate, &c.EndDate, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return &c, nil
}

func (s *Store) CreateCampaign(ctx context.Context, c *campaign.Campaign) error {
	query := `
		INSERT INTO campaigns (title, description, goal, case_study_id, is_public, image_locator, created_by, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id, accumulated_amount, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		c.Title,
		c.Description,
		c.Goal,
		c.CaseStudyID,
		c.Public,
		c.ImageLocator,
		c.CreatedBy,
		c.StartDate,
		c.EndDate,
	).Scan(&c.ID, &c.AccumulatedAmount, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating campaign: %w", err)
	}

	return nil
}

func (s *Store) GetCampaign(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	query := `SELECT ` + selectCampaignColumns + ` FROM campaigns WHERE id = $1`

	c, err := scanCampaign(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, campaign.ErrNotFound
		}

		return nil, fmt.Errorf("getting campaign: %w", err)
	}

	return c, nil
}

func (s *Store) ListCampaigns(ctx context.Context, filter campaign.ListFilter) ([]*campaign.Campaign, error) {
	query := `SELECT ` + selectCampaignColumns + ` FROM campaigns`

	if filter.PublicOnly {
		query += " WHERE is_public"
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*campaign.Campaign

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning campaign: %w", err)
		}

		campaigns = append(campaigns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating campaign rows: %w", err)
	}

	return campaigns, nil
}

func (s *Store) UpdateCampaign(ctx context.Context, c *campaign.Campaign) error {
	query := `
		UPDATE campaigns
		SET title = $1, description = $2, goal = $3, case_study_id = $4, is_public = $5,
			image_locator = $6, end_date = $7, updated_at = NOW()
		WHERE id = $8
		RETURNING accumulated_amount, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		c.Title,
		c.Description,
		c.Goal,
		c.CaseStudyID,
		c.Public,
		c.ImageLocator,
		c.EndDate,
		c.ID,
	).Scan(&c.AccumulatedAmount, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return campaign.ErrNotFound
		}

		return fmt.Errorf("updating campaign: %w", err)
	}

	return nil
}

func (s *Store) DeleteCampaign(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return campaign.ErrHasTransactions
		}

		return fmt.Errorf("deleting campaign: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting campaign: %w", err)
	}

	if n == 0 {
		return campaign.ErrNotFound
	}

	return nil
}
