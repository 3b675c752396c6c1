// Package export bundles a campaign's completed contributions into a
// downloadable archive: a CSV statement plus every proof file.
package export

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/almsbox/internal/auth"
	"github.com/MrJamesThe3rd/almsbox/internal/money"
	"github.com/MrJamesThe3rd/almsbox/internal/proof"
	"github.com/MrJamesThe3rd/almsbox/internal/transaction"
)

const StatementName = "statement.csv"

// Lister is the slice of the transaction service the export needs.
type Lister interface {
	ListForCampaign(ctx context.Context, actor auth.Identity, campaignID uuid.UUID) ([]*transaction.Transaction, error)
}

// Item links a completed transaction to its file name inside the archive.
type Item struct {
	Transaction *transaction.Transaction
	ProofName   string
}

type Service struct {
	transactions Lister
	proofs       proof.Store
}

func NewService(transactions Lister, proofs proof.Store) *Service {
	return &Service{transactions: transactions, proofs: proofs}
}

// Items returns the completed transactions of a campaign in creation order.
// Authorization is delegated to the transaction service.
func (s *Service) Items(ctx context.Context, actor auth.Identity, campaignID uuid.UUID) ([]Item, error) {
	txs, err := s.transactions.ListForCampaign(ctx, actor, campaignID)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(txs))

	for _, tx := range txs {
		if tx.Status != transaction.StatusCompleted {
			continue
		}

		items = append(items, Item{Transaction: tx, ProofName: archiveName(tx)})
	}

	return items, nil
}

// WriteArchive streams a zip with the statement first, then one entry per proof.
func (s *Service) WriteArchive(ctx context.Context, w io.Writer, items []Item) error {
	zw := zip.NewWriter(w)

	sw, err := zw.Create(StatementName)
	if err != nil {
		return fmt.Errorf("creating statement entry: %w", err)
	}

	if err := WriteStatement(sw, items); err != nil {
		return err
	}

	for _, item := range items {
		if err := s.copyProof(ctx, zw, item); err != nil {
			return fmt.Errorf("archiving proof for transaction %s: %w", item.Transaction.ID, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}

	return nil
}

func (s *Service) copyProof(ctx context.Context, zw *zip.Writer, item Item) error {
	rc, err := s.proofs.Open(ctx, item.Transaction.ProofLocator)
	if err != nil {
		return err
	}
	defer rc.Close()

	fw, err := zw.Create("proofs/" + item.ProofName)
	if err != nil {
		return err
	}

	_, err = io.Copy(fw, rc)

	return err
}

// WriteStatement renders one CSV row per item. Anonymous contributions keep
// their amount but drop the donor.
func WriteStatement(w io.Writer, items []Item) error {
	cw := csv.NewWriter(w)

	header := []string{"transaction_id", "completed_at", "donor_id", "amount", "settlement_id", "message", "proof"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing statement header: %w", err)
	}

	var total int64

	for _, item := range items {
		tx := item.Transaction
		total += tx.Amount

		donor := tx.DonorID.String()
		if tx.Anonymous {
			donor = ""
		}

		var completed, settlement string
		if tx.CompletedAt != nil {
			completed = tx.CompletedAt.UTC().Format("2006-01-02T15:04:05Z")
		}

		if tx.SettlementID != nil {
			settlement = *tx.SettlementID
		}

		row := []string{tx.ID.String(), completed, donor, money.Format(tx.Amount), settlement, tx.Message, item.ProofName}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing statement row: %w", err)
		}
	}

	if err := cw.Write([]string{"total", "", "", money.Format(total), "", "", strconv.Itoa(len(items))}); err != nil {
		return fmt.Errorf("writing statement total: %w", err)
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing statement: %w", err)
	}

	return nil
}

// archiveName builds YYYYMMDD_<ref>.<ext>. Settlement ids are not unique, so
// the ref keeps a prefix of the transaction id.
func archiveName(tx *transaction.Transaction) string {
	ref := tx.ID.String()
	if tx.SettlementID != nil && *tx.SettlementID != "" {
		ref = *tx.SettlementID + "_" + tx.ID.String()[:8]
	}

	safe := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}

		return '_'
	}, ref)

	ext := strings.ToLower(path.Ext(tx.ProofLocator))
	if ext == "" {
		ext = defaultExt(tx.ProofKind)
	}

	date := tx.CreatedAt
	if tx.CompletedAt != nil {
		date = *tx.CompletedAt
	}

	return fmt.Sprintf("%s_%s%s", date.UTC().Format("20060102"), safe, ext)
}

func defaultExt(kind proof.Kind) string {
	switch kind {
	case proof.KindPDF:
		return ".pdf"
	case proof.KindDoc:
		return ".doc"
	}

	return ".bin"
}
