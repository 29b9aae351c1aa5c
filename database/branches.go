package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pricefeed/model"
)

type branchRow struct {
	ID              int64  `db:"id"`
	ChainCode       string `db:"chain_code"`
	BranchCode      string `db:"branch_code"`
	Name            string `db:"branch_name"`
	PriceFilename   string `db:"price_filename"`
	PriceFeedDate   string `db:"price_feed_date"`
	PriceStatus     string `db:"price_status"`
	PromoFilename   string `db:"promo_filename"`
	PromoFeedDate   string `db:"promo_feed_date"`
	PromoStatus     string `db:"promo_status"`
	TotalProducts   int    `db:"total_products"`
	TotalPromotions int    `db:"total_promotions"`
	LastUpdate      string `db:"last_update"`
}

func (r branchRow) toModel() model.Branch {
	return model.Branch{
		ChainCode:  r.ChainCode,
		BranchCode: r.BranchCode,
		Name:       r.Name,
		PriceFile: model.FileRef{
			Filename: r.PriceFilename,
			FeedDate: r.PriceFeedDate,
			Status:   model.FileStatus(r.PriceStatus),
		},
		PromoFile: model.FileRef{
			Filename: r.PromoFilename,
			FeedDate: r.PromoFeedDate,
			Status:   model.FileStatus(r.PromoStatus),
		},
		TotalProducts:   r.TotalProducts,
		TotalPromotions: r.TotalPromotions,
		LastUpdate:      r.LastUpdate,
	}
}

const branchSelect = `
	SELECT
		b.id, c.chain_code, b.branch_code, b.branch_name,
		b.price_filename, b.price_feed_date, b.price_status,
		b.promo_filename, b.promo_feed_date, b.promo_status,
		b.total_products, b.total_promotions, b.last_update
	FROM branches b
	JOIN chains c ON c.id = b.chain_id`

func getBranchRow(ctx context.Context, q sqlx.QueryerContext, chainCode, branchCode string) (branchRow, error) {
	id, err := chainID(ctx, q, chainCode)
	if err != nil {
		return branchRow{}, err
	}
	var row branchRow
	err = sqlx.GetContext(ctx, q, &row, branchSelect+` WHERE b.chain_id = ? AND b.branch_code = ?`, id, branchCode)
	if errors.Is(err, sql.ErrNoRows) {
		return branchRow{}, fmt.Errorf("branch %s/%s: %w", chainCode, branchCode, ErrNotFound)
	}
	if err != nil {
		return branchRow{}, fmt.Errorf("failed to get branch %s/%s: %w", chainCode, branchCode, err)
	}
	return row, nil
}

// fresher picks the file reference to keep for one feed type. A found file
// replaces the stored one only when its feed date is strictly greater, so an
// older listing never rolls a branch back.
func fresher(stored, incoming model.FileRef) model.FileRef {
	if !incoming.Found() {
		if stored.Found() {
			return stored
		}
		return model.MissingFile()
	}
	if !stored.Found() || incoming.FeedDate > stored.FeedDate {
		return incoming
	}
	return stored
}

// UpsertBranch creates or updates a branch of the chain and returns the stored
// result. File references follow the freshness rule of fresher; a blank name
// keeps the stored one.
func (s *Store) UpsertBranch(ctx context.Context, chainCode string, b model.Branch) (model.Branch, error) {
	unlock, err := s.lockBranch(ctx, chainCode, b.BranchCode)
	if err != nil {
		return model.Branch{}, err
	}
	defer unlock()

	var stored model.Branch
	err = s.inTx(ctx, "UpsertBranch", func(tx *sqlx.Tx) error {
		cid, err := chainID(ctx, tx, chainCode)
		if err != nil {
			return err
		}

		existing, err := getBranchRow(ctx, tx, chainCode, b.BranchCode)
		current := model.Branch{PriceFile: model.MissingFile(), PromoFile: model.MissingFile()}
		switch {
		case err == nil:
			current = existing.toModel()
		case !errors.Is(err, ErrNotFound):
			return err
		}

		name := b.Name
		if name == "" {
			name = current.Name
		}
		price := fresher(current.PriceFile, b.PriceFile)
		promo := fresher(current.PromoFile, b.PromoFile)

		const q = `
			INSERT INTO branches (
				chain_id, branch_code, branch_name,
				price_filename, price_feed_date, price_status,
				promo_filename, promo_feed_date, promo_status
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(chain_id, branch_code) DO UPDATE SET
				branch_name     = excluded.branch_name,
				price_filename  = excluded.price_filename,
				price_feed_date = excluded.price_feed_date,
				price_status    = excluded.price_status,
				promo_filename  = excluded.promo_filename,
				promo_feed_date = excluded.promo_feed_date,
				promo_status    = excluded.promo_status`
		_, err = tx.ExecContext(ctx, q, cid, b.BranchCode, name,
			price.Filename, price.FeedDate, string(price.Status),
			promo.Filename, promo.FeedDate, string(promo.Status))
		if err != nil {
			return fmt.Errorf("UpsertBranchInTx (Branch: %s) failed: %w", b.BranchCode, err)
		}

		row, err := getBranchRow(ctx, tx, chainCode, b.BranchCode)
		if err != nil {
			return err
		}
		stored = row.toModel()
		return nil
	})
	if err != nil {
		return model.Branch{}, err
	}
	return stored, nil
}

// Branch returns one branch of a chain.
func (s *Store) Branch(ctx context.Context, chainCode, branchCode string) (*model.Branch, error) {
	row, err := getBranchRow(ctx, s.db, chainCode, branchCode)
	if err != nil {
		return nil, err
	}
	b := row.toModel()
	return &b, nil
}

// ChainBranches lists the chain's branches in numeric branch code order.
func (s *Store) ChainBranches(ctx context.Context, chainCode string) ([]model.Branch, error) {
	id, err := chainID(ctx, s.db, chainCode)
	if err != nil {
		return nil, err
	}
	var rows []branchRow
	err = s.db.SelectContext(ctx, &rows, branchSelect+`
		WHERE b.chain_id = ?
		ORDER BY CAST(b.branch_code AS INTEGER), b.branch_code`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches of %s: %w", chainCode, err)
	}
	branches := make([]model.Branch, 0, len(rows))
	for _, r := range rows {
		branches = append(branches, r.toModel())
	}
	return branches, nil
}
