package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"

	"pricefeed/model"
)

const chainColumns = `
	c.chain_code,
	COALESCE(c.actual_chain_code, '') AS actual_chain_code,
	c.chain_name,
	c.chain_url,
	c.last_update`

// chainID finds a chain by its internal code or by its assigned actual code.
// The internal code wins when both match different rows.
func chainID(ctx context.Context, q sqlx.QueryerContext, code string) (int64, error) {
	var id int64
	err := sqlx.GetContext(ctx, q, &id, `
		SELECT id FROM chains
		WHERE chain_code = ? OR actual_chain_code = ?
		ORDER BY (chain_code = ?) DESC
		LIMIT 1`, code, code, code)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("chain %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up chain %s: %w", code, err)
	}
	return id, nil
}

// UpsertChain creates the chain or refreshes its name and URL. Blank values
// never overwrite stored ones.
func (s *Store) UpsertChain(ctx context.Context, code, name, url string) error {
	return s.inTx(ctx, "UpsertChain", func(tx *sqlx.Tx) error {
		return upsertChainInTx(ctx, tx, code, name, url)
	})
}

func upsertChainInTx(ctx context.Context, tx *sqlx.Tx, code, name, url string) error {
	id, err := chainID(ctx, tx, code)
	if err == nil {
		const q = `
			UPDATE chains SET
				chain_name = CASE WHEN ? <> '' THEN ? ELSE chain_name END,
				chain_url  = CASE WHEN ? <> '' THEN ? ELSE chain_url END
			WHERE id = ?`
		if _, err := tx.ExecContext(ctx, q, name, name, url, url, id); err != nil {
			return fmt.Errorf("UpsertChainInTx (Code: %s) failed: %w", code, err)
		}
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	const q = `INSERT INTO chains (chain_code, chain_name, chain_url) VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, code, name, url); err != nil {
		return fmt.Errorf("UpsertChainInTx (Code: %s, Name: %s) failed: %w", code, name, err)
	}
	return nil
}

// ReassignChainCode records newCode as the chain's authoritative code. It
// succeeds at most once per chain; child rows are keyed by the internal id and
// are not touched.
func (s *Store) ReassignChainCode(ctx context.Context, oldCode, newCode string) error {
	return s.inTx(ctx, "ReassignChainCode", func(tx *sqlx.Tx) error {
		var current struct {
			ID     int64          `db:"id"`
			Actual sql.NullString `db:"actual_chain_code"`
		}
		err := tx.GetContext(ctx, &current, `SELECT id, actual_chain_code FROM chains WHERE chain_code = ?`, oldCode)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("chain %s: %w", oldCode, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if current.Actual.Valid {
			return fmt.Errorf("chain %s has code %s: %w", oldCode, current.Actual.String, ErrChainCodeAssigned)
		}

		var owners int
		err = tx.GetContext(ctx, &owners, `
			SELECT COUNT(*) FROM chains
			WHERE id <> ? AND (chain_code = ? OR actual_chain_code = ?)`, current.ID, newCode, newCode)
		if err != nil {
			return err
		}
		if owners > 0 {
			return fmt.Errorf("code %s: %w", newCode, ErrCodeConflict)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE chains SET actual_chain_code = ?
			WHERE id = ? AND actual_chain_code IS NULL`, newCode, current.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("chain %s: %w", oldCode, ErrChainCodeAssigned)
		}
		log.Infof("chain %s assigned code %s", oldCode, newCode)
		return nil
	})
}

// Chain returns a single chain by either of its codes.
func (s *Store) Chain(ctx context.Context, code string) (*model.Chain, error) {
	id, err := chainID(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	var c model.Chain
	if err := s.db.GetContext(ctx, &c, `SELECT`+chainColumns+` FROM chains c WHERE c.id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to get chain %s: %w", code, err)
	}
	return &c, nil
}

const chainSummaryQuery = `
	SELECT` + chainColumns + `,
		COUNT(b.id) AS total_branches,
		COALESCE(SUM(b.total_products), 0) AS total_products,
		COALESCE(SUM(b.total_promotions), 0) AS total_promotions
	FROM chains c
	LEFT JOIN branches b ON b.chain_id = c.id
	GROUP BY c.id
	ORDER BY c.chain_code`

func (s *Store) chainSummaries(ctx context.Context) ([]model.ChainSummary, error) {
	chains := make([]model.ChainSummary, 0)
	if err := s.db.SelectContext(ctx, &chains, chainSummaryQuery); err != nil {
		return nil, fmt.Errorf("failed to summarize chains: %w", err)
	}
	return chains, nil
}

// Overview totals every chain and lists them with their own counts.
func (s *Store) Overview(ctx context.Context) (*model.Overview, error) {
	chains, err := s.chainSummaries(ctx)
	if err != nil {
		return nil, err
	}
	ov := &model.Overview{TotalChains: len(chains), Chains: chains}
	for _, c := range chains {
		ov.TotalBranches += c.Branches
		ov.TotalProducts += c.Products
		ov.TotalPromotions += c.Promotions
	}
	return ov, nil
}

// Status reports on the database file itself alongside the chain summaries.
func (s *Store) Status(ctx context.Context) (*model.StoreStatus, error) {
	chains, err := s.chainSummaries(ctx)
	if err != nil {
		return nil, err
	}
	st := &model.StoreStatus{Path: s.path, Chains: chains}

	if s.path != "" {
		if fi, err := os.Stat(s.path); err == nil {
			st.SizeBytes = fi.Size()
		} else {
			log.Warningf("could not stat database file %s: %v", s.path, err)
		}
	}
	if err := s.db.GetContext(ctx, &st.JournalMode, `PRAGMA journal_mode`); err != nil {
		return nil, fmt.Errorf("failed to read journal mode: %w", err)
	}
	if err := s.db.GetContext(ctx, &st.LastUpdate, `SELECT COALESCE(MAX(last_update), '') FROM branches`); err != nil {
		return nil, fmt.Errorf("failed to read last update: %w", err)
	}
	err = s.db.GetContext(ctx, &st.FeedlessCount, `
		SELECT COUNT(*) FROM branches
		WHERE price_status <> ? AND promo_status <> ?`, model.FileFound, model.FileFound)
	if err != nil {
		return nil, fmt.Errorf("failed to count branches without files: %w", err)
	}
	return st, nil
}
