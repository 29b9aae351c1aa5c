package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"pricefeed/model"
)

// ProductQuery narrows BranchProducts. A Limit of zero or less returns every
// product.
type ProductQuery struct {
	Limit            int
	OrderByPriceDesc bool
}

type productRow struct {
	BranchID int64 `db:"branch_id"`
	model.Product
}

const insertProductSQL = `
	INSERT INTO products (
		branch_id, item_code, item_name, manufacturer_name, manufacturer_item_description,
		item_price, unit_of_measure_price, unit_qty, quantity, unit_of_measure,
		is_weighted, qty_in_package, allow_discount, item_status,
		manufacture_country, price_update_date
	) VALUES (
		:branch_id, :item_code, :item_name, :manufacturer_name, :manufacturer_item_description,
		:item_price, :unit_of_measure_price, :unit_qty, :quantity, :unit_of_measure,
		:is_weighted, :qty_in_package, :allow_discount, :item_status,
		:manufacture_country, :price_update_date
	)`

// dedupeProducts collapses repeated item codes. The last occurrence wins and
// takes the position of the first.
func dedupeProducts(products []model.Product) []model.Product {
	index := make(map[string]int, len(products))
	out := make([]model.Product, 0, len(products))
	for _, p := range products {
		if i, ok := index[p.ItemCode]; ok {
			out[i] = p
			continue
		}
		index[p.ItemCode] = len(out)
		out = append(out, p)
	}
	return out
}

// ReplaceProducts swaps the branch's whole product set for products in one
// transaction and returns the number of rows inserted. On any failure the
// previous set is left in place.
func (s *Store) ReplaceProducts(ctx context.Context, chainCode, branchCode string, products []model.Product) (int, error) {
	unlock, err := s.lockBranch(ctx, chainCode, branchCode)
	if err != nil {
		return 0, err
	}
	defer unlock()

	rows := dedupeProducts(products)
	if dropped := len(products) - len(rows); dropped > 0 {
		log.Warningf("branch %s/%s: %d duplicate item codes collapsed", chainCode, branchCode, dropped)
	}

	err = s.inTx(ctx, "ReplaceProducts", func(tx *sqlx.Tx) error {
		branch, err := getBranchRow(ctx, tx, chainCode, branchCode)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE branch_id = ?`, branch.ID); err != nil {
			return fmt.Errorf("failed to clear products of branch %s: %w", branchCode, err)
		}

		stmt, err := tx.PrepareNamedContext(ctx, insertProductSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare product insert: %w", err)
		}
		defer stmt.Close()

		for i, p := range rows {
			if err := s.checkInsert("products", i); err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, productRow{BranchID: branch.ID, Product: p}); err != nil {
				return fmt.Errorf("InsertProductInTx (Item: %s) failed: %w", p.ItemCode, err)
			}
		}

		now := s.timestamp()
		_, err = tx.ExecContext(ctx, `UPDATE branches SET total_products = ?, last_update = ? WHERE id = ?`,
			len(rows), now, branch.ID)
		if err != nil {
			return fmt.Errorf("failed to update product counters: %w", err)
		}
		return touchChain(ctx, tx, chainCode, now)
	})
	if err != nil {
		return 0, err
	}
	log.Infof("branch %s/%s: stored %d products", chainCode, branchCode, len(rows))
	return len(rows), nil
}

func touchChain(ctx context.Context, tx *sqlx.Tx, chainCode, now string) error {
	id, err := chainID(ctx, tx, chainCode)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chains SET last_update = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("failed to touch chain %s: %w", chainCode, err)
	}
	return nil
}

const productSelect = `
	SELECT
		c.chain_code, b.branch_code,
		p.item_code, p.item_name, p.manufacturer_name, p.manufacturer_item_description,
		p.item_price, p.unit_of_measure_price, p.unit_qty, p.quantity, p.unit_of_measure,
		p.is_weighted, p.qty_in_package, p.allow_discount, p.item_status,
		p.manufacture_country, p.price_update_date
	FROM products p
	JOIN branches b ON b.id = p.branch_id
	JOIN chains c ON c.id = b.chain_id`

// BranchProducts returns the branch with its products, in feed order or by
// descending price.
func (s *Store) BranchProducts(ctx context.Context, chainCode, branchCode string, pq ProductQuery) (*model.BranchProducts, error) {
	branch, err := getBranchRow(ctx, s.db, chainCode, branchCode)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(productSelect)
	sb.WriteString(` WHERE p.branch_id = ?`)
	if pq.OrderByPriceDesc {
		sb.WriteString(` ORDER BY p.item_price DESC, p.item_code`)
	} else {
		sb.WriteString(` ORDER BY p.id`)
	}
	args := []any{branch.ID}
	if pq.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, pq.Limit)
	}

	products := make([]model.Product, 0)
	if err := s.db.SelectContext(ctx, &products, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("failed to get products of %s/%s: %w", chainCode, branchCode, err)
	}
	return &model.BranchProducts{Branch: branch.toModel(), Products: products}, nil
}

// SearchProducts matches item names and codes containing term, grouped per
// chain and item. An empty chainCode searches every chain.
func (s *Store) SearchProducts(ctx context.Context, term, chainCode string, limit int) ([]model.ProductSearchResult, error) {
	var (
		where = []string{`(p.item_name LIKE ? OR p.item_code LIKE ?)`}
		args  = []any{"%" + term + "%", "%" + term + "%"}
	)
	if chainCode != "" {
		id, err := chainID(ctx, s.db, chainCode)
		if err != nil {
			return nil, err
		}
		where = append(where, `c.id = ?`)
		args = append(args, id)
	}
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	q := `
		SELECT
			p.item_code,
			MAX(p.item_name) AS item_name,
			c.chain_code,
			COUNT(DISTINCT b.id) AS branch_count,
			MIN(p.item_price) AS min_price,
			MAX(p.item_price) AS max_price
		FROM products p
		JOIN branches b ON b.id = p.branch_id
		JOIN chains c ON c.id = b.chain_id
		WHERE ` + strings.Join(where, " AND ") + `
		GROUP BY c.id, p.item_code
		ORDER BY branch_count DESC, p.item_code
		LIMIT ?`

	results := make([]model.ProductSearchResult, 0)
	if err := s.db.SelectContext(ctx, &results, q, args...); err != nil {
		return nil, fmt.Errorf("failed to search products for %q: %w", term, err)
	}
	return results, nil
}

// ProductPrices compares the given items across every branch of the chain,
// cheapest first.
func (s *Store) ProductPrices(ctx context.Context, chainCode string, itemCodes []string) ([]model.ProductPrice, error) {
	id, err := chainID(ctx, s.db, chainCode)
	if err != nil {
		return nil, err
	}
	prices := make([]model.ProductPrice, 0)
	if len(itemCodes) == 0 {
		return prices, nil
	}

	q, args, err := sqlx.In(`
		SELECT
			p.item_code, p.item_name, b.branch_code, b.branch_name,
			p.item_price, p.unit_of_measure_price, p.price_update_date
		FROM products p
		JOIN branches b ON b.id = p.branch_id
		WHERE b.chain_id = ? AND p.item_code IN (?)
		ORDER BY p.item_code, p.item_price, CAST(b.branch_code AS INTEGER)`, id, itemCodes)
	if err != nil {
		return nil, fmt.Errorf("failed to build price query: %w", err)
	}
	if err := s.db.SelectContext(ctx, &prices, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("failed to get prices in chain %s: %w", chainCode, err)
	}
	return prices, nil
}
