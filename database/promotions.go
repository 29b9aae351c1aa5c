package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pricefeed/model"
)

type promotionRow struct {
	RowID    int64 `db:"row_id"`
	BranchID int64 `db:"branch_id"`
	model.Promotion
}

type promotionItemRow struct {
	PromotionRowID int64 `db:"promotion_row_id"`
	Position       int   `db:"position"`
	model.PromotionItem
}

const insertPromotionSQL = `
	INSERT INTO promotions (
		branch_id, promotion_id, promotion_description, promotion_update_date,
		promotion_start_date, promotion_start_hour, promotion_end_date, promotion_end_hour,
		discounted_price, discounted_price_per_unit, discount_rate,
		min_quantity, max_quantity, min_purchase_amount,
		allow_multiple_discounts, reward_type, discount_type, remarks
	) VALUES (
		:branch_id, :promotion_id, :promotion_description, :promotion_update_date,
		:promotion_start_date, :promotion_start_hour, :promotion_end_date, :promotion_end_hour,
		:discounted_price, :discounted_price_per_unit, :discount_rate,
		:min_quantity, :max_quantity, :min_purchase_amount,
		:allow_multiple_discounts, :reward_type, :discount_type, :remarks
	)`

const insertPromotionItemSQL = `
	INSERT INTO promotion_items (promotion_id, position, item_code, is_gift_item, item_type)
	VALUES (:promotion_row_id, :position, :item_code, :is_gift_item, :item_type)`

func dedupePromotions(promotions []model.Promotion) []model.Promotion {
	index := make(map[string]int, len(promotions))
	out := make([]model.Promotion, 0, len(promotions))
	for _, p := range promotions {
		if i, ok := index[p.PromotionID]; ok {
			out[i] = p
			continue
		}
		index[p.PromotionID] = len(out)
		out = append(out, p)
	}
	return out
}

// ReplacePromotions swaps the branch's promotions, with their items, for the
// given set in one transaction. It returns how many promotions and promotion
// items were inserted.
func (s *Store) ReplacePromotions(ctx context.Context, chainCode, branchCode string, promotions []model.Promotion) (int, int, error) {
	unlock, err := s.lockBranch(ctx, chainCode, branchCode)
	if err != nil {
		return 0, 0, err
	}
	defer unlock()

	rows := dedupePromotions(promotions)
	if dropped := len(promotions) - len(rows); dropped > 0 {
		log.Warningf("branch %s/%s: %d duplicate promotion ids collapsed", chainCode, branchCode, dropped)
	}

	var itemCount int
	err = s.inTx(ctx, "ReplacePromotions", func(tx *sqlx.Tx) error {
		branch, err := getBranchRow(ctx, tx, chainCode, branchCode)
		if err != nil {
			return err
		}

		// promotion_items go with their promotions through ON DELETE CASCADE.
		if _, err := tx.ExecContext(ctx, `DELETE FROM promotions WHERE branch_id = ?`, branch.ID); err != nil {
			return fmt.Errorf("failed to clear promotions of branch %s: %w", branchCode, err)
		}

		promoStmt, err := tx.PrepareNamedContext(ctx, insertPromotionSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare promotion insert: %w", err)
		}
		defer promoStmt.Close()

		itemStmt, err := tx.PrepareNamedContext(ctx, insertPromotionItemSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare promotion item insert: %w", err)
		}
		defer itemStmt.Close()

		itemCount = 0
		for i, p := range rows {
			if err := s.checkInsert("promotions", i); err != nil {
				return err
			}
			res, err := promoStmt.ExecContext(ctx, promotionRow{BranchID: branch.ID, Promotion: p})
			if err != nil {
				return fmt.Errorf("InsertPromotionInTx (Promotion: %s) failed: %w", p.PromotionID, err)
			}
			rowID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to read id of promotion %s: %w", p.PromotionID, err)
			}

			for pos, item := range p.Items {
				if err := s.checkInsert("promotion_items", itemCount); err != nil {
					return err
				}
				_, err := itemStmt.ExecContext(ctx, promotionItemRow{PromotionRowID: rowID, Position: pos, PromotionItem: item})
				if err != nil {
					return fmt.Errorf("InsertPromotionItemInTx (Promotion: %s, Item: %s) failed: %w", p.PromotionID, item.ItemCode, err)
				}
				itemCount++
			}
		}

		now := s.timestamp()
		_, err = tx.ExecContext(ctx, `UPDATE branches SET total_promotions = ?, last_update = ? WHERE id = ?`,
			len(rows), now, branch.ID)
		if err != nil {
			return fmt.Errorf("failed to update promotion counters: %w", err)
		}
		return touchChain(ctx, tx, chainCode, now)
	})
	if err != nil {
		return 0, 0, err
	}
	log.Infof("branch %s/%s: stored %d promotions with %d items", chainCode, branchCode, len(rows), itemCount)
	return len(rows), itemCount, nil
}

// BranchPromotions returns the branch with its promotions in feed order, each
// with its items. A limit of zero or less returns every promotion.
func (s *Store) BranchPromotions(ctx context.Context, chainCode, branchCode string, limit int) (*model.BranchPromotions, error) {
	branch, err := getBranchRow(ctx, s.db, chainCode, branchCode)
	if err != nil {
		return nil, err
	}

	q := `
		SELECT
			pr.id AS row_id, pr.branch_id, c.chain_code, b.branch_code,
			pr.promotion_id, pr.promotion_description, pr.promotion_update_date,
			pr.promotion_start_date, pr.promotion_start_hour, pr.promotion_end_date, pr.promotion_end_hour,
			pr.discounted_price, pr.discounted_price_per_unit, pr.discount_rate,
			pr.min_quantity, pr.max_quantity, pr.min_purchase_amount,
			pr.allow_multiple_discounts, pr.reward_type, pr.discount_type, pr.remarks
		FROM promotions pr
		JOIN branches b ON b.id = pr.branch_id
		JOIN chains c ON c.id = b.chain_id
		WHERE pr.branch_id = ?
		ORDER BY pr.id`
	args := []any{branch.ID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []promotionRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("failed to get promotions of %s/%s: %w", chainCode, branchCode, err)
	}

	result := &model.BranchPromotions{Branch: branch.toModel(), Promotions: make([]model.Promotion, 0, len(rows))}
	if len(rows) == 0 {
		return result, nil
	}

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.RowID
	}
	iq, iargs, err := sqlx.In(`
		SELECT promotion_id AS promotion_row_id, position, item_code, is_gift_item, item_type
		FROM promotion_items
		WHERE promotion_id IN (?)
		ORDER BY promotion_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build promotion item query: %w", err)
	}
	var items []promotionItemRow
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(iq), iargs...); err != nil {
		return nil, fmt.Errorf("failed to get promotion items of %s/%s: %w", chainCode, branchCode, err)
	}

	byPromotion := make(map[int64][]model.PromotionItem, len(rows))
	for _, it := range items {
		byPromotion[it.PromotionRowID] = append(byPromotion[it.PromotionRowID], it.PromotionItem)
	}
	for _, r := range rows {
		p := r.Promotion
		p.Items = byPromotion[r.RowID]
		if p.Items == nil {
			p.Items = make([]model.PromotionItem, 0)
		}
		result.Promotions = append(result.Promotions, p)
	}
	return result, nil
}
