package model

import "github.com/shopspring/decimal"

// ItemStatusActive is the item_status value of a sellable item.
const ItemStatusActive = 1

type Product struct {
	ChainCode  string `db:"chain_code" json:"chainCode,omitempty"`
	BranchCode string `db:"branch_code" json:"branchCode,omitempty"`

	// Identifiers as written in the feed header.
	FeedChainID string `db:"-" json:"feedChainId,omitempty"`
	FeedStoreID string `db:"-" json:"feedStoreId,omitempty"`

	ItemCode                    string          `db:"item_code" json:"itemCode"`
	ItemName                    string          `db:"item_name" json:"itemName"`
	ManufacturerName            string          `db:"manufacturer_name" json:"manufacturerName"`
	ManufacturerItemDescription string          `db:"manufacturer_item_description" json:"manufacturerItemDescription"`
	Price                       decimal.Decimal `db:"item_price" json:"price"`
	UnitOfMeasurePrice          decimal.Decimal `db:"unit_of_measure_price" json:"unitOfMeasurePrice"`
	UnitQty                     string          `db:"unit_qty" json:"unitQty"`
	Quantity                    decimal.Decimal `db:"quantity" json:"quantity"`
	UnitOfMeasure               string          `db:"unit_of_measure" json:"unitOfMeasure"`
	IsWeighted                  bool            `db:"is_weighted" json:"isWeighted"`
	QtyInPackage                decimal.Decimal `db:"qty_in_package" json:"qtyInPackage"`
	AllowDiscount               bool            `db:"allow_discount" json:"allowDiscount"`
	ItemStatus                  int             `db:"item_status" json:"itemStatus"`
	ManufactureCountry          string          `db:"manufacture_country" json:"manufactureCountry"`
	PriceUpdateDate             string          `db:"price_update_date" json:"priceUpdateDate"`
}

type PromotionItem struct {
	ItemCode   string `db:"item_code" json:"itemCode"`
	IsGiftItem bool   `db:"is_gift_item" json:"isGiftItem"`
	ItemType   int    `db:"item_type" json:"itemType"`
}

type Promotion struct {
	ChainCode  string `db:"chain_code" json:"chainCode,omitempty"`
	BranchCode string `db:"branch_code" json:"branchCode,omitempty"`

	FeedChainID string `db:"-" json:"feedChainId,omitempty"`
	FeedStoreID string `db:"-" json:"feedStoreId,omitempty"`

	PromotionID            string          `db:"promotion_id" json:"promotionId"`
	Description            string          `db:"promotion_description" json:"description"`
	UpdateDate             string          `db:"promotion_update_date" json:"updateDate"`
	StartDate              string          `db:"promotion_start_date" json:"startDate"`
	StartHour              string          `db:"promotion_start_hour" json:"startHour"`
	EndDate                string          `db:"promotion_end_date" json:"endDate"`
	EndHour                string          `db:"promotion_end_hour" json:"endHour"`
	DiscountedPrice        decimal.Decimal `db:"discounted_price" json:"discountedPrice"`
	DiscountedPricePerUnit decimal.Decimal `db:"discounted_price_per_unit" json:"discountedPricePerUnit"`
	DiscountRate           decimal.Decimal `db:"discount_rate" json:"discountRate"`
	MinQuantity            decimal.Decimal `db:"min_quantity" json:"minQuantity"`
	MaxQuantity            decimal.Decimal `db:"max_quantity" json:"maxQuantity"`
	MinPurchaseAmount      decimal.Decimal `db:"min_purchase_amount" json:"minPurchaseAmount"`
	AllowMultipleDiscounts bool            `db:"allow_multiple_discounts" json:"allowMultipleDiscounts"`
	RewardType             int             `db:"reward_type" json:"rewardType"`
	DiscountType           int             `db:"discount_type" json:"discountType"`
	Remarks                string          `db:"remarks" json:"remarks"`

	Items []PromotionItem `db:"-" json:"items"`
}
