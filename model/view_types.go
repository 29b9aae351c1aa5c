package model

import "github.com/shopspring/decimal"

// Read-side views returned by the store. All of them serialize to JSON as-is.

type ChainSummary struct {
	Code       string `db:"chain_code" json:"code"`
	ActualCode string `db:"actual_chain_code" json:"actualCode,omitempty"`
	Name       string `db:"chain_name" json:"name"`
	URL        string `db:"chain_url" json:"url"`
	Branches   int    `db:"total_branches" json:"totalBranches"`
	Products   int    `db:"total_products" json:"totalProducts"`
	Promotions int    `db:"total_promotions" json:"totalPromotions"`
	LastUpdate string `db:"last_update" json:"lastUpdate"`
}

type Overview struct {
	TotalChains     int            `json:"totalChains"`
	TotalBranches   int            `json:"totalBranches"`
	TotalProducts   int            `json:"totalProducts"`
	TotalPromotions int            `json:"totalPromotions"`
	Chains          []ChainSummary `json:"chains"`
}

type BranchProducts struct {
	Branch   Branch    `json:"branch"`
	Products []Product `json:"products"`
}

type BranchPromotions struct {
	Branch     Branch      `json:"branch"`
	Promotions []Promotion `json:"promotions"`
}

type ProductSearchResult struct {
	ItemCode    string          `db:"item_code" json:"itemCode"`
	ItemName    string          `db:"item_name" json:"itemName"`
	ChainCode   string          `db:"chain_code" json:"chainCode"`
	BranchCount int             `db:"branch_count" json:"branchCount"`
	MinPrice    decimal.Decimal `db:"min_price" json:"minPrice"`
	MaxPrice    decimal.Decimal `db:"max_price" json:"maxPrice"`
}

// ProductPrice is one branch's price for an item, used to compare branches.
type ProductPrice struct {
	ItemCode   string          `db:"item_code" json:"itemCode"`
	ItemName   string          `db:"item_name" json:"itemName"`
	BranchCode string          `db:"branch_code" json:"branchCode"`
	BranchName string          `db:"branch_name" json:"branchName"`
	Price      decimal.Decimal `db:"item_price" json:"price"`
	UnitPrice  decimal.Decimal `db:"unit_of_measure_price" json:"unitPrice"`
	Updated    string          `db:"price_update_date" json:"updated"`
}

// StoreStatus describes the database file and what it currently holds.
type StoreStatus struct {
	Path          string         `json:"path"`
	SizeBytes     int64          `json:"sizeBytes"`
	JournalMode   string         `json:"journalMode"`
	LastUpdate    string         `json:"lastUpdate"`
	FeedlessCount int            `json:"branchesWithoutFiles"`
	Chains        []ChainSummary `json:"chains"`
}
