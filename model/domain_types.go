package model

// FeedType names one of the two published full-snapshot feeds.
type FeedType string

const (
	FeedPrice FeedType = "PriceFull"
	FeedPromo FeedType = "PromoFull"
)

// FeedTypes lists the feed types in processing order.
var FeedTypes = []FeedType{FeedPrice, FeedPromo}

type FileStatus string

const (
	FileFound   FileStatus = "found"
	FileMissing FileStatus = "missing"
)

// Chain is a retail chain. Code is the stable identifier used by the store;
// ActualCode is the authoritative code published by the chain, assigned once.
type Chain struct {
	Code       string `db:"chain_code" json:"code"`
	ActualCode string `db:"actual_chain_code" json:"actualCode,omitempty"`
	Name       string `db:"chain_name" json:"name"`
	URL        string `db:"chain_url" json:"url"`
	LastUpdate string `db:"last_update" json:"lastUpdate"`
}

// DisplayCode returns the authoritative code when known.
func (c Chain) DisplayCode() string {
	if c.ActualCode != "" {
		return c.ActualCode
	}
	return c.Code
}

// FileRef points at the current published file of one feed type for a branch.
// FeedDate is YYYYMMDDHHmm so lexicographic order is chronological.
type FileRef struct {
	Filename string     `json:"filename"`
	FeedDate string     `json:"feedDate"`
	Status   FileStatus `json:"status"`
}

func MissingFile() FileRef {
	return FileRef{Status: FileMissing}
}

func (f FileRef) Found() bool {
	return f.Status == FileFound && f.Filename != ""
}

// BranchFiles holds the resolved file per feed type for one branch.
type BranchFiles struct {
	Price FileRef `json:"price"`
	Promo FileRef `json:"promo"`
}

func (b BranchFiles) Ref(feed FeedType) FileRef {
	if feed == FeedPromo {
		return b.Promo
	}
	return b.Price
}

func (b *BranchFiles) Set(feed FeedType, ref FileRef) {
	if feed == FeedPromo {
		b.Promo = ref
		return
	}
	b.Price = ref
}

type Branch struct {
	ChainCode       string  `json:"chainCode"`
	BranchCode      string  `json:"branchCode"`
	Name            string  `json:"name"`
	PriceFile       FileRef `json:"priceFile"`
	PromoFile       FileRef `json:"promoFile"`
	TotalProducts   int     `json:"totalProducts"`
	TotalPromotions int     `json:"totalPromotions"`
	LastUpdate      string  `json:"lastUpdate"`
}

func (b Branch) Files() BranchFiles {
	return BranchFiles{Price: b.PriceFile, Promo: b.PromoFile}
}

// FileEntry is one row of a chain's published file listing.
type FileEntry struct {
	Filename    string `json:"filename"`
	BranchToken string `json:"branchToken"`
}

// Catalog is everything discovery knows about one chain: its identity, the
// branch names it publishes and the raw file listing.
type Catalog struct {
	Chain    Chain             `json:"chain"`
	Branches map[string]string `json:"branches"`
	Files    []FileEntry       `json:"files"`
}

// BranchName returns the published name of a branch, or a generated one when
// the chain does not list it.
func (c Catalog) BranchName(code string) string {
	if name := c.Branches[code]; name != "" {
		return name
	}
	return "Branch " + code
}
