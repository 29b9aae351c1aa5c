package model

import "time"

// FeedState is the position of one feed type of one branch in an ingestion run.
type FeedState string

const (
	StatePending       FeedState = "pending"
	StateFilesResolved FeedState = "files_resolved"
	StateDownloaded    FeedState = "downloaded"
	StateDecompressed  FeedState = "decompressed"
	StateParsed        FeedState = "parsed"
	StateStored        FeedState = "stored"
	StateFailed        FeedState = "failed"
)

// Stage names the step that was being attempted when a failure happened.
type Stage string

const (
	StageDiscover   Stage = "discover"
	StageResolve    Stage = "resolve"
	StageDownload   Stage = "download"
	StageDecompress Stage = "decompress"
	StageParse      Stage = "parse"
	StageStore      Stage = "store"
)

type StageError struct {
	ChainCode  string   `json:"chainCode"`
	BranchCode string   `json:"branchCode,omitempty"`
	FeedType   FeedType `json:"feedType,omitempty"`
	Stage      Stage    `json:"stage"`
	Reason     string   `json:"reason"`
}

type FeedOutcome struct {
	FeedType FeedType  `json:"feedType"`
	Filename string    `json:"filename,omitempty"`
	State    FeedState `json:"state"`
	Stage    Stage     `json:"failedStage,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

type BranchReport struct {
	ChainCode              string        `json:"chainCode"`
	BranchCode             string        `json:"branchCode"`
	ProductsInserted       int           `json:"productsInserted"`
	PromotionsInserted     int           `json:"promotionsInserted"`
	PromotionItemsInserted int           `json:"promotionItemsInserted"`
	Feeds                  []FeedOutcome `json:"feeds"`
	Errors                 []StageError  `json:"errors"`
}

// Outcome returns the outcome recorded for the feed type, if any.
func (b BranchReport) Outcome(feed FeedType) (FeedOutcome, bool) {
	for _, f := range b.Feeds {
		if f.FeedType == feed {
			return f, true
		}
	}
	return FeedOutcome{}, false
}

type RunReport struct {
	RunID      string         `json:"runId"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Branches   []BranchReport `json:"branches"`
	// Errors not attributable to a single branch, e.g. a chain that could not be stored.
	Errors []StageError `json:"errors"`
}

func (r *RunReport) ErrorCount() int {
	n := len(r.Errors)
	for _, b := range r.Branches {
		n += len(b.Errors)
	}
	return n
}

// Branch looks up the report of one branch.
func (r *RunReport) Branch(chainCode, branchCode string) (BranchReport, bool) {
	for _, b := range r.Branches {
		if b.ChainCode == chainCode && b.BranchCode == branchCode {
			return b, true
		}
	}
	return BranchReport{}, false
}
