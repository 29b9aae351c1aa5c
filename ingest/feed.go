package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pricefeed/archive"
	"pricefeed/model"
	"pricefeed/parsers"
)

// branchReport accumulates one branch's outcomes while its feeds run.
type branchReport struct {
	model.BranchReport
}

func newBranchReport(chainCode, branchCode string) *branchReport {
	return &branchReport{model.BranchReport{
		ChainCode:  chainCode,
		BranchCode: branchCode,
		Feeds:      make([]model.FeedOutcome, 0, len(model.FeedTypes)),
		Errors:     make([]model.StageError, 0),
	}}
}

// outcome returns the feed's entry, adding a pending one on first use.
func (r *branchReport) outcome(feed model.FeedType, filename string) *model.FeedOutcome {
	for i := range r.Feeds {
		if r.Feeds[i].FeedType == feed {
			return &r.Feeds[i]
		}
	}
	r.Feeds = append(r.Feeds, model.FeedOutcome{FeedType: feed, Filename: filename, State: model.StatePending})
	return &r.Feeds[len(r.Feeds)-1]
}

func (r *branchReport) advance(feed model.FeedType, state model.FeedState) {
	r.outcome(feed, "").State = state
}

func (r *branchReport) fail(feed model.FeedType, filename string, stage model.Stage, err error) {
	o := r.outcome(feed, filename)
	o.State = model.StateFailed
	o.Stage = stage
	o.Reason = err.Error()
	r.Errors = append(r.Errors, model.StageError{
		ChainCode:  r.ChainCode,
		BranchCode: r.BranchCode,
		FeedType:   feed,
		Stage:      stage,
		Reason:     err.Error(),
	})
}

// ingestFeed walks one feed type through
// pending -> files_resolved -> downloaded -> decompressed -> parsed -> stored,
// stopping at the first failed stage.
func (o *Orchestrator) ingestFeed(ctx context.Context, rep *branchReport, feed model.FeedType, ref model.FileRef) {
	rep.outcome(feed, ref.Filename)
	if !ref.Found() {
		rep.fail(feed, "", model.StageResolve, fmt.Errorf("no %s file listed for branch %s", feed, rep.BranchCode))
		return
	}
	rep.advance(feed, model.StateFilesResolved)

	data, err := o.fetch(ctx, feed, ref.Filename)
	if err != nil {
		rep.fail(feed, ref.Filename, model.StageDownload, err)
		return
	}
	rep.advance(feed, model.StateDownloaded)

	text, err := archive.Read(data)
	if err != nil {
		rep.fail(feed, ref.Filename, model.StageDecompress, err)
		return
	}
	rep.advance(feed, model.StateDecompressed)

	switch feed {
	case model.FeedPrice:
		products, err := parsers.ParseProducts(text)
		if err != nil {
			rep.fail(feed, ref.Filename, model.StageParse, err)
			return
		}
		rep.advance(feed, model.StateParsed)
		checkStoreID(rep, ref.Filename, storeIDOfProducts(products))

		n, err := o.store.ReplaceProducts(ctx, rep.ChainCode, rep.BranchCode, products)
		if err != nil {
			rep.fail(feed, ref.Filename, model.StageStore, err)
			return
		}
		rep.ProductsInserted = n

	case model.FeedPromo:
		promotions, err := parsers.ParsePromotions(text)
		if err != nil {
			rep.fail(feed, ref.Filename, model.StageParse, err)
			return
		}
		rep.advance(feed, model.StateParsed)
		checkStoreID(rep, ref.Filename, storeIDOfPromotions(promotions))

		promos, items, err := o.store.ReplacePromotions(ctx, rep.ChainCode, rep.BranchCode, promotions)
		if err != nil {
			rep.fail(feed, ref.Filename, model.StageStore, err)
			return
		}
		rep.PromotionsInserted = promos
		rep.PromotionItemsInserted = items
	}
	rep.advance(feed, model.StateStored)
}

// fetch bounds one download by the fetch timeout. A deadline hit is reported
// as ErrTimeout, any other failure as ErrFetch.
func (o *Orchestrator) fetch(ctx context.Context, feed model.FeedType, filename string) ([]byte, error) {
	fctx, cancel := context.WithTimeout(ctx, o.opts.FetchTimeout)
	defer cancel()

	start := time.Now()
	data, err := o.fetcher.Fetch(fctx, filename)
	o.opts.Metrics.ObserveFetch(feed, time.Since(start))

	if err == nil {
		return data, nil
	}
	if errors.Is(fctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w after %s: %s: %w", ErrTimeout, o.opts.FetchTimeout, filename, err)
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrFetch, filename, err)
}

func storeIDOfProducts(products []model.Product) string {
	if len(products) == 0 {
		return ""
	}
	return products[0].FeedStoreID
}

func storeIDOfPromotions(promotions []model.Promotion) string {
	if len(promotions) == 0 {
		return ""
	}
	return promotions[0].FeedStoreID
}

// checkStoreID warns when the document's header names another store. The
// file listing is authoritative, so the data is still stored.
func checkStoreID(rep *branchReport, filename, storeID string) {
	if storeID == "" || storeID == rep.BranchCode || trimZeros(storeID) == trimZeros(rep.BranchCode) {
		return
	}
	log.Warningf("%s declares store %s, listed for branch %s", filename, storeID, rep.BranchCode)
}

func trimZeros(s string) string {
	for len(s) > 1 && s[0] == '0' {
		s = s[1:]
	}
	return s
}
