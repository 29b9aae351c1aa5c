// Package ingest runs the feed pipeline for whole catalogs: resolve the
// current files per branch, fetch them, unpack, parse and replace the stored
// snapshot. Every failure is attributed to a branch, feed type and stage in
// the run report; only a catalog with nothing to ingest fails the run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/op/go-logging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"pricefeed/database"
	"pricefeed/metrics"
	"pricefeed/model"
	"pricefeed/resolver"
)

var log = logging.MustGetLogger("ingest")

var (
	ErrDiscovery = errors.New("no resolvable catalog entries")
	ErrFetch     = errors.New("fetch failed")
	ErrTimeout   = errors.New("fetch timed out")
)

const (
	DefaultWorkers      = 4
	DefaultFetchTimeout = 60 * time.Second
)

type Catalog = model.Catalog

// Fetcher retrieves the raw bytes of a published file.
type Fetcher interface {
	Fetch(ctx context.Context, filename string) ([]byte, error)
}

// Store is the persistence the orchestrator writes through.
type Store interface {
	UpsertChain(ctx context.Context, code, name, url string) error
	ReassignChainCode(ctx context.Context, oldCode, newCode string) error
	Chain(ctx context.Context, code string) (*model.Chain, error)
	UpsertBranch(ctx context.Context, chainCode string, b model.Branch) (model.Branch, error)
	Branch(ctx context.Context, chainCode, branchCode string) (*model.Branch, error)
	ReplaceProducts(ctx context.Context, chainCode, branchCode string, products []model.Product) (int, error)
	ReplacePromotions(ctx context.Context, chainCode, branchCode string, promotions []model.Promotion) (int, int, error)
}

type Options struct {
	Workers      int
	FetchTimeout time.Duration
	Metrics      *metrics.Metrics
}

type Orchestrator struct {
	store   Store
	fetcher Fetcher
	opts    Options

	group singleflight.Group
	now   func() time.Time
}

func New(store Store, fetcher Fetcher, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	return &Orchestrator{store: store, fetcher: fetcher, opts: opts, now: time.Now}
}

type branchJob struct {
	chainCode string
	branch    model.Branch
}

// Run ingests every branch of every catalog. It returns ErrDiscovery when no
// catalog resolves to a single file; otherwise per-branch problems only show
// up in the report.
func (o *Orchestrator) Run(ctx context.Context, catalogs []Catalog) (*model.RunReport, error) {
	tracker := o.opts.Metrics.Track()
	report := &model.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: o.now(),
		Branches:  make([]model.BranchReport, 0),
		Errors:    make([]model.StageError, 0),
	}
	log.Infof("run %s: %d catalogs", report.RunID, len(catalogs))

	resolved := make([]map[string]model.BranchFiles, len(catalogs))
	total := 0
	for i, c := range catalogs {
		resolved[i] = resolver.Resolve(c.Files)
		total += len(resolved[i])
	}
	if total == 0 {
		report.Errors = append(report.Errors, model.StageError{Stage: model.StageDiscover, Reason: ErrDiscovery.Error()})
		report.FinishedAt = o.now()
		return report, tracker.End(report, ErrDiscovery)
	}

	var jobs []branchJob
	for i, c := range catalogs {
		chainCode := c.Chain.Code
		if err := o.store.UpsertChain(ctx, chainCode, c.Chain.Name, c.Chain.URL); err != nil {
			log.Warningf("chain %s could not be stored: %v", chainCode, err)
			report.Errors = append(report.Errors, model.StageError{
				ChainCode: chainCode,
				Stage:     model.StageStore,
				Reason:    err.Error(),
			})
			continue
		}
		if err := o.assignActualCode(ctx, c.Chain); err != nil {
			log.Warningf("chain %s keeps its code: %v", chainCode, err)
			report.Errors = append(report.Errors, model.StageError{
				ChainCode: chainCode,
				Stage:     model.StageStore,
				Reason:    err.Error(),
			})
		}
		for _, code := range branchCodes(c, resolved[i]) {
			files, ok := resolved[i][code]
			if !ok {
				files = model.BranchFiles{Price: model.MissingFile(), Promo: model.MissingFile()}
			}
			jobs = append(jobs, branchJob{
				chainCode: chainCode,
				branch: model.Branch{
					ChainCode:  chainCode,
					BranchCode: code,
					Name:       c.BranchName(code),
					PriceFile:  files.Price,
					PromoFile:  files.Promo,
				},
			})
		}
	}

	results := make([]model.BranchReport, len(jobs))
	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = o.discoverBranch(ctx, job.chainCode, job.branch)
			return nil
		})
	}
	g.Wait()

	report.Branches = results
	report.FinishedAt = o.now()
	log.Infof("run %s finished: %d branches, %d errors", report.RunID, len(results), report.ErrorCount())

	if err := ctx.Err(); err != nil {
		return report, tracker.End(report, err)
	}
	return report, tracker.End(report, nil)
}

// assignActualCode records the chain's published code once, when the catalog
// knows it. A failure leaves the chain under its catalog code.
func (o *Orchestrator) assignActualCode(ctx context.Context, c model.Chain) error {
	if c.ActualCode == "" || c.ActualCode == c.Code {
		return nil
	}
	stored, err := o.store.Chain(ctx, c.Code)
	if err != nil {
		return err
	}
	if stored.ActualCode != "" {
		if stored.ActualCode != c.ActualCode {
			log.Warningf("chain %s already has code %s, ignoring %s", c.Code, stored.ActualCode, c.ActualCode)
		}
		return nil
	}
	return o.store.ReassignChainCode(ctx, c.Code, c.ActualCode)
}

// branchCodes lists every branch named by the catalog or found in its files,
// in numeric order where codes are numeric.
func branchCodes(c Catalog, resolved map[string]model.BranchFiles) []string {
	seen := make(map[string]bool, len(resolved)+len(c.Branches))
	codes := make([]string, 0, len(seen))
	for code := range resolved {
		seen[code] = true
		codes = append(codes, code)
	}
	for code := range c.Branches {
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	sort.Slice(codes, func(i, j int) bool {
		a, errA := strconv.Atoi(codes[i])
		b, errB := strconv.Atoi(codes[j])
		if errA == nil && errB == nil && a != b {
			return a < b
		}
		return codes[i] < codes[j]
	})
	return codes
}

// discoverBranch records the branch with its freshly resolved files and then
// ingests whatever files the store now considers current.
func (o *Orchestrator) discoverBranch(ctx context.Context, chainCode string, b model.Branch) model.BranchReport {
	stored, err := o.store.UpsertBranch(ctx, chainCode, b)
	if err != nil {
		rep := newBranchReport(chainCode, b.BranchCode)
		for _, feed := range model.FeedTypes {
			rep.fail(feed, b.Files().Ref(feed).Filename, model.StageStore, err)
		}
		return rep.BranchReport
	}
	return o.ingestBranch(ctx, chainCode, stored)
}

// ProcessBranch re-ingests one stored branch from its recorded files.
// Concurrent calls for the same branch share one run. The shared run does not
// stop when one caller goes away; each caller stops waiting on its own ctx.
func (o *Orchestrator) ProcessBranch(ctx context.Context, chainCode, branchCode string) (*model.BranchReport, error) {
	key := chainCode + "/" + branchCode
	ch := o.group.DoChan(key, func() (any, error) {
		runCtx := context.WithoutCancel(ctx)
		b, err := o.store.Branch(runCtx, chainCode, branchCode)
		if err != nil {
			return nil, err
		}
		rep := o.ingestBranch(runCtx, chainCode, *b)
		return &rep, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("process branch %s: %w", key, res.Err)
		}
		if res.Shared {
			log.Debugf("process branch %s joined a run in progress", key)
		}
		return res.Val.(*model.BranchReport), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("process branch %s: %w", key, ctx.Err())
	}
}

func (o *Orchestrator) ingestBranch(ctx context.Context, chainCode string, b model.Branch) model.BranchReport {
	rep := newBranchReport(chainCode, b.BranchCode)
	files := b.Files()
	for _, feed := range model.FeedTypes {
		o.ingestFeed(ctx, rep, feed, files.Ref(feed))
	}
	if n := len(rep.Errors); n > 0 {
		log.Warningf("branch %s/%s finished with %d errors", chainCode, b.BranchCode, n)
	}
	return rep.BranchReport
}

var _ Store = (*database.Store)(nil)
