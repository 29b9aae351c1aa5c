// Package api exposes the stored snapshots and the ingestion pipeline over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/op/go-logging"

	"pricefeed/config"
	"pricefeed/database"
	"pricefeed/ingest"
	"pricefeed/loader"
	"pricefeed/model"
)

var log = logging.MustGetLogger("api")

// Queries is the read side of the store.
type Queries interface {
	Overview(ctx context.Context) (*model.Overview, error)
	Status(ctx context.Context) (*model.StoreStatus, error)
	ChainBranches(ctx context.Context, chainCode string) ([]model.Branch, error)
	BranchProducts(ctx context.Context, chainCode, branchCode string, pq database.ProductQuery) (*model.BranchProducts, error)
	BranchPromotions(ctx context.Context, chainCode, branchCode string, limit int) (*model.BranchPromotions, error)
	SearchProducts(ctx context.Context, term, chainCode string, limit int) ([]model.ProductSearchResult, error)
	ProductPrices(ctx context.Context, chainCode string, itemCodes []string) ([]model.ProductPrice, error)
}

// Ingester runs catalogs and branch re-processing.
type Ingester interface {
	Run(ctx context.Context, catalogs []model.Catalog) (*model.RunReport, error)
	ProcessBranch(ctx context.Context, chainCode, branchCode string) (*model.BranchReport, error)
}

func writeJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warningf("failed to encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{"message": message}, statusCode)
}

// writeStoreError maps a store failure to a response. Unknown chains and
// branches are 404s; everything else is logged and reported as a 500.
func writeStoreError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	log.Errorf("%s: %v", what, err)
	writeJSONError(w, what, http.StatusInternalServerError)
}

// queryInt reads a non-negative integer parameter, falling back to def when
// it is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func OverviewHandler(q Queries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overview, err := q.Overview(r.Context())
		if err != nil {
			writeStoreError(w, "failed to load overview", err)
			return
		}
		writeJSON(w, overview, http.StatusOK)
	}
}

func StatusHandler(q Queries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := q.Status(r.Context())
		if err != nil {
			writeStoreError(w, "failed to load status", err)
			return
		}
		writeJSON(w, status, http.StatusOK)
	}
}

func ChainBranchesHandler(q Queries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		branches, err := q.ChainBranches(r.Context(), chi.URLParam(r, "chain"))
		if err != nil {
			writeStoreError(w, "failed to list branches", err)
			return
		}
		writeJSON(w, branches, http.StatusOK)
	}
}

// BranchProductsHandler lists a branch's products, most expensive first
// unless order=none. limit defaults to topProducts; limit=0 returns all.
func BranchProductsHandler(q Queries, topProducts int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit", topProducts)
		if err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		pq := database.ProductQuery{Limit: limit, OrderByPriceDesc: true}
		switch order := r.URL.Query().Get("order"); order {
		case "", "price_desc":
		case "none":
			pq.OrderByPriceDesc = false
		default:
			writeJSONError(w, "unknown order "+strconv.Quote(order), http.StatusBadRequest)
			return
		}

		products, err := q.BranchProducts(r.Context(), chi.URLParam(r, "chain"), chi.URLParam(r, "branch"), pq)
		if err != nil {
			writeStoreError(w, "failed to load products", err)
			return
		}
		writeJSON(w, products, http.StatusOK)
	}
}

func BranchPromotionsHandler(q Queries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit", 0)
		if err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		promotions, err := q.BranchPromotions(r.Context(), chi.URLParam(r, "chain"), chi.URLParam(r, "branch"), limit)
		if err != nil {
			writeStoreError(w, "failed to load promotions", err)
			return
		}
		writeJSON(w, promotions, http.StatusOK)
	}
}

func SearchProductsHandler(q Queries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		term := strings.TrimSpace(r.URL.Query().Get("q"))
		if term == "" {
			writeJSONError(w, "q is required", http.StatusBadRequest)
			return
		}
		limit, err := queryInt(r, "limit", 0)
		if err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		results, err := q.SearchProducts(r.Context(), term, r.URL.Query().Get("chain"), limit)
		if err != nil {
			writeStoreError(w, "failed to search products", err)
			return
		}
		writeJSON(w, results, http.StatusOK)
	}
}

// ProductPricesHandler accepts item codes as repeated item parameters or as
// one comma separated list.
func ProductPricesHandler(q Queries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var codes []string
		for _, v := range r.URL.Query()["item"] {
			for _, code := range strings.Split(v, ",") {
				if code = strings.TrimSpace(code); code != "" {
					codes = append(codes, code)
				}
			}
		}
		if len(codes) == 0 {
			writeJSONError(w, "at least one item is required", http.StatusBadRequest)
			return
		}
		prices, err := q.ProductPrices(r.Context(), chi.URLParam(r, "chain"), codes)
		if err != nil {
			writeStoreError(w, "failed to load prices", err)
			return
		}
		writeJSON(w, prices, http.StatusOK)
	}
}

// IngestHandler runs a catalog document posted in the catalog file format.
// Listings may only name files under catalogDir. A catalog with nothing to
// ingest answers 422 with the run report.
func IngestHandler(in Ingester, catalogDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		catalogs, err := loader.ReadCatalogWithin(r.Body, catalogDir)
		if err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		report, err := in.Run(r.Context(), catalogs)
		switch {
		case errors.Is(err, ingest.ErrDiscovery):
			writeJSON(w, report, http.StatusUnprocessableEntity)
		case err != nil:
			log.Errorf("ingest run failed: %v", err)
			writeJSONError(w, "ingest run failed: "+err.Error(), http.StatusInternalServerError)
		default:
			writeJSON(w, report, http.StatusOK)
		}
	}
}

func ProcessBranchHandler(in Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := in.ProcessBranch(r.Context(), chi.URLParam(r, "chain"), chi.URLParam(r, "branch"))
		if err != nil {
			writeStoreError(w, "failed to process branch", err)
			return
		}
		writeJSON(w, report, http.StatusOK)
	}
}

func ConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, config.Get(), http.StatusOK)
	}
}
