package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"pricefeed/metrics"
)

type RouterParams struct {
	Queries     Queries
	Ingester    Ingester
	Metrics     *metrics.Metrics
	TopProducts int
	// CatalogDir anchors listing paths in posted catalogs. Listings outside
	// it are rejected.
	CatalogDir string
}

func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(p.Metrics.Middleware)

	r.Handle("/metrics", p.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/overview", OverviewHandler(p.Queries))
		r.Get("/status", StatusHandler(p.Queries))
		r.Get("/config", ConfigHandler())
		r.Get("/products/search", SearchProductsHandler(p.Queries))
		r.Post("/ingest", IngestHandler(p.Ingester, p.CatalogDir))

		r.Route("/chains/{chain}", func(r chi.Router) {
			r.Get("/branches", ChainBranchesHandler(p.Queries))
			r.Get("/prices", ProductPricesHandler(p.Queries))
			r.Get("/branches/{branch}/products", BranchProductsHandler(p.Queries, p.TopProducts))
			r.Get("/branches/{branch}/promotions", BranchPromotionsHandler(p.Queries))
			r.Post("/branches/{branch}/process", ProcessBranchHandler(p.Ingester))
		})
	})
	return r
}
