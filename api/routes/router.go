package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dvega/clienthub-backend/api/controllers"
	"github.com/dvega/clienthub-backend/api/middleware"
	"github.com/dvega/clienthub-backend/internal/analytics"
	"github.com/dvega/clienthub-backend/internal/customers"
	"github.com/dvega/clienthub-backend/internal/gdpr"
	"github.com/dvega/clienthub-backend/pkg/config"
	"github.com/dvega/clienthub-backend/pkg/db"
	"github.com/dvega/clienthub-backend/pkg/logger"
	"github.com/dvega/clienthub-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        db.Pinger
	Redis     *redis.Client
	Registry  *prometheus.Registry
	Customers customers.Service
	Analytics analytics.Service
	GDPR      gdpr.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, pingerOrNil(p.Redis)))
	})

	if p.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Tenant(logg))
		if p.Redis != nil {
			r.Use(middleware.Idempotency(p.Redis, logg))
		}

		r.Route("/customers", func(r chi.Router) {
			r.Post("/", controllers.CustomerCreate(p.Customers, logg))
			r.Get("/", controllers.CustomerList(p.Customers, logg))
			r.Get("/search", controllers.CustomerSearch(p.Customers, logg))
			r.Get("/lookup", controllers.CustomerLookup(p.Customers, logg))
			r.Post("/merge", controllers.CustomerMerge(p.Customers, logg))
			r.Post("/segment-all", controllers.SegmentAll(p.Analytics, logg))

			r.Route("/{customerID}", func(r chi.Router) {
				r.Get("/", controllers.CustomerGet(p.Customers, logg))
				r.Put("/", controllers.CustomerUpdate(p.Customers, logg))
				r.Delete("/", controllers.CustomerDelete(p.Customers, logg))

				r.Post("/addresses", controllers.AddressCreate(p.Customers, logg))
				r.Get("/addresses", controllers.AddressList(p.Customers, logg))
				r.Post("/notes", controllers.NoteCreate(p.Customers, logg))
				r.Get("/notes", controllers.NoteList(p.Customers, logg))

				r.Post("/segment", controllers.SegmentRecompute(p.Analytics, logg))
				r.Post("/churn-risk", controllers.ChurnRisk(p.Analytics, logg))
				r.Post("/clv", controllers.CLVPredict(p.Analytics, logg))
				r.Get("/similar", controllers.SimilarCustomers(p.Analytics, logg))
				r.Post("/embedding", controllers.EmbeddingGenerate(p.Analytics, logg))
				r.Get("/recommendations", controllers.RecommendationsGet(p.Analytics, logg))
			})
		})

		r.Route("/gdpr/customers/{customerID}", func(r chi.Router) {
			r.Get("/export", controllers.GDPRExport(p.GDPR, logg))
			r.Post("/erase", controllers.GDPRErase(p.GDPR, logg))
			r.Put("/consent", controllers.ConsentUpdate(p.GDPR, logg))
			r.Get("/consent", controllers.ConsentStatus(p.GDPR, logg))
		})
	})

	return r
}

func pingerOrNil(client *redis.Client) redis.Pinger {
	if client == nil {
		return nil
	}
	return client
}
