package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nephi-asha/kishkumen/internal/observability/metrics"
	"github.com/nephi-asha/kishkumen/internal/security"
	"github.com/nephi-asha/kishkumen/internal/security/audit"
	"github.com/nephi-asha/kishkumen/internal/security/auth"
	"github.com/nephi-asha/kishkumen/internal/security/middleware"
	"github.com/nephi-asha/kishkumen/internal/security/ratelimit"
	"github.com/nephi-asha/kishkumen/internal/tenancy"
)

// Routes is everything the HTTP surface is assembled from.
type Routes struct {
	Auth      *AuthHandler
	Health    *HealthHandler
	Payments  *PaymentHandler
	Catalog   *CatalogHandler
	Sales     *SalesHandler
	Purchases *PurchaseHandler
	Finance   *FinanceHandler
	Users     *UserHandler

	Tokens         *auth.TokenManager
	Namespaces     *tenancy.Router
	Limiter        ratelimit.Limiter
	Audit          *audit.Logger
	Metrics        http.Handler
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter builds the API. Every authenticated request passes, in order:
// token verification, per-tenant rate limiting, namespace binding, the
// audit trail and the role gate of its route.
//
// Routes that only touch the global tables skip namespace binding. Their
// repositories run on the shared pool, so holding a bound connection while
// they wait for a second one could exhaust it.
func NewRouter(rt Routes) http.Handler {
	log := rt.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID(log))
	r.Use(chimw.Recoverer)
	r.Use(metrics.HTTPMetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequireJSON(log))

	r.Get("/healthz", rt.Health.Health)
	r.Get("/readyz", rt.Health.Ready)
	if rt.Metrics != nil {
		r.Handle("/metrics", rt.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", rt.Auth.Register)
		r.Post("/auth/login", rt.Auth.Login)
		r.Post("/auth/approve/{token}", rt.Auth.Approve)
		r.Post("/payments/callback", rt.Payments.Callback)

		anyRole := middleware.RequireRoles(rt.Audit, log)
		managers := middleware.RequireRoles(rt.Audit, log, security.Managers...)
		kitchen := middleware.RequireRoles(rt.Audit, log, security.KitchenStaff...)
		cashiers := middleware.RequireRoles(rt.Audit, log, security.SalesStaff...)
		owners := middleware.RequireRoles(rt.Audit, log, security.OwnersOnly...)
		operators := middleware.RequireRoles(rt.Audit, log, security.GlobalOperators...)

		// global tables only
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(rt.Tokens, log))
			r.Use(middleware.RateLimit(rt.Limiter, log))
			r.Use(middleware.Audit(rt.Audit))

			r.Post("/auth/change-password", rt.Auth.ChangePassword)

			r.Route("/users", func(r chi.Router) {
				r.With(managers).Get("/", rt.Users.List)
				r.With(managers).Post("/staff", rt.Users.AddStaff)
				r.Get("/{id}", rt.Users.Get)
				r.Put("/{id}", rt.Users.Update)
				r.With(owners).Put("/{id}/roles", rt.Users.UpdateRoles)
				r.With(managers).Delete("/{id}", rt.Users.Delete)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(operators)
				r.Get("/tenants", rt.Users.Tenants)
				r.Get("/registrations", rt.Users.Registrations)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(rt.Tokens, log))
			r.Use(middleware.RateLimit(rt.Limiter, log))
			r.Use(middleware.BindNamespace(rt.Namespaces, log))
			r.Use(middleware.Audit(rt.Audit))

			r.Route("/products", func(r chi.Router) {
				r.With(anyRole).Get("/", rt.Catalog.ListProducts)
				r.With(managers).Post("/", rt.Catalog.CreateProduct)
				r.With(anyRole).Get("/{id}", rt.Catalog.GetProduct)
				r.With(managers).Put("/{id}", rt.Catalog.UpdateProduct)
				r.With(managers).Delete("/{id}", rt.Catalog.DeleteProduct)
				r.With(anyRole).Get("/{id}/defects", rt.Sales.ListDefects)
				r.With(kitchen).Post("/{id}/defects", rt.Sales.RecordDefect)
			})

			r.Route("/ingredients", func(r chi.Router) {
				r.With(anyRole).Get("/", rt.Catalog.ListIngredients)
				r.With(kitchen).Post("/", rt.Catalog.CreateIngredient)
				r.With(anyRole).Get("/low-stock", rt.Catalog.LowStock)
				r.With(anyRole).Get("/{id}", rt.Catalog.GetIngredient)
				r.With(kitchen).Put("/{id}", rt.Catalog.UpdateIngredient)
				r.With(managers).Delete("/{id}", rt.Catalog.DeleteIngredient)
				r.With(kitchen).Post("/{id}/refill", rt.Catalog.Refill)
			})

			r.Route("/recipes", func(r chi.Router) {
				r.With(anyRole).Get("/", rt.Catalog.ListRecipes)
				r.With(kitchen).Post("/", rt.Catalog.CreateRecipe)
				r.With(anyRole).Get("/{id}", rt.Catalog.GetRecipe)
				r.With(kitchen).Put("/{id}", rt.Catalog.UpdateRecipe)
				r.With(managers).Delete("/{id}", rt.Catalog.DeleteRecipe)
			})

			r.Route("/sales", func(r chi.Router) {
				r.With(anyRole).Get("/", rt.Sales.ListSales)
				r.With(cashiers).Post("/", rt.Sales.RecordSale)
				r.With(anyRole).Get("/{id}", rt.Sales.GetSale)
				r.With(managers).Put("/{id}", rt.Sales.UpdateSale)
				r.With(managers).Delete("/{id}", rt.Sales.DeleteSale)
			})

			r.Route("/overstocks", func(r chi.Router) {
				r.With(anyRole).Get("/", rt.Sales.ListOverstocks)
				r.With(kitchen).Post("/", rt.Sales.RecordOverstock)
				r.With(managers).Post("/rollover", rt.Sales.RollOver)
			})

			r.With(anyRole).Get("/defects", rt.Sales.ListDefects)

			r.Route("/restocks", func(r chi.Router) {
				r.With(anyRole).Get("/", rt.Sales.ListRestocks)
				r.With(kitchen).Post("/", rt.Sales.RecordRestock)
			})

			r.Route("/purchase-requests", func(r chi.Router) {
				r.With(anyRole).Get("/", rt.Purchases.List)
				r.With(kitchen).Post("/", rt.Purchases.Create)
				r.With(managers).Post("/approve-all", rt.Purchases.ApproveAll)
				r.With(anyRole).Get("/{id}", rt.Purchases.Get)
				r.With(kitchen).Put("/{id}", rt.Purchases.Update)
				r.With(managers).Delete("/{id}", rt.Purchases.Delete)
				r.With(managers).Post("/{id}/approve", rt.Purchases.Approve)
				r.With(managers).Post("/{id}/reject", rt.Purchases.Reject)
			})

			r.Route("/expenses", func(r chi.Router) {
				r.Use(managers)
				r.Get("/", rt.Finance.ListExpenses)
				r.Post("/", rt.Finance.CreateExpense)
				r.Get("/{id}", rt.Finance.GetExpense)
				r.Put("/{id}", rt.Finance.UpdateExpense)
				r.Delete("/{id}", rt.Finance.DeleteExpense)
			})

			r.With(managers).Get("/reports/profit-loss", rt.Finance.ProfitLoss)
		})
	})

	return otelhttp.NewHandler(r, "kishkumen")
}
