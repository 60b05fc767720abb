package http

import (
	"context"
	"net/http"
	"time"

	_ "github.com/DRSN-tech/storefront/docs" // Импорт сгенерированных файлов
	"github.com/DRSN-tech/storefront/internal/cfg"
	"github.com/DRSN-tech/storefront/internal/usecase"
	"github.com/DRSN-tech/storefront/pkg/logger"
	"github.com/DRSN-tech/storefront/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck проверяет одну зависимость сервиса.
type ReadinessCheck func(ctx context.Context) error

type Router struct {
	router  *chi.Mux
	logger  logger.Logger
	metrics *metrics.ServerMetrics
	orders  *cfg.OrdersCfg
	checks  map[string]ReadinessCheck
}

func NewRouter(router *chi.Mux, logger logger.Logger, metrics *metrics.ServerMetrics, orders *cfg.OrdersCfg) *Router {
	return &Router{
		router:  router,
		logger:  logger,
		metrics: metrics,
		orders:  orders,
		checks:  make(map[string]ReadinessCheck),
	}
}

// WithReadinessCheck добавляет зависимость в /readyz. Вызывается до Init.
func (r *Router) WithReadinessCheck(name string, check ReadinessCheck) *Router {
	r.checks[name] = check
	return r
}

func (r *Router) Init(prUC usecase.ProductUC, orUC usecase.OrderUC) {
	r.router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"), // ссылка на JSON
	))
	r.router.Handle("/metrics", r.metrics.Handler())
	r.router.Get("/readyz", r.readyz)

	r.router.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(instrument(r.metrics))

		prHandler := NewProductHandler(prUC, r.logger)
		registerProductRoutes(v1, prHandler)

		orHandler := NewOrderHandler(orUC, r.logger, r.metrics, r.orders.RequestTimeout)
		registerOrderRoutes(v1, orHandler, limitRate(r.orders.RateLimit, r.orders.RateBurst, r.logger))
	})
}

func registerProductRoutes(router chi.Router, prHandler *ProductHandler) {
	router.Route("/products", func(pr chi.Router) {
		pr.Post("/", prHandler.createProduct)
		pr.Get("/", prHandler.listProducts)
		pr.Get("/{id}", prHandler.getProduct)
		pr.Put("/{id}", prHandler.updateProduct)
		pr.Delete("/{id}", prHandler.deleteProduct)
	})
}

func registerOrderRoutes(router chi.Router, orHandler *OrderHandler, limiter func(http.Handler) http.Handler) {
	router.Route("/orders", func(or chi.Router) {
		or.With(limiter).Post("/", orHandler.createOrder)
		or.Get("/", orHandler.listOrders)
		or.Get("/{id}", orHandler.getOrder)
		or.Put("/{id}", orHandler.updateOrderStatus)
		or.Delete("/{id}", orHandler.deleteOrder)
	})
}

// readyz отвечает 503 со списком упавших зависимостей, если хотя бы одна не отвечает.
func (r *Router) readyz(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), readinessTimeout)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range r.checks {
		if err := check(ctx); err != nil {
			r.logger.Warnf("readiness: %s: %v", name, err)
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		WriteSuccess(w, http.StatusServiceUnavailable, failed)
		return
	}

	WriteSuccess(w, http.StatusOK, MessageResponse{Message: "ready"})
}
