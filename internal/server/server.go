package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/picky/internal/backend"
	"github.com/dukerupert/picky/internal/handler"
	"github.com/dukerupert/picky/internal/middleware"
	"github.com/dukerupert/picky/internal/model"
	"github.com/dukerupert/picky/internal/store"
)

// Options configures the HTTP surface.
type Options struct {
	Environment string
	// Storage names the backend kind reported by the health check.
	Storage     string
	CORSOrigins []string
	// RateLimit is writes per client per minute; zero disables it.
	RateLimit int
	// Backup, when set, exposes backup status and manual runs.
	Backup handler.BackupRunner
}

type Server struct {
	shoppingH   *handler.ItemHandler[model.ShoppingItem]
	larderH     *handler.ItemHandler[model.LarderItem]
	mealH       *handler.ItemHandler[model.MealItem]
	healthH     *handler.HealthHandler
	backupH     *handler.BackupHandler
	rateLimiter *middleware.RateLimiter
	opts        Options
	logger      *slog.Logger
}

func New(b backend.Backend, opts Options, logger *slog.Logger) *Server {
	stores := store.NewStores(b)

	s := &Server{
		shoppingH: handler.NewItemHandler[model.ShoppingItem](model.KindShopping, stores.Shopping, logger).WithReplaceAll(),
		larderH:   handler.NewItemHandler[model.LarderItem](model.KindLarder, stores.Larder, logger),
		mealH:     handler.NewItemHandler[model.MealItem](model.KindMeal, stores.Meals, logger),
		healthH:   handler.NewHealthHandler(b, opts.Storage, opts.Environment, logger),
		opts:      opts,
		logger:    logger,
	}
	if opts.RateLimit > 0 {
		s.rateLimiter = middleware.NewRateLimiter(opts.RateLimit, time.Minute)
	}
	if opts.Backup != nil {
		s.backupH = handler.NewBackupHandler(opts.Backup, logger)
	}
	return s
}

// RateLimiter returns the rate limiter for cleanup tasks, or nil when rate
// limiting is off.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthH.Check)
	mux.HandleFunc("GET /api/health", s.healthH.Check)

	registerItems(mux, model.KindShopping, s.shoppingH)
	registerItems(mux, model.KindLarder, s.larderH)
	registerItems(mux, model.KindMeal, s.mealH)

	if s.backupH != nil {
		mux.HandleFunc("GET /api/backup", s.backupH.Status)
		mux.HandleFunc("POST /api/backup", s.backupH.Run)
	}

	var h http.Handler = mux
	if s.rateLimiter != nil {
		h = middleware.LimitWrites(s.rateLimiter)(h)
	}
	h = middleware.CORS(s.opts.CORSOrigins)(h)
	return middleware.RequestLogger(s.logger)(h)
}

func registerItems[T any](mux *http.ServeMux, kind model.Kind, h *handler.ItemHandler[T]) {
	base := "/api/" + kind.Resource()
	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("POST "+base, h.Create)
	mux.HandleFunc("PUT "+base+"/{id}", h.Update)
	mux.HandleFunc("DELETE "+base+"/{id}", h.Delete)
}
