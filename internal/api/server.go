package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/lox/squidcast/internal/forecast"
	"github.com/lox/squidcast/internal/store"
)

// DefaultOrigins are the front ends allowed to call the API.
var DefaultOrigins = []string{"https://indian-squid.vercel.app", "http://localhost:3000"}

// Narrator writes a plain-language summary of a forecast run.
type Narrator interface {
	Summarize(ctx context.Context, res *forecast.Result) (string, error)
}

type Options struct {
	Origins []string
	// PredictRate is the sustained /predict rate per second. Zero disables
	// throttling.
	PredictRate  float64
	PredictBurst int
	Narrator     Narrator
	// Store is optional; when set /health reports the latest ingest run.
	Store *store.Store
}

type Server struct {
	engine   *forecast.Engine
	port     string
	origins  []string
	limiter  *rate.Limiter
	narrator Narrator
	store    *store.Store
}

func NewServer(engine *forecast.Engine, port string, opts Options) *Server {
	s := &Server{
		engine:   engine,
		port:     port,
		origins:  opts.Origins,
		narrator: opts.Narrator,
		store:    opts.Store,
	}
	if len(s.origins) == 0 {
		s.origins = DefaultOrigins
	}
	if opts.PredictRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.PredictRate), max(opts.PredictBurst, 1))
	}
	if s.narrator == nil {
		log.Printf("server: narrative disabled")
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.throttle).Post("/predict", s.handlePredict)
	r.Get("/api/hotspots", s.handleAPIHotspots)
	return r
}

func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			observeRequest("throttled")
			http.Error(w, "too many forecast requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
		// Forecasts with charts for every hotspot can take a while.
		WriteTimeout: 2 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("server: listening on :%s", s.port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
