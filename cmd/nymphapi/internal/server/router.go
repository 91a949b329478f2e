package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/logging"
	nymphmiddleware "github.com/frostu8/nymph/cmd/nymphapi/internal/middleware"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/services/iam"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/services/validation"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/telemetry"
	"github.com/frostu8/nymph/pkg/api"
)

// RouterOptions controls the construction of the nymph HTTP router.
// Resolver and Issuer are required; other fields fall back to defaults.
type RouterOptions struct {
	Resolver    nymphmiddleware.PrincipalResolver
	Issuer      *iam.Issuer
	Validator   *validation.SchemaValidator
	Logger      logging.Logger
	Metrics     *telemetry.Metrics
	Gatherer    prometheus.Gatherer
	CORSOptions *cors.Options
	Middleware  []func(http.Handler) http.Handler
	// HealthHandler replaces the default /health response.
	HealthHandler http.HandlerFunc
}

// DefaultCORSOptions returns the shared CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			"Authorization",
			"X-Api-Key",
		},
		AllowCredentials: false,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy, and
// the nymph handlers mounted.
func NewRouter(opts RouterOptions) (chi.Router, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	validator := opts.Validator
	if validator == nil {
		var err error
		validator, err = NewPayloadValidator()
		if err != nil {
			return nil, err
		}
	}

	r := chi.NewRouter()

	// Baseline middleware shared across entrypoints.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(nymphmiddleware.AccessLog(logger, opts.Metrics))
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	notFound := func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, logger, api.NewError(api.NotFound, "The resource was not found."))
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	health := opts.HealthHandler
	if health == nil {
		health = defaultHealthHandler
	}
	r.Get("/health", health)

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	users := NewUserHandlers(opts.Issuer, validator, logger)
	r.Route("/users", func(r chi.Router) {
		r.Use(nymphmiddleware.NoStore)
		r.Use(nymphmiddleware.Authentication(opts.Resolver, logger))

		r.Post("/proxy", users.HandleProxyToken)
		r.Post("/discord", users.HandleDiscordUser)
		r.Get("/me", users.HandleWhoAmI)
	})

	return r, nil
}
