package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/theblitlabs/sentinel/internal/api/handlers"
	"github.com/theblitlabs/sentinel/internal/api/middleware"
)

// Router wraps mux.Router to add more functionality
type Router struct {
	*mux.Router
	middleware []mux.MiddlewareFunc
	endpoint   string
}

// NewRouter creates and configures a new router with all dependencies.
// Read routes are open; mutation routes sit behind bearer auth.
func NewRouter(
	federationHandler *handlers.FederationHandler,
	healthHandler http.Handler,
	metricsHandler http.Handler,
	endpoint string,
	jwtSecret string,
) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		middleware: []mux.MiddlewareFunc{
			middleware.Logging,
		},
		endpoint: endpoint,
	}

	r.setup()
	r.registerRoutes(federationHandler, healthHandler, metricsHandler, jwtSecret)

	return r
}

// setup configures the base router with middleware and common settings
func (r *Router) setup() {
	for _, m := range r.middleware {
		r.Use(m)
	}
}

// registerRoutes registers all application routes
func (r *Router) registerRoutes(
	h *handlers.FederationHandler,
	healthHandler http.Handler,
	metricsHandler http.Handler,
	jwtSecret string,
) {
	r.Handle("/health", healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)

	// Read surface
	reads := r.PathPrefix(r.endpoint).Subrouter()
	reads.HandleFunc("/sessions", h.ListSessions).Methods(http.MethodGet)
	reads.HandleFunc("/sessions/{id}", h.GetSession).Methods(http.MethodGet)
	reads.HandleFunc("/sessions/{id}/rounds", h.ListRounds).Methods(http.MethodGet)
	reads.HandleFunc("/sessions/{id}/rounds/{number}", h.GetRound).Methods(http.MethodGet)
	reads.HandleFunc("/sessions/{id}/contributions", h.ListContributions).Methods(http.MethodGet)
	reads.HandleFunc("/sessions/{id}/ws", h.SessionStatusSocket).Methods(http.MethodGet)

	// Mutations require a signed bearer token
	mutations := r.PathPrefix(r.endpoint).Subrouter()
	mutations.Use(middleware.Auth(jwtSecret))
	mutations.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost)
	mutations.HandleFunc("/sessions/{id}/contributions", h.SubmitContribution).Methods(http.MethodPost)
	mutations.HandleFunc("/sessions/{id}/rounds/{number}/aggregate", h.AggregateRound).Methods(http.MethodPost)
	mutations.HandleFunc("/contributions/{id}/reward", h.MarkContributionRewarded).Methods(http.MethodPost)
}

// AddMiddleware adds a new middleware to the router
func (r *Router) AddMiddleware(middleware mux.MiddlewareFunc) {
	r.Use(middleware)
}
