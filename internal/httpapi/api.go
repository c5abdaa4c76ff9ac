package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tallybook.io/internal/auth"
	"tallybook.io/internal/billing"
	"tallybook.io/internal/config"
	"tallybook.io/internal/ledger"
	"tallybook.io/internal/obs"
)

const serviceName = "tallybook-api"

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks every registered dependency.
type ReadyProbe []Pinger

func (rp ReadyProbe) Check(ctx context.Context) error {
	var errs []error
	for _, p := range rp {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Deps are the services the HTTP layer dispatches to.
type Deps struct {
	Session    *auth.SessionPolicy
	Resolver   *auth.Resolver
	Users      *auth.UserService
	Directory  *billing.Directory
	WorkOrders *billing.WorkOrders
	Invoices   *billing.Invoices
	Ledger     *ledger.Service
	Ready      ReadyProbe
	Version    string
	HTTP       config.HTTPConfig
	// CookieSecure marks session cookies Secure.
	CookieSecure bool
	Now          func() time.Time
}

// API is the HTTP layer of the billing backend.
type API struct {
	mux *http.ServeMux
	Deps

	maxBody int64
}

func New(d Deps) (*API, error) {
	switch {
	case d.Session == nil || d.Resolver == nil || d.Users == nil:
		return nil, errors.New("httpapi: auth services are required")
	case d.Directory == nil || d.WorkOrders == nil || d.Invoices == nil || d.Ledger == nil:
		return nil, errors.New("httpapi: billing services are required")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.HTTP.RateBurst <= 0 {
		d.HTTP.RateBurst = 20
	}
	if d.HTTP.RateRPS <= 0 {
		d.HTTP.RateRPS = 10
	}
	a := &API{mux: http.NewServeMux(), Deps: d, maxBody: 20 << 20}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.healthz)
	a.mux.HandleFunc("GET /readyz", a.ready)
	a.mux.HandleFunc("GET /v1/info", a.info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.authRoutes()
	a.userRoutes()
	a.directoryRoutes()
	a.workOrderRoutes()
	a.invoiceRoutes()
	a.transactionRoutes()
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = RateLimit(h, a.HTTP.RateBurst, a.HTTP.RateRPS)
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = obs.Instrument(h)
	return otelhttp.NewHandler(h, "http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + obs.CanonicalPath(r.URL.Path)
		}))
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.Version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.Ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    a.Now().UTC().Format(time.RFC3339),
		"version": a.Version,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{"detail": msg}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}
