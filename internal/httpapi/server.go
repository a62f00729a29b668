package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"viewql/internal/compiler"
	"viewql/internal/config"
	"viewql/internal/dbexec"
	"viewql/internal/logging"
	"viewql/internal/middleware"
	"viewql/internal/runtime"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions carries the dependencies of the HTTP surface.
type RouterOptions struct {
	Runtime  *runtime.Runtime
	Executor dbexec.QueryExecutor
	Logger   *logging.Logger
	Config   *config.Config
	// Reload produces a fresh artifact for the admin reload endpoint.
	// Nil disables the endpoint regardless of configuration.
	Reload func(ctx context.Context) (*compiler.Artifact, error)
}

// NewRouter assembles the route table with the middleware chain applied to
// the GraphQL front door.
func NewRouter(opts RouterOptions) (http.Handler, error) {
	cfg := opts.Config

	graphql := GraphQLHandler(opts.Runtime)
	graphql = middleware.Auth(middleware.AuthConfig{
		JWTSecret:         cfg.Server.Auth.JWTSecret,
		CapabilitiesClaim: cfg.Server.Auth.CapabilitiesClaim,
	})(graphql)
	graphql = middleware.RateLimit(middleware.RateLimitConfig{
		Enabled: cfg.Server.RateLimitEnabled,
		RPS:     cfg.Server.RateLimitRPS,
		Burst:   cfg.Server.RateLimitBurst,
	})(graphql)
	graphql = middleware.Logging(opts.Logger)(graphql)

	mux := http.NewServeMux()
	mux.Handle("/graphql", graphql)
	mux.Handle("/healthz", healthHandler(opts.Executor))
	if cfg.Observability.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	if cfg.Server.Admin.ReloadEnabled && opts.Reload != nil {
		adminAuth, err := middleware.AdminTokenAuth(middleware.AdminTokenConfig{
			Token: cfg.Server.Admin.AuthToken,
		})
		if err != nil {
			return nil, err
		}
		mux.Handle("/admin/reload", adminAuth(reloadHandler(opts.Runtime, opts.Reload, opts.Logger)))
	}

	return mux, nil
}

func healthHandler(exec dbexec.QueryExecutor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := exec.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// reloadHandler recompiles and swaps the artifact without dropping
// in-flight requests.
func reloadHandler(rt *runtime.Runtime, reload func(ctx context.Context) (*compiler.Artifact, error), logger *logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		art, err := reload(r.Context())
		if err != nil {
			logger.Error("artifact reload failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}

		rt.Swap(art)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "reloaded",
			"schema":     art.SchemaName,
			"hash":       art.SchemaHash,
			"operations": len(art.Operations),
		})
	})
}
