package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/josh-kwaku/peerpay/api"
	"github.com/josh-kwaku/peerpay/internal/config"
	"github.com/josh-kwaku/peerpay/internal/handler"
	"github.com/josh-kwaku/peerpay/internal/middleware"
	"github.com/josh-kwaku/peerpay/internal/service/transfer"
)

func newRouter(cfg *config.Config, engine *transfer.Engine, st appStore) http.Handler {
	health := handler.NewHealthHandler(st, cfg.StoreDriver)
	accounts := handler.NewAccountHandler(engine, cfg.CurrencyExponent)
	recipients := handler.NewRecipientHandler(engine)
	transfers := handler.NewTransferHandler(engine, cfg.CurrencyExponent, cfg.TransferTimeout)

	authn := middleware.Auth(cfg.JWTSecret)
	limiter := middleware.NewAccountLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	protected := func(h http.HandlerFunc) http.Handler {
		return authn(middleware.Logging(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Liveness)
	mux.HandleFunc("GET /ready", health.Readiness)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /docs", handler.ServeDocs())
	mux.HandleFunc("GET /docs/openapi.yaml", handler.ServeSpec(api.Spec))

	mux.Handle("GET /api/v1/accounts/me", protected(accounts.Me))
	mux.Handle("GET /api/v1/accounts/me/history", protected(accounts.History))
	mux.Handle("GET /api/v1/recipients/{identifier}", protected(recipients.Resolve))
	mux.Handle("POST /api/v1/recipients/qr", protected(recipients.ResolveQR))
	mux.Handle("POST /api/v1/transfers", authn(middleware.Logging(middleware.RateLimit(limiter)(http.HandlerFunc(transfers.Create)))))

	var h http.Handler = mux
	h = middleware.Metrics(mux)(h)
	h = middleware.Tracing(h)
	h = middleware.Recovery(h)
	return otelhttp.NewHandler(h, "peerpay-api")
}
