package rest

import (
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/smartwater-vending/api"
	"github.com/frahmantamala/smartwater-vending/internal/aggregate"
	"github.com/frahmantamala/smartwater-vending/internal/auth"
	gatewaytypes "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/smartwater-vending/internal/meter"
	"github.com/frahmantamala/smartwater-vending/internal/payment"
	"github.com/frahmantamala/smartwater-vending/internal/transport"
	"github.com/frahmantamala/smartwater-vending/internal/transport/middleware"
	"github.com/frahmantamala/smartwater-vending/internal/transport/swagger"
	"github.com/frahmantamala/smartwater-vending/internal/vending"
)

// Routes collects everything the HTTP surface serves. Nil handlers leave
// their routes unregistered.
type Routes struct {
	Base           *transport.BaseHandler
	Health         *HealthHandler
	Verifier       auth.TokenVerifier
	Validator      *middleware.RequestValidator
	AllowedOrigins string

	Auth      *auth.Handler
	Webhook   *payment.WebhookHandler
	Payment   *payment.Handler
	Vending   *vending.Handler
	Meter     *meter.Handler
	Aggregate *aggregate.Handler

	MetricsPath    string
	MetricsHandler http.Handler
}

func RegisterAllRoutes(router *chi.Mux, rt Routes) {
	router.Use(middleware.CORS(rt.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.TraceID)
	router.Use(middleware.Recovery(rt.Base))
	router.Use(middleware.RequestLogging(rt.MetricsPath, "/api/v1/ping"))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(api.OpenAPISpec)
	})
	router.Handle("/swagger/*", swagger.Handler("/openapi.yml"))

	if rt.MetricsHandler != nil && rt.MetricsPath != "" {
		router.Handle(rt.MetricsPath, rt.MetricsHandler)
	}

	if rt.Webhook != nil {
		registerGatewayCallbacks(router, rt)
	}

	operator := middleware.RequireOperator(rt.Verifier, rt.Base)

	router.Route("/api/v1", func(r chi.Router) {
		if rt.Health != nil {
			r.Get("/health", rt.Health.healthCheckHandler)
			r.Get("/ping", rt.Health.pingHandler)
		}

		if rt.Vending != nil {
			r.With(operator).Post("/vending/generate", rt.Vending.GenerateToken)
			r.Get("/vending/tokens/{token}", rt.Vending.GetByToken)
			r.Get("/meters/{meter}/vends", rt.Vending.ListByMeter)
		}

		if rt.Meter != nil {
			r.With(operator).Post("/meters", rt.Meter.Register)
			r.Get("/meters", rt.Meter.List)
			r.Get("/meters/{meter}", rt.Meter.Get)
		}

		if rt.Aggregate != nil {
			r.Get("/meters/{meter}/aggregate", rt.Aggregate.GetMeterAggregate)
			r.Get("/aggregates/home", rt.Aggregate.ListHomeSummaries)
			r.Get("/aggregates/home/{meter}", rt.Aggregate.GetHomeSummary)
		}

		r.Group(func(pr chi.Router) {
			pr.Use(operator)

			if rt.Auth != nil {
				pr.Get("/auth/me", rt.Auth.Me)
			}

			if rt.Payment != nil {
				pr.Route("/daraja", func(dr chi.Router) {
					dr.Get("/transactions", rt.Payment.ListTransactions)
					dr.Get("/transactions/{trans_id}", rt.Payment.GetTransaction)
					dr.Post("/transactions/{trans_id}/status", rt.Payment.QueryTransactionStatus)
					dr.Post("/register-urls", rt.Payment.RegisterURLs)
					dr.Post("/simulate", rt.Payment.Simulate)
					dr.Get("/test-connection", rt.Payment.TestConnection)
					dr.Get("/debug/routes", rt.Payment.DebugRoutes)
				})
			}
		})
	})
}

// registerGatewayCallbacks mounts the URLs Daraja posts to. They carry no
// operator token; a body that fails document validation is acknowledged
// without being processed so the gateway does not retry it.
func registerGatewayCallbacks(router *chi.Mux, rt Routes) {
	wh := rt.Webhook

	router.Group(func(r chi.Router) {
		if rt.Validator != nil {
			r.Use(rt.Validator.Middleware(func(w http.ResponseWriter, req *http.Request, err error) {
				rt.Base.WriteJSON(w, http.StatusOK, gatewaytypes.CallbackResult{ResultCode: 0, ResultDesc: "Accepted"})
			}))
		}

		r.Route("/api/daraja", func(dr chi.Router) {
			dr.Get("/validation", wh.Validation)
			dr.Post("/validation", wh.Validation)
			dr.Get("/confirmation", wh.Confirmation)
			dr.Post("/confirmation", wh.Confirmation)
			dr.Get("/timeout", wh.Timeout)
			dr.Post("/timeout", wh.Timeout)
			dr.Post("/transaction-status/result", wh.TransactionStatusResult)
		})
		r.Post("/api/mpesa/callback", wh.LegacyCallback)
	})
}
