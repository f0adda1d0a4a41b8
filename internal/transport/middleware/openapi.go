package middleware

import (
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

// InvalidRequestFunc answers a request that failed document validation.
type InvalidRequestFunc func(w http.ResponseWriter, r *http.Request, err error)

// RequestValidator checks request bodies and parameters against an OpenAPI
// document. Requests for paths the document does not describe pass through.
type RequestValidator struct {
	router routers.Router
}

func NewRequestValidator(spec []byte) (*RequestValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	// match on path alone, whatever host the gateway calls
	doc.Servers = nil

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	return &RequestValidator{router: router}, nil
}

func (v *RequestValidator) Validate(r *http.Request) error {
	route, pathParams, err := v.router.FindRoute(r)
	if err != nil {
		return nil
	}

	return openapi3filter.ValidateRequest(r.Context(), &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route:      route,
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	})
}

// Middleware validates write requests only; GET probes are never rejected.
func (v *RequestValidator) Middleware(onInvalid InvalidRequestFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			if err := v.Validate(r); err != nil {
				logger.From(r.Context()).Warn("request failed openapi validation",
					"method", r.Method,
					"path", r.URL.Path,
					"error", err)
				onInvalid(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
