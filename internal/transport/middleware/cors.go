package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// CORS allows the comma separated origins; an empty list allows any origin
// without credentials.
func CORS(allowedOrigins string) func(http.Handler) http.Handler {
	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", TraceHeader},
		ExposedHeaders: []string{TraceHeader},
	}
	if len(origins) > 0 {
		opts.AllowCredentials = true
	} else {
		opts.AllowedOrigins = []string{"*"}
	}
	return cors.New(opts).Handler
}
