package swagger

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

// Handler serves Swagger UI for the document at specURL. Operators paste
// their bearer token once and it survives reloads.
func Handler(specURL string) http.Handler {
	return httpSwagger.Handler(
		httpSwagger.URL(specURL),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.PersistAuthorization(true),
	)
}
