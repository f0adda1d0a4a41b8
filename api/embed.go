// Package api carries the OpenAPI document served at /openapi.yml and used
// for request validation of gateway callbacks.
package api

import _ "embed"

//go:embed openapi.yml
var OpenAPISpec []byte
