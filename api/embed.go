package api

import _ "embed"

// OpenAPISpec holds the raw OpenAPI document served at /api/docs/openapi.yaml.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
