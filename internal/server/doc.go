// Package server provides the HTTP server for the credential service.
//
// The server is configured through environment variables
// (see app/internal/config/config.go for details).
//
// The package includes the handlers for the credential API (issuance,
// validation, manifest resolution and document retrieval); common
// infrastructure handlers (health, version, jwks) are in
// app/internal/server/handlers and middleware is in
// app/internal/server/middleware.
package server
