// Package handlers provides general infrastructure HTTP handlers
// (health, readiness, version, jwks).
//
// The credential API handlers live in the server package itself as they need
// access to the service wiring.
package handlers
