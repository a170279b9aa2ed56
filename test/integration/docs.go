// Package integration contains end-to-end tests that start the vshc-server
// in-process against a temporary PostgreSQL database.
//
// Run with:
//
//	go test -tags=integration ./test/integration
//
// A local PostgreSQL server must be reachable (see env_setup.go for the
// connection defaults; CI is auto-detected).
package integration
