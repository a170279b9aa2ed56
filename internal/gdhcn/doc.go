// Package gdhcn implements the credential service: issuing signed
// vaccination-status credentials wrapping SMART Health Links, verifying
// presented credentials against the GDHCN trust network, resolving
// passcode-protected manifests into single-use retrieval URLs, and serving
// the underlying clinical documents.
package gdhcn
