// Package hcert implements the health certificate codec: the base45/zlib/
// COSE_Sign1 encoding pipeline that produces compact credential strings, the
// SMART Health Link payload formats embedded in them, and the nine-stage
// verification pipeline that decodes a credential, resolves the signer's key
// from the trust network and checks the signature and expiry.
//
// The package is pure apart from the KeyResolver dependency - it owns no
// storage and performs no I/O of its own.
package hcert
