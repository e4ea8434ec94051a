// Package middleware exposes net/http adapters over the authkit engine:
// a bearer-token guard that validates access tokens and injects claims
// into the request context, and role guards layered on top of it.
//
// The package translates HTTP semantics into engine calls only. It does
// not parse tokens or make authorization decisions itself.
package middleware
