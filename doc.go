// Package authkit is an embeddable credential and session engine for
// multi-tenant marketplace backends: password and federated login,
// rotating refresh chains with reuse detection, a Redis device
// registry, bitmask role authorization, and audited operator
// impersonation.
//
// The host application keeps account persistence behind [AccountStore];
// the engine owns everything credential-shaped. Construct with the
// builder:
//
//	engine, err := authkit.New().
//		WithConfig(cfg).
//		WithRedis(client).
//		WithAccountStore(store).
//		Build()
//
// Access tokens are stateless JWTs checked by [Engine.Authenticate];
// refresh tokens are opaque and single-use, rotated by
// [Engine.Refresh]. Presenting a retired refresh token revokes its
// whole chain and forces the account to re-authenticate.
package authkit
