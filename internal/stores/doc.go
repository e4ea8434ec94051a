// Package stores holds small Redis-backed stores used by the engine
// that are not part of the public API, currently the registration
// tickets issued by the federation flow.
package stores
